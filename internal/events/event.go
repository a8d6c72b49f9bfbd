package events

// Content is the optional free-form blob attached to a raw event.
type Content struct {
	ID   string // content URI in the event log
	Body string
}

// RawEvent is a record fetched from the indexed event log. It is immutable
// once fetched; the store client owns it until classification.
type RawEvent struct {
	ID             string
	Timestamp      int64  // unix seconds
	ProjectNest    string // project address; empty means global
	Kind           Kind
	AdditionalData string // kind-dependent JSON payload
	Content        *Content
}

// Global reports whether the event is not scoped to any project.
func (e RawEvent) Global() bool {
	return e.ProjectNest == ""
}

// ProjectRef identifies a project, with display data filled in lazily once
// the eligibility oracle resolves it.
type ProjectRef struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Logo    string `json:"logo,omitempty"`
}

// Notification is a classified event, ready for account filtering. Immutable
// after creation except for the IsUnread and New flags.
type Notification struct {
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Project   *ProjectRef `json:"project,omitempty"` // nil for global notifications
	Kind      Kind        `json:"kind"`
	Message   string      `json:"message"`

	// CountdownNextPhase is set only for countdown-set notifications.
	CountdownNextPhase Phase `json:"countdown_next_phase,omitempty"`

	IsUnread bool `json:"is_unread"`
	New      bool `json:"new,omitempty"`
}
