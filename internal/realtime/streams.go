package realtime

// Named realtime streams served by the hub.
const (
	StreamNotifications = "notifications"
)

// KnownStream reports whether the stream name is served by the hub.
func KnownStream(stream string) bool {
	return stream == StreamNotifications
}
