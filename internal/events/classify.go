package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrSuppressed marks events that classify cleanly but must never be shown
// (countdown-hidden events and countdowns into hidden phases).
var ErrSuppressed = errors.New("events: event suppressed")

var countdownPhasePattern = regexp.MustCompile(`\[p(\d+)\]`)

type countdownContent struct {
	Type    string `json:"type"`
	PhaseID string `json:"phaseId"`
}

type portfolioData struct {
	CeToken struct {
		Symbol string `json:"symbol"`
	} `json:"ceToken"`
}

// ParseCountdownPhase extracts the next-phase value from a countdown-set
// event's content blob. The content must be JSON with a "nextPhase"
// discriminator and a phaseId containing a bracketed numeric tag.
func ParseCountdownPhase(raw RawEvent) (Phase, error) {
	if raw.Content == nil {
		return 0, fmt.Errorf("events: countdown event %s has no content", raw.ID)
	}

	var content countdownContent
	if err := json.Unmarshal([]byte(raw.Content.Body), &content); err != nil {
		return 0, fmt.Errorf("events: countdown event %s content unparsable: %w", raw.ID, err)
	}

	if content.Type != "nextPhase" {
		return 0, fmt.Errorf("events: countdown event %s content type %q is not nextPhase", raw.ID, content.Type)
	}

	match := countdownPhasePattern.FindStringSubmatch(content.PhaseID)
	if match == nil {
		return 0, fmt.Errorf("events: countdown event %s phaseId %q does not match [p<digits>]", raw.ID, content.PhaseID)
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("events: countdown event %s phase number: %w", raw.ID, err)
	}

	phase := Phase(value)
	if !phase.Valid() {
		return 0, fmt.Errorf("events: countdown event %s resolves to unknown phase %d", raw.ID, value)
	}

	return phase, nil
}

// Classify converts a raw event into a notification. A nil notification with
// a non-nil error means the event is dropped; the error explains why.
// Classification is deterministic for a given raw event.
func Classify(raw RawEvent) (*Notification, error) {
	if !raw.Kind.Valid() {
		return nil, fmt.Errorf("events: event %s has unknown kind %d", raw.ID, int(raw.Kind))
	}

	notification := &Notification{
		ID:        raw.ID,
		Timestamp: raw.Timestamp,
		Kind:      raw.Kind,
	}
	if !raw.Global() {
		notification.Project = &ProjectRef{Address: strings.ToLower(raw.ProjectNest)}
	}

	switch raw.Kind {
	case KindNewProjectOnDealFlow:
		notification.Message = "New project on Deal Flow"

	case KindNestIsOpen:
		notification.Message = "NEST is now open"

	case KindMovedToAnalysis:
		notification.Message = "Moved to Analysis"

	case KindMovedToInvestmentCommittee:
		notification.Message = "Moved to Investment Committee"

	case KindClaimUSDCExcess:
		notification.Message = "Claim your USDC excess"

	case KindAvailableOnPortfolio:
		var data portfolioData
		if err := json.Unmarshal([]byte(raw.AdditionalData), &data); err != nil {
			return nil, fmt.Errorf("events: event %s additional data unparsable: %w", raw.ID, err)
		}
		if data.CeToken.Symbol == "" {
			return nil, fmt.Errorf("events: event %s is missing the ceToken symbol", raw.ID)
		}
		notification.Message = fmt.Sprintf("%s now available on Portfolio", data.CeToken.Symbol)

	case KindTgeAvailableNow:
		notification.Message = "TGE available now"

	case KindCountdownSet:
		phase, err := ParseCountdownPhase(raw)
		if err != nil {
			return nil, err
		}
		if phase.Hidden() {
			return nil, fmt.Errorf("%w: event %s countdown into phase %d", ErrSuppressed, raw.ID, int(phase))
		}
		name, err := phase.DisplayName()
		if err != nil {
			return nil, err
		}
		notification.CountdownNextPhase = phase
		notification.Message = fmt.Sprintf("Countdown to %s set for %s",
			name, time.Unix(raw.Timestamp, 0).UTC().Format(time.RFC3339))

	case KindCountdownHidden:
		return nil, fmt.Errorf("%w: event %s hides a countdown", ErrSuppressed, raw.ID)

	case KindCustomNotification:
		if raw.Content == nil {
			return nil, fmt.Errorf("events: custom event %s has no content", raw.ID)
		}
		notification.Message = raw.Content.Body
	}

	return notification, nil
}
