package events

import "fmt"

// Phase is one stage in a project's fixed phase sequence. The numeric values
// follow the wire encoding used inside countdown payloads.
type Phase int

const (
	PhaseRejected Phase = iota // 0
	PhasePending               // 1
	PhaseDealFlow              // 2
	PhaseAnalysis              // 3
	PhaseInvestmentCommittee   // 4
	PhaseRefunded              // 5
	PhasePortfolio             // 6
)

// Valid reports whether the phase belongs to the closed enumeration.
func (p Phase) Valid() bool {
	return p >= PhaseRejected && p <= PhasePortfolio
}

// Hidden reports whether the phase must never be shown to any account.
func (p Phase) Hidden() bool {
	return p == PhaseRejected || p == PhasePending
}

// DisplayName returns the user-facing phase name. Rejected and Pending have
// no display name because they are filtered out before rendering.
func (p Phase) DisplayName() (string, error) {
	switch p {
	case PhaseDealFlow:
		return "Deal Flow", nil
	case PhaseAnalysis:
		return "Analysis", nil
	case PhaseInvestmentCommittee:
		return "Investment Committee", nil
	case PhaseRefunded:
		return "Refunded", nil
	case PhasePortfolio:
		return "Portfolio", nil
	default:
		return "", fmt.Errorf("events: phase %d has no display name", int(p))
	}
}
