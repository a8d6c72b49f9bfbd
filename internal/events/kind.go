package events

import "fmt"

// Kind identifies the type of a raw domain event. The numeric values follow
// the wire encoding of the indexed event log and must not be reordered.
type Kind int

const (
	KindNewProjectOnDealFlow Kind = iota // 0
	KindNestIsOpen                       // 1
	KindMovedToAnalysis                  // 2
	KindMovedToInvestmentCommittee       // 3
	KindClaimUSDCExcess                  // 4
	KindAvailableOnPortfolio             // 5
	KindTgeAvailableNow                  // 6
	KindCountdownSet                     // 7
	KindCountdownHidden                  // 8
	KindCustomNotification               // 9
)

// Valid reports whether the kind belongs to the closed enumeration.
func (k Kind) Valid() bool {
	return k >= KindNewProjectOnDealFlow && k <= KindCustomNotification
}

func (k Kind) String() string {
	switch k {
	case KindNewProjectOnDealFlow:
		return "new-project-on-deal-flow"
	case KindNestIsOpen:
		return "nest-is-open"
	case KindMovedToAnalysis:
		return "moved-to-analysis"
	case KindMovedToInvestmentCommittee:
		return "moved-to-investment-committee"
	case KindClaimUSDCExcess:
		return "claim-usdc-excess"
	case KindAvailableOnPortfolio:
		return "available-on-portfolio"
	case KindTgeAvailableNow:
		return "tge-available-now"
	case KindCountdownSet:
		return "countdown-set"
	case KindCountdownHidden:
		return "countdown-hidden"
	case KindCustomNotification:
		return "custom-notification"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}
