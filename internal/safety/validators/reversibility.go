package validators

import (
	"context"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// ReversibilityGate requires that an update or delete carries enough
// of the original content to be inverted later. A create has nothing
// to revert to, so it always passes. Critical: a change that can't be
// rolled back must never reach the runtime.
type ReversibilityGate struct{}

func (ReversibilityGate) Name() string           { return "reversibility" }
func (ReversibilityGate) Critical() bool         { return true }
func (ReversibilityGate) Timeout() time.Duration { return 0 }

func (ReversibilityGate) Run(_ context.Context, change domain.CodeModification) domain.GateResult {
	switch change.Kind {
	case domain.ModificationCreate:
		return domain.GateResult{GateName: "reversibility", Passed: true, RiskLevel: domain.RiskLow}
	case domain.ModificationUpdate, domain.ModificationDelete:
		if change.Original == "" {
			return domain.GateResult{
				GateName:  "reversibility",
				Passed:    false,
				RiskLevel: domain.RiskCritical,
				Issues:    []string{"no original content captured; change cannot be reverted"},
			}
		}
		return domain.GateResult{GateName: "reversibility", Passed: true, RiskLevel: domain.RiskLow}
	default:
		return domain.GateResult{GateName: "reversibility", Passed: true, RiskLevel: domain.RiskLow}
	}
}
