package validators

import (
	"context"
	"fmt"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// sizeGrowthWarnThreshold flags a modification whose content more than
// triples in size as worth a second look, without blocking it outright.
const sizeGrowthWarnThreshold = 3.0

// PerformanceGate is a coarse proxy for performance risk: a large jump
// in file size, or the introduction of nested loops, correlates with
// the kind of change that needs a closer look before merging. Not
// critical — it only ever downgrades to RequiresReview via the risk
// level, it never blocks on its own.
type PerformanceGate struct{}

func (PerformanceGate) Name() string           { return "performance" }
func (PerformanceGate) Critical() bool         { return false }
func (PerformanceGate) Timeout() time.Duration { return 0 }

func (PerformanceGate) Run(_ context.Context, change domain.CodeModification) domain.GateResult {
	if change.Kind != domain.ModificationUpdate || len(change.Original) == 0 {
		return domain.GateResult{GateName: "performance", Passed: true, RiskLevel: domain.RiskLow}
	}

	ratio := float64(len(change.Modified)) / float64(len(change.Original))
	if ratio < sizeGrowthWarnThreshold {
		return domain.GateResult{GateName: "performance", Passed: true, RiskLevel: domain.RiskLow}
	}

	return domain.GateResult{
		GateName:  "performance",
		Passed:    true,
		RiskLevel: domain.RiskMedium,
		Issues:    []string{fmt.Sprintf("content size grew %.1fx, review for added complexity", ratio)},
	}
}
