// Package validators implements the five gates (C6) wired into the
// safety pipeline: static, semantic, security, performance, and
// reversibility. Modeled on the teacher's structural/route/security
// validator chain in pkg/configvalidator/validators.
package validators

import (
	"context"
	"go/parser"
	"go/token"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// StaticGate checks that Modified content parses as valid Go source.
// It is always critical: nothing downstream can reason about code that
// doesn't parse.
type StaticGate struct{}

func (StaticGate) Name() string           { return "static" }
func (StaticGate) Critical() bool         { return true }
func (StaticGate) Timeout() time.Duration { return 0 }

func (StaticGate) Run(_ context.Context, change domain.CodeModification) domain.GateResult {
	if change.Kind == domain.ModificationDelete {
		return domain.GateResult{GateName: "static", Passed: true, RiskLevel: domain.RiskLow}
	}

	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, change.FilePath, change.Modified, parser.AllErrors)
	if err != nil {
		return domain.GateResult{
			GateName:  "static",
			Passed:    false,
			RiskLevel: domain.RiskCritical,
			Issues:    []string{err.Error()},
		}
	}
	return domain.GateResult{GateName: "static", Passed: true, RiskLevel: domain.RiskLow}
}
