package safety

import (
	"context"
	"fmt"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// Fixture is one entry in a self-test corpus: a modification plus the
// pipeline outcome it's expected to produce.
type Fixture struct {
	Name          string
	Change        domain.CodeModification
	ExpectPassed  bool
	ExpectAtLeast domain.RiskLevel
}

// FixtureFailure describes one fixture whose actual pipeline run
// disagreed with its expectation.
type FixtureFailure struct {
	Fixture Fixture
	Report  domain.ValidationReport
	Reason  string
}

func (f FixtureFailure) String() string {
	return fmt.Sprintf("%s: %s (passed=%v risk=%s)", f.Fixture.Name, f.Reason, f.Report.Passed, f.Report.RiskLevel)
}

// SelfTestSuite runs a Pipeline against a fixed corpus of fixture
// modifications as a regression check that the gate chain still
// classifies known-good and known-bad changes the way it always has.
// It is a test helper, not a runtime code path: the pipeline itself
// never consults it.
type SelfTestSuite struct {
	pipeline *Pipeline
	fixtures []Fixture
}

// NewSelfTestSuite builds a SelfTestSuite running against pipeline.
func NewSelfTestSuite(pipeline *Pipeline, fixtures ...Fixture) *SelfTestSuite {
	return &SelfTestSuite{pipeline: pipeline, fixtures: fixtures}
}

// Run executes every fixture against the pipeline and returns the
// fixtures whose outcome disagreed with its expectation. An empty
// result means every fixture's expectation held.
func (s *SelfTestSuite) Run(ctx context.Context) []FixtureFailure {
	var failures []FixtureFailure
	for _, fx := range s.fixtures {
		report, err := s.pipeline.Run(ctx, fx.Change)
		if err != nil {
			failures = append(failures, FixtureFailure{
				Fixture: fx,
				Report:  report,
				Reason:  fmt.Sprintf("pipeline precondition failed: %v", err),
			})
			continue
		}

		if report.Passed != fx.ExpectPassed {
			failures = append(failures, FixtureFailure{
				Fixture: fx,
				Report:  report,
				Reason:  fmt.Sprintf("expected passed=%v", fx.ExpectPassed),
			})
			continue
		}
		if report.RiskLevel < fx.ExpectAtLeast {
			failures = append(failures, FixtureFailure{
				Fixture: fx,
				Report:  report,
				Reason:  fmt.Sprintf("expected risk at least %s", fx.ExpectAtLeast),
			})
		}
	}
	return failures
}
