package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
	"github.com/ipiton-systems/autodev-engine/internal/safety/validators"
)

func TestPipelinePassesCleanModification(t *testing.T) {
	p := New(nil, []Gate{validators.StaticGate{}, validators.SemanticGate{}, validators.SecurityGate{},
		validators.PerformanceGate{}, validators.ReversibilityGate{}})

	report, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "a.go",
		Kind:     domain.ModificationCreate,
		Modified: "package a\n\nfunc F() {}\n",
	})

	require.NoError(t, err)
	require.True(t, report.Passed)
	require.Len(t, report.GateResults, 5)
	require.Equal(t, domain.RiskLow, report.RiskLevel)
}

func TestPipelineAbortsOnCriticalFailure(t *testing.T) {
	p := New(nil, []Gate{validators.StaticGate{}, validators.SemanticGate{}})

	report, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "a.go",
		Kind:     domain.ModificationCreate,
		Modified: "not valid go {{{",
	})

	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Len(t, report.GateResults, 1)
	require.Equal(t, "static", report.GateResults[0].GateName)
}

func TestPipelineContinuesPastNonCriticalFailure(t *testing.T) {
	p := New(nil, []Gate{validators.SecurityGate{}, validators.PerformanceGate{}})

	report, err := p.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationUpdate,
		Original: "package a\n",
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.True(t, report.Passed)
	require.Len(t, report.GateResults, 2)
}

func TestPipelineRespectsContextCancellation(t *testing.T) {
	p := New(nil, []Gate{validators.StaticGate{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, domain.CodeModification{Kind: domain.ModificationCreate, Modified: "package a\n"})
	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Len(t, report.GateResults, 1)
	require.Equal(t, domain.RiskCritical, report.GateResults[0].RiskLevel)
}

func TestPipelineRejectsCriticalFile(t *testing.T) {
	p := New(nil, []Gate{validators.StaticGate{}}, WithCriticalFiles("internal/config/**"))

	_, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "internal/config/secrets.go",
		Kind:     domain.ModificationUpdate,
		Original: "package config\n",
		Modified: "package config\n",
	})

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCriticalFileViolation))
}

func TestPipelineRejectsPathOutsideAllowlist(t *testing.T) {
	p := New(nil, []Gate{validators.StaticGate{}}, WithAllowedPaths("internal/plugins/**"))

	_, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "internal/config/secrets.go",
		Kind:     domain.ModificationUpdate,
		Original: "package config\n",
		Modified: "package config\n",
	})

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSecurityViolation))
}

func TestPipelineAllowsPathInsideAllowlist(t *testing.T) {
	p := New(nil, []Gate{validators.StaticGate{}}, WithAllowedPaths("internal/plugins/**"))

	report, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "internal/plugins/foo.go",
		Kind:     domain.ModificationCreate,
		Modified: "package plugins\n",
	})

	require.NoError(t, err)
	require.True(t, report.Passed)
}

type slowGate struct {
	name     string
	critical bool
	delay    time.Duration
	timeout  time.Duration
}

func (g slowGate) Name() string           { return g.name }
func (g slowGate) Critical() bool         { return g.critical }
func (g slowGate) Timeout() time.Duration { return g.timeout }

func (g slowGate) Run(ctx context.Context, _ domain.CodeModification) domain.GateResult {
	select {
	case <-time.After(g.delay):
		return domain.GateResult{GateName: g.name, Passed: true, RiskLevel: domain.RiskLow}
	case <-ctx.Done():
		return domain.GateResult{GateName: g.name, Passed: false, RiskLevel: domain.RiskHigh, Issues: []string{"canceled"}}
	}
}

func TestPipelineSynthesizesTimeoutResult(t *testing.T) {
	g := slowGate{name: "slow", delay: 50 * time.Millisecond, timeout: 5 * time.Millisecond}
	p := New(nil, []Gate{g})

	report, err := p.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationCreate,
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Len(t, report.GateResults, 1)
	require.Equal(t, domain.RiskHigh, report.GateResults[0].RiskLevel)
	require.Equal(t, []string{"timed out"}, report.GateResults[0].Issues)
}

func TestPipelineUsesDefaultTimeoutWhenGateDeclaresNone(t *testing.T) {
	g := slowGate{name: "slow", delay: 50 * time.Millisecond}
	p := New(nil, []Gate{g}, WithDefaultGateTimeout(5*time.Millisecond))

	report, err := p.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationCreate,
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Equal(t, []string{"timed out"}, report.GateResults[0].Issues)
}

type failingGate struct{ name string }

func (g failingGate) Name() string           { return g.name }
func (g failingGate) Critical() bool         { return false }
func (g failingGate) Timeout() time.Duration { return 0 }
func (g failingGate) Run(_ context.Context, _ domain.CodeModification) domain.GateResult {
	return domain.GateResult{GateName: g.name, Passed: false, RiskLevel: domain.RiskMedium, Issues: []string{"deliberate failure"}}
}

func TestPipelineFailFastStopsAtFirstNonCriticalFailure(t *testing.T) {
	p := New(nil, []Gate{
		failingGate{name: "first"},
		validators.PerformanceGate{},
	}, WithFailFast(true))

	report, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "a.go",
		Kind:     domain.ModificationUpdate,
		Original: "package a\n",
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.False(t, report.Passed)
	require.Len(t, report.GateResults, 1, "fail_fast must stop before the second gate runs")
	require.Equal(t, "first", report.GateResults[0].GateName)
}

func TestPipelineWithoutFailFastContinuesPastNonCriticalFailure(t *testing.T) {
	p := New(nil, []Gate{
		failingGate{name: "first"},
		validators.PerformanceGate{},
	})

	report, err := p.Run(context.Background(), domain.CodeModification{
		FilePath: "a.go",
		Kind:     domain.ModificationUpdate,
		Original: "package a\n",
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.True(t, report.Passed, "one non-critical failure out of two gates still passes without require_all_gates")
	require.Len(t, report.GateResults, 2)
}

func TestPipelineRequireAllGatesFailsOnAnyNonCriticalFailure(t *testing.T) {
	p := New(nil, []Gate{failingGate{name: "first"}, validators.PerformanceGate{}}, WithRequireAllGates(true))

	report, err := p.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationUpdate,
		Original: "package a\n",
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.False(t, report.Passed, "require_all_gates must fail the run on any single gate failure")
	require.Len(t, report.GateResults, 2)
}

func TestPipelineWithoutRequireAllGatesPassesOnPartialFailure(t *testing.T) {
	p := New(nil, []Gate{failingGate{name: "first"}, validators.PerformanceGate{}})

	report, err := p.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationUpdate,
		Original: "package a\n",
		Modified: "package a\n",
	})

	require.NoError(t, err)
	require.True(t, report.Passed, "without require_all_gates, not every gate failing still passes")
	require.Len(t, report.GateResults, 2)
}
