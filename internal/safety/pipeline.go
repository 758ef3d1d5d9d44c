// Package safety implements the safety gate pipeline (C5): an ordered
// sequence of validators a proposed modification must pass before it
// may be applied. Modeled on the teacher's multi-phase reload
// coordinator — run every phase, aggregate a total report, and fail
// closed on the first gate that can't be skipped.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// ErrCriticalFileViolation is returned by Run without executing any
// gate when the modification targets a file the coordinator protects
// outright.
var ErrCriticalFileViolation = fmt.Errorf("critical file violation")

// ErrSecurityViolation is returned by Run without executing any gate
// when allowed paths are configured and the modification's file falls
// outside every one of them.
var ErrSecurityViolation = fmt.Errorf("security violation")

// Gate is one stage of the pipeline. Critical gates abort the
// remaining run on failure; non-critical gates still contribute their
// result to the report but let the pipeline continue. Timeout bounds
// how long Run may take before the pipeline synthesizes a failing
// result on its behalf; a Timeout of 0 defers to the pipeline's
// configured default.
type Gate interface {
	Name() string
	Critical() bool
	Timeout() time.Duration
	Run(ctx context.Context, change domain.CodeModification) domain.GateResult
}

// config holds the pipeline's coordinator-level policy, set through
// Options at construction time.
type config struct {
	criticalFiles      []string
	allowedPaths       []string
	failFast           bool
	requireAllGates    bool
	defaultGateTimeout time.Duration
}

// Option configures a Pipeline at construction time.
type Option func(*config)

// WithCriticalFiles denies any modification whose file_path matches
// one of paths outright, before any gate runs. A path may end in
// "/**" to match everything under a prefix.
func WithCriticalFiles(paths ...string) Option {
	return func(c *config) { c.criticalFiles = append(c.criticalFiles, paths...) }
}

// WithAllowedPaths restricts modifications to files under one of
// paths; a non-empty allowlist rejects anything outside it before any
// gate runs.
func WithAllowedPaths(paths ...string) Option {
	return func(c *config) { c.allowedPaths = append(c.allowedPaths, paths...) }
}

// WithFailFast stops the gate loop at the first failing gate,
// critical or not, rather than continuing to collect further results.
func WithFailFast(b bool) Option {
	return func(c *config) { c.failFast = b }
}

// WithRequireAllGates makes Run's overall passed result require every
// gate to pass; without it, the run passes so long as not every gate
// failed.
func WithRequireAllGates(b bool) Option {
	return func(c *config) { c.requireAllGates = b }
}

// WithDefaultGateTimeout bounds any gate that doesn't declare its own
// Timeout().
func WithDefaultGateTimeout(d time.Duration) Option {
	return func(c *config) { c.defaultGateTimeout = d }
}

// Pipeline runs an ordered list of Gates and always produces a
// complete ValidationReport, whether or not the overall run passes —
// except for the coordinator-level critical-file/allowed-path
// preconditions, which by policy short-circuit with an error before
// any gate runs.
type Pipeline struct {
	gates  []Gate
	logger *slog.Logger
	cfg    config
}

// New builds a Pipeline from gates, run in the given order.
func New(logger *slog.Logger, gates []Gate, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline{gates: gates, logger: logger.With("component", "safety_pipeline"), cfg: cfg}
}

// Run executes every gate against change. A critical gate that fails
// always stops the run; a non-critical failure stops it too when
// fail_fast is configured. The coordinator's critical-file and
// allowed-path preconditions are checked first and, on violation,
// return a fatal error with no report produced.
func (p *Pipeline) Run(ctx context.Context, change domain.CodeModification) (domain.ValidationReport, error) {
	if matchesAny(p.cfg.criticalFiles, change.FilePath) {
		return domain.ValidationReport{}, fmt.Errorf("%w: %s", ErrCriticalFileViolation, change.FilePath)
	}
	if len(p.cfg.allowedPaths) > 0 && !matchesAny(p.cfg.allowedPaths, change.FilePath) {
		return domain.ValidationReport{}, fmt.Errorf("%w: %s is not under any allowed path", ErrSecurityViolation, change.FilePath)
	}

	start := time.Now()
	report := domain.ValidationReport{Passed: true}

	var evaluated, failures int
	for _, g := range p.gates {
		select {
		case <-ctx.Done():
			report.Passed = false
			report.AddGateResult(domain.GateResult{
				GateName:  g.Name(),
				Passed:    false,
				RiskLevel: domain.RiskCritical,
				Issues:    []string{"pipeline canceled: " + ctx.Err().Error()},
			})
			report.DurationMS = time.Since(start).Milliseconds()
			return report, nil
		default:
		}

		timeout := g.Timeout()
		if timeout <= 0 {
			timeout = p.cfg.defaultGateTimeout
		}
		result := runGate(ctx, g, change, timeout)
		report.AddGateResult(result)
		evaluated++

		p.logger.Debug("gate evaluated",
			"gate", g.Name(), "passed", result.Passed, "risk", result.RiskLevel.String())

		if !result.Passed {
			failures++
			if g.Critical() {
				p.logger.Warn("critical gate failed, aborting pipeline",
					"gate", g.Name(), "path", change.FilePath)
				break
			}
			if p.cfg.failFast {
				p.logger.Warn("gate failed, fail_fast aborting pipeline",
					"gate", g.Name(), "path", change.FilePath)
				break
			}
		}
	}

	report.Passed = failures == 0 || (!p.cfg.requireAllGates && failures < evaluated)
	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}

// runGate executes g against change, bounded by timeout when positive.
// A gate that doesn't return before its deadline yields a synthetic
// failing result rather than blocking the pipeline indefinitely.
func runGate(ctx context.Context, g Gate, change domain.CodeModification, timeout time.Duration) domain.GateResult {
	if timeout <= 0 {
		return g.Run(ctx, change)
	}

	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan domain.GateResult, 1)
	go func() { resultCh <- g.Run(gctx, change) }()

	select {
	case result := <-resultCh:
		return result
	case <-gctx.Done():
		return domain.GateResult{
			GateName:  g.Name(),
			Passed:    false,
			RiskLevel: domain.RiskHigh,
			Issues:    []string{"timed out"},
		}
	}
}

// matchesAny reports whether path matches one of patterns: an exact
// match, or a "/**" suffix matching anything under that prefix.
func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matchPath(pattern, path) {
			return true
		}
	}
	return false
}

func matchPath(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return pattern == path
}
