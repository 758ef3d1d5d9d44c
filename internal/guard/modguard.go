package guard

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Status tags the outcome of a Validate call.
type Status string

const (
	StatusAllowed        Status = "allowed"
	StatusRequiresReview Status = "requires_review"
	StatusDenied         Status = "denied"
)

// VerifyResult is the outcome of one Validate call.
type VerifyResult struct {
	Status Status
	Reason string
}

// Rule is one path-matching policy rule. Pattern supports a "**"
// suffix (matches any path under the prefix) and a single trailing
// "*" (matches exactly one path segment under the prefix); anything
// else is an exact path match.
type Rule struct {
	Pattern string
	Status  Status
	Reason  string
}

// Policy bounds what the modification guard will allow through
// unreviewed.
type Policy struct {
	// CriticalPaths are denied outright regardless of content.
	CriticalPaths []string
	// AllowedExtensions is the set of file extensions (with leading
	// dot, e.g. ".go") that may be modified at all. Empty means no
	// extension restriction.
	AllowedExtensions []string
	// MaxFileSize is the largest Modified content, in bytes, that may
	// pass without review.
	MaxFileSize int
	// DangerousPatterns are regexes whose presence in Modified content
	// forces RequiresReview.
	DangerousPatterns []string
	// Rules are evaluated in order after the built-in checks; the
	// first match wins.
	Rules []Rule
}

// DefaultPolicy mirrors the baseline guard rails: deny the module's own
// safety machinery, cap file size at 1MiB, and flag common
// privilege-escalation idioms for review.
func DefaultPolicy() Policy {
	return Policy{
		CriticalPaths: []string{
			"internal/guard/**",
			"internal/safety/**",
			"go.mod",
			"go.sum",
		},
		MaxFileSize: 1 << 20,
		DangerousPatterns: []string{
			`os\.Exec|exec\.Command`,
			`unsafe\.Pointer`,
			`syscall\.`,
		},
	}
}

// ModificationGuard implements C3: static screening of a proposed
// modification before it ever reaches a gate pipeline run.
type ModificationGuard struct {
	mu       sync.RWMutex
	policy   Policy
	compiled []*regexp.Regexp
}

// NewModificationGuard compiles policy's dangerous-content patterns and
// returns a ready ModificationGuard. An invalid regex is skipped rather
// than treated as a startup failure, since the screen is
// defense-in-depth, not the only gate.
func NewModificationGuard(policy Policy) *ModificationGuard {
	g := &ModificationGuard{policy: policy}
	for _, p := range policy.DangerousPatterns {
		if re, err := regexp.Compile(p); err == nil {
			g.compiled = append(g.compiled, re)
		}
	}
	return g
}

// Validate screens a proposed modification to path carrying content.
// Checks run in order: critical-path denial, extension allowlist, size
// limit, dangerous-content screening, then custom rules. The first
// check that doesn't pass decides the result.
func (g *ModificationGuard) Validate(path, content string) VerifyResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, cp := range g.policy.CriticalPaths {
		if matchPattern(cp, path) {
			return VerifyResult{Status: StatusDenied, Reason: "path is under guard protection: " + cp}
		}
	}

	if len(g.policy.AllowedExtensions) > 0 {
		ext := filepath.Ext(path)
		if !containsString(g.policy.AllowedExtensions, ext) {
			return VerifyResult{Status: StatusDenied, Reason: "extension not in allowlist: " + ext}
		}
	}

	if g.policy.MaxFileSize > 0 && len(content) > g.policy.MaxFileSize {
		return VerifyResult{Status: StatusDenied, Reason: "content exceeds maximum file size"}
	}

	for i, re := range g.compiled {
		if re.MatchString(content) {
			return VerifyResult{Status: StatusRequiresReview, Reason: "matched dangerous pattern: " + g.policy.DangerousPatterns[i]}
		}
	}

	for _, r := range g.policy.Rules {
		if matchPattern(r.Pattern, path) {
			return VerifyResult{Status: r.Status, Reason: r.Reason}
		}
	}

	return VerifyResult{Status: StatusAllowed}
}

// matchPattern anchors at the start of path: a "**" suffix matches any
// path under the prefix, a single trailing "*" matches exactly one
// path segment under the prefix, otherwise the pattern must equal path
// exactly.
func matchPattern(pattern, path string) bool {
	switch {
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		rest := strings.TrimPrefix(path, prefix+"/")
		if rest == path {
			return false
		}
		return !strings.Contains(rest, "/")
	default:
		return pattern == path
	}
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
