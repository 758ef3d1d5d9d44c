package decision

import (
	"strings"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// PatternMatcher finds a previously solved pattern applicable to an
// event, letting the engine reuse a known-good transformation instead
// of escalating to an LLM request.
type PatternMatcher interface {
	// Match returns the pattern ID, true if evt resembles a pattern the
	// matcher knows about.
	Match(evt domain.Event) (string, bool)
}

// NoopPatternMatcher never matches. It is the default when a caller
// doesn't supply a real pattern library.
type NoopPatternMatcher struct{}

func (NoopPatternMatcher) Match(domain.Event) (string, bool) { return "", false }

// StaticPatternMatcher matches purely on a source-path substring,
// looking up a fixed table built ahead of time. Intended for small,
// hand-curated pattern libraries; larger corpora should implement
// PatternMatcher against a real index instead.
type StaticPatternMatcher struct {
	bySubstring map[string]string
}

// NewStaticPatternMatcher builds a matcher from a substring-to-pattern
// table, checked in map iteration order (undefined) against
// evt.SourcePath; ties between overlapping substrings are not
// resolved deterministically and should be avoided by the caller.
func NewStaticPatternMatcher(bySubstring map[string]string) *StaticPatternMatcher {
	return &StaticPatternMatcher{bySubstring: bySubstring}
}

func (m *StaticPatternMatcher) Match(evt domain.Event) (string, bool) {
	for substr, patternID := range m.bySubstring {
		if substr != "" && strings.Contains(evt.SourcePath, substr) {
			return patternID, true
		}
	}
	return "", false
}
