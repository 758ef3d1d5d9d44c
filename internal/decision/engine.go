package decision

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// Engine implements C4: it classifies an Event into a Decision by
// walking an ordered rule chain, consulting a pattern matcher before
// falling back to an LLM request, and caching the result so repeat
// events within the TTL resolve without re-running the chain.
type Engine struct {
	rules   []Rule
	pattern PatternMatcher
	l1      *lru.Cache[string, domain.Decision]
	l2      Cache
	logger  *slog.Logger
	tier    domain.ModelTier
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRules overrides the default rule chain.
func WithRules(rules []Rule) Option { return func(e *Engine) { e.rules = rules } }

// WithPatternMatcher supplies a non-default PatternMatcher.
func WithPatternMatcher(m PatternMatcher) Option { return func(e *Engine) { e.pattern = m } }

// WithL2Cache attaches a Redis-backed L2 cache (Standard deployment
// profile). Omit for Lite, where L1 alone is sufficient.
func WithL2Cache(c Cache) Option { return func(e *Engine) { e.l2 = c } }

// WithFallbackTier sets the model tier used when no rule or pattern
// resolves the event and the decision must fall back to an LLM request.
func WithFallbackTier(tier domain.ModelTier) Option {
	return func(e *Engine) { e.tier = tier }
}

// New builds an Engine with a 1000-entry L1 cache and the default rule
// chain, customized by opts.
func New(logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l1, err := lru.New[string, domain.Decision](1000)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		rules:   DefaultRules(),
		pattern: NoopPatternMatcher{},
		l1:      l1,
		logger:  logger.With("component", "decision_engine"),
		tier:    domain.ModelTierBalance,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decide classifies evt into a Decision. The same (event type, source
// path) pair resolves to the same Decision for the lifetime of the
// cache entry, making the outcome deterministic within the TTL window.
func (e *Engine) Decide(ctx context.Context, evt domain.Event) (domain.Decision, error) {
	key := cacheKey(evt)

	if d, ok := e.l1.Get(key); ok {
		return d, nil
	}

	if e.l2 != nil {
		if d, found, err := e.l2.Get(ctx, key); err == nil && found {
			e.l1.Add(key, d)
			return d, nil
		} else if err != nil {
			e.logger.Warn("L2 cache read failed, continuing without it", "error", err)
		}
	}

	d := e.resolve(evt)

	e.l1.Add(key, d)
	if e.l2 != nil {
		if err := e.l2.Set(ctx, key, d, cacheTTL); err != nil {
			e.logger.Warn("L2 cache write failed", "error", err)
		}
	}
	return d, nil
}

// resolve runs the rule chain, then the pattern matcher, then falls
// back to an LLM request. First match wins at every stage.
func (e *Engine) resolve(evt domain.Event) domain.Decision {
	for _, r := range e.rules {
		if r.Match(evt) {
			e.logger.Debug("rule matched", "rule", r.Name(), "event_type", evt.Type, "path", evt.SourcePath)
			return r.Apply(evt)
		}
	}

	if patternID, ok := e.pattern.Match(evt); ok {
		e.logger.Debug("pattern matched", "pattern_id", patternID, "path", evt.SourcePath)
		return domain.NewUsePatternDecision(patternID)
	}

	e.logger.Debug("no rule or pattern matched, falling back to LLM", "event_type", evt.Type, "path", evt.SourcePath)
	return domain.NewRequiresLLMDecision(domain.LLMRequest{
		Tier:    e.tier,
		Prompt:  "Determine the appropriate code modification for this event.",
		Context: evt.SourcePath,
	})
}

// InvalidateCache drops any cached decision for evt's key, forcing the
// next Decide to re-run the chain.
func (e *Engine) InvalidateCache(ctx context.Context, evt domain.Event) {
	e.l1.Remove(cacheKey(evt))
}

func cacheKey(evt domain.Event) string {
	return string(evt.Type) + "|" + evt.SourcePath
}
