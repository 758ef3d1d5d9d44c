package ports

import "github.com/ipiton-systems/autodev-engine/internal/domain"

// CostEstimator gives the orchestrator an advisory, pre-dispatch cost
// figure for a RequiresLLM decision's request, so tier selection and
// budget checks can happen before the external LlmPort is ever called.
// Purely advisory: nothing in this package enforces the estimate
// against an actual bill, since cost tracking and billing are out of
// scope.
type CostEstimator interface {
	// EstimateCost returns an implementation-defined cost unit (e.g.
	// fractional cents, or an abstract "credit") for req, without
	// performing the request.
	EstimateCost(req domain.LLMRequest) float64
}

// TierCostEstimator is a CostEstimator driven by a fixed per-tier
// per-token rate table, the simplest estimator that still lets callers
// differentiate fast/balanced/deep requests.
type TierCostEstimator struct {
	// RatePerToken maps a ModelTier to its cost per token. A tier
	// missing from the table falls back to DefaultRate.
	RatePerToken map[domain.ModelTier]float64
	DefaultRate  float64
}

// NewTierCostEstimator builds a TierCostEstimator with the baseline
// relative rates fast < balanced < deep.
func NewTierCostEstimator() *TierCostEstimator {
	return &TierCostEstimator{
		RatePerToken: map[domain.ModelTier]float64{
			domain.ModelTierFast:    0.0005,
			domain.ModelTierBalance: 0.002,
			domain.ModelTierDeep:    0.01,
		},
		DefaultRate: 0.002,
	}
}

// EstimateCost multiplies req.MaxTokens (or a length-derived estimate
// when MaxTokens is unset) by the tier's rate.
func (e *TierCostEstimator) EstimateCost(req domain.LLMRequest) float64 {
	rate, ok := e.RatePerToken[req.Tier]
	if !ok {
		rate = e.DefaultRate
	}
	tokens := req.MaxTokens
	if tokens <= 0 {
		tokens = estimateTokensFromPrompt(req.Prompt)
	}
	return float64(tokens) * rate
}

// estimateTokensFromPrompt approximates token count from prompt length
// using the common ~4-characters-per-token heuristic, used only when a
// request carries no explicit MaxTokens.
func estimateTokensFromPrompt(prompt string) int {
	const charsPerToken = 4
	if len(prompt) == 0 {
		return 0
	}
	tokens := len(prompt) / charsPerToken
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
