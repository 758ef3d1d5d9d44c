package ports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

func TestTierCostEstimatorUsesExplicitMaxTokens(t *testing.T) {
	e := NewTierCostEstimator()
	cost := e.EstimateCost(domain.LLMRequest{Tier: domain.ModelTierDeep, MaxTokens: 1000})
	require.InDelta(t, 10.0, cost, 0.0001)
}

func TestTierCostEstimatorFallsBackToDefaultRate(t *testing.T) {
	e := NewTierCostEstimator()
	e.RatePerToken = map[domain.ModelTier]float64{}
	e.DefaultRate = 1.0
	cost := e.EstimateCost(domain.LLMRequest{Tier: domain.ModelTierFast, MaxTokens: 5})
	require.InDelta(t, 5.0, cost, 0.0001)
}

func TestTierCostEstimatorDerivesTokensFromPromptLength(t *testing.T) {
	e := NewTierCostEstimator()
	cost := e.EstimateCost(domain.LLMRequest{Tier: domain.ModelTierBalance, Prompt: "12345678"})
	require.InDelta(t, 0.004, cost, 0.0001)
}

func TestTierCostEstimatorEmptyPromptNoTokens(t *testing.T) {
	e := NewTierCostEstimator()
	cost := e.EstimateCost(domain.LLMRequest{Tier: domain.ModelTierBalance})
	require.Equal(t, 0.0, cost)
}

func TestTierCostEstimatorDeeperTierCostsMore(t *testing.T) {
	e := NewTierCostEstimator()
	fast := e.EstimateCost(domain.LLMRequest{Tier: domain.ModelTierFast, MaxTokens: 100})
	deep := e.EstimateCost(domain.LLMRequest{Tier: domain.ModelTierDeep, MaxTokens: 100})
	require.Greater(t, deep, fast)
}
