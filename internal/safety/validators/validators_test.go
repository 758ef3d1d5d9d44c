package validators

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

func TestStaticGateRejectsInvalidSyntax(t *testing.T) {
	g := StaticGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		FilePath: "a.go",
		Kind:     domain.ModificationUpdate,
		Modified: "package a\nfunc broken( {",
	})
	require.False(t, result.Passed)
	require.Equal(t, domain.RiskCritical, result.RiskLevel)
}

func TestStaticGateAcceptsValidSyntax(t *testing.T) {
	g := StaticGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		FilePath: "a.go",
		Kind:     domain.ModificationCreate,
		Modified: "package a\n\nfunc F() {}\n",
	})
	require.True(t, result.Passed)
}

func TestSemanticGateFlagsRemovedExport(t *testing.T) {
	g := SemanticGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationUpdate,
		Original: "package a\n\nfunc Exported() {}\n",
		Modified: "package a\n\nfunc exported() {}\n",
	})
	require.True(t, result.Passed)
	require.Equal(t, domain.RiskMedium, result.RiskLevel)
	require.Len(t, result.Issues, 1)
}

func TestSecurityGateBlocksEmbeddedSecret(t *testing.T) {
	g := SecurityGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		Modified: `apiKey := "sk-abcdef0123456789"`,
	})
	require.False(t, result.Passed)
	require.Equal(t, domain.RiskCritical, result.RiskLevel)
}

func TestPerformanceGateWarnsOnLargeGrowth(t *testing.T) {
	g := PerformanceGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationUpdate,
		Original: "package a\n",
		Modified: "package a\n\n" + strings.Repeat("// padding line\n", 50),
	})
	require.True(t, result.Passed)
	require.Equal(t, domain.RiskMedium, result.RiskLevel)
}

func TestReversibilityGateRejectsUpdateWithoutOriginal(t *testing.T) {
	g := ReversibilityGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		Kind:     domain.ModificationUpdate,
		Original: "",
		Modified: "package a\n",
	})
	require.False(t, result.Passed)
	require.Equal(t, domain.RiskCritical, result.RiskLevel)
}

func TestReversibilityGateAllowsCreate(t *testing.T) {
	g := ReversibilityGate{}
	result := g.Run(context.Background(), domain.CodeModification{
		Kind: domain.ModificationCreate,
	})
	require.True(t, result.Passed)
}
