package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCriticalPathDenied(t *testing.T) {
	g := NewModificationGuard(DefaultPolicy())
	r := g.Validate("internal/guard/loopdetector.go", "package guard")
	require.Equal(t, StatusDenied, r.Status)
}

func TestGoModDenied(t *testing.T) {
	g := NewModificationGuard(DefaultPolicy())
	r := g.Validate("go.mod", "module example.com/x")
	require.Equal(t, StatusDenied, r.Status)
}

func TestOrdinaryFileAllowed(t *testing.T) {
	g := NewModificationGuard(DefaultPolicy())
	r := g.Validate("internal/decision/engine.go", "package decision")
	require.Equal(t, StatusAllowed, r.Status)
}

func TestExtensionNotAllowlisted(t *testing.T) {
	policy := DefaultPolicy()
	policy.AllowedExtensions = []string{".go", ".toml"}
	g := NewModificationGuard(policy)
	r := g.Validate("scripts/deploy.sh", "#!/bin/sh")
	require.Equal(t, StatusDenied, r.Status)
}

func TestMaxFileSizeBoundary(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxFileSize = 10
	g := NewModificationGuard(policy)

	atLimit := g.Validate("a.go", strings.Repeat("x", 10))
	require.Equal(t, StatusAllowed, atLimit.Status)

	overLimit := g.Validate("a.go", strings.Repeat("x", 11))
	require.Equal(t, StatusDenied, overLimit.Status)
}

func TestDangerousContentRequiresReview(t *testing.T) {
	g := NewModificationGuard(DefaultPolicy())
	r := g.Validate("internal/runner/exec.go", `exec.Command("rm", "-rf", path)`)
	require.Equal(t, StatusRequiresReview, r.Status)
}

func TestCustomRuleDoubleStarMatchesPrefix(t *testing.T) {
	policy := DefaultPolicy()
	policy.Rules = []Rule{
		{Pattern: "vendor/**", Status: StatusRequiresReview, Reason: "vendored dependency"},
	}
	g := NewModificationGuard(policy)

	r := g.Validate("vendor/github.com/pkg/errors/errors.go", "package errors")
	require.Equal(t, StatusRequiresReview, r.Status)

	notMatched := g.Validate("vendored-notes.md", "not under vendor/")
	require.Equal(t, StatusAllowed, notMatched.Status)
}

func TestCustomRuleSingleStarOneSegment(t *testing.T) {
	policy := DefaultPolicy()
	policy.Rules = []Rule{
		{Pattern: "cmd/*", Status: StatusRequiresReview, Reason: "entrypoint change"},
	}
	g := NewModificationGuard(policy)

	oneLevel := g.Validate("cmd/main.go", "package main")
	require.Equal(t, StatusRequiresReview, oneLevel.Status)

	twoLevels := g.Validate("cmd/sub/main.go", "package main")
	require.Equal(t, StatusAllowed, twoLevels.Status)
}
