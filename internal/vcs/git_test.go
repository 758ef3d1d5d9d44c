package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")

	return dir
}

func TestGitPortSnapshotAndRollback(t *testing.T) {
	dir := newTestRepo(t)
	g := NewGitPort(dir, nil)
	ctx := context.Background()

	snapshotID, err := g.Snapshot(ctx, "before change")
	require.NoError(t, err)
	require.NotEmpty(t, snapshotID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two"), 0o644))
	_, err = g.Commit(ctx, "modify a.txt")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "two", string(content))

	require.NoError(t, g.RollbackTo(ctx, snapshotID))

	content, err = os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "one", string(content))
}

func TestGitPortCommitReturnsHash(t *testing.T) {
	dir := newTestRepo(t)
	g := NewGitPort(dir, nil)
	ctx := context.Background()

	hash, err := g.Commit(ctx, "noop commit")
	require.NoError(t, err)
	require.Len(t, hash, 40)
}

func TestGitPortDiffBetweenSnapshots(t *testing.T) {
	dir := newTestRepo(t)
	g := NewGitPort(dir, nil)
	ctx := context.Background()

	first, err := g.Snapshot(ctx, "first")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed"), 0o644))
	second, err := g.Snapshot(ctx, "second")
	require.NoError(t, err)

	diff, err := g.Diff(ctx, first, second)
	require.NoError(t, err)
	require.Contains(t, diff, "changed")
}

func TestSanitizeTagReplacesSpecialCharacters(t *testing.T) {
	require.Equal(t, "autodev/reload-module-a-1234", sanitizeTag("reload module/a:1234"))
}
