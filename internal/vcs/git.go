// Package vcs implements ports.VcsPort by shelling out to the system
// git binary, the same os/exec-against-an-external-tool pattern the
// teacher uses for pg_dump/psql backups (internal/infrastructure/
// migrations/backup.go) rather than vendoring a pure-Go git
// implementation.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// GitPort is a ports.VcsPort backed by a working tree under Root,
// using lightweight tags as snapshot labels so Snapshot/RollbackTo
// work without a second clone or worktree.
type GitPort struct {
	root   string
	logger *slog.Logger
}

// NewGitPort builds a GitPort rooted at a git working tree.
func NewGitPort(root string, logger *slog.Logger) *GitPort {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitPort{root: root, logger: logger.With("component", "vcs_git")}
}

// Snapshot commits the current working tree state (allowing an empty
// commit if nothing changed) and tags it with label, returning the tag
// name as the snapshot ID.
func (g *GitPort) Snapshot(ctx context.Context, label string) (string, error) {
	tag := sanitizeTag(label)

	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	if _, err := g.run(ctx, "commit", "--allow-empty", "-m", "snapshot: "+tag); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	if _, err := g.run(ctx, "tag", "-f", tag); err != nil {
		return "", fmt.Errorf("git tag: %w", err)
	}

	g.logger.Info("snapshot created", "tag", tag)
	return tag, nil
}

// RollbackTo hard-resets the working tree to snapshotID.
func (g *GitPort) RollbackTo(ctx context.Context, snapshotID string) error {
	if _, err := g.run(ctx, "reset", "--hard", snapshotID); err != nil {
		return fmt.Errorf("git reset --hard %s: %w", snapshotID, err)
	}
	g.logger.Warn("rolled back", "snapshot_id", snapshotID)
	return nil
}

// Commit records the current working tree state with message and
// returns the resulting commit hash.
func (g *GitPort) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	if _, err := g.run(ctx, "commit", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Diff returns the unified diff between two refs.
func (g *GitPort) Diff(ctx context.Context, fromRef, toRef string) (string, error) {
	out, err := g.run(ctx, "diff", fromRef, toRef)
	if err != nil {
		return "", fmt.Errorf("git diff %s..%s: %w", fromRef, toRef, err)
	}
	return out, nil
}

func (g *GitPort) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func sanitizeTag(label string) string {
	replacer := strings.NewReplacer(" ", "-", ":", "-", "/", "-")
	return "autodev/" + replacer.Replace(label)
}
