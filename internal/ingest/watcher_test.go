package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeSubmitter) Submit(evt domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestWatcherSubmitsEventOnFileCreate(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}

	w, err := New(sub, nil, []string{dir}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.go"), []byte("package x"), 0o644))

	require.Eventually(t, func() bool { return sub.count() > 0 }, time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresMatchingPaths(t *testing.T) {
	dir := t.TempDir()
	ignoredDir := filepath.Join(dir, "vendor")
	require.NoError(t, os.Mkdir(ignoredDir, 0o755))
	sub := &fakeSubmitter{}

	w, err := New(sub, nil, []string{dir}, []string{"vendor"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(ignoredDir, "new.go"), []byte("package x"), 0o644))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, sub.count())
}

func TestWatcherClassifiesSpecChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "specs"), 0o755))
	sub := &fakeSubmitter{}

	w, err := New(sub, nil, []string{dir}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	specPath := filepath.Join(dir, "specs", "feature.md")
	require.NoError(t, os.WriteFile(specPath, []byte("spec"), 0o644))

	require.Eventually(t, func() bool { return sub.count() > 0 }, time.Second, 10*time.Millisecond)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Equal(t, domain.EventSpecChanged, sub.events[0].Type)
}
