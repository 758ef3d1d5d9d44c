// Package ingest implements the event loop's file-system watcher
// ingest source (spec.md §4.11 step 1: "from external file-system
// watcher, test runner, or scheduler"). It is the one concrete
// producer of domain.Event in this module; test runners and
// schedulers are expected to call orchestrator.Submit directly.
package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// Submitter is the narrow slice of orchestrator.Orchestrator the
// watcher depends on, kept separate so tests can fake it without
// constructing a full orchestrator.
type Submitter interface {
	Submit(evt domain.Event) error
}

// Watcher recursively watches a set of root directories and turns
// fsnotify events into domain.Events submitted to an Orchestrator.
// Grounded on the teacher's realtime event bus for the
// "background goroutine feeding a channel-backed consumer" shape,
// adapted here to the producer side: fsnotify feeds this watcher the
// way a publisher feeds internal/realtime/bus.go's subscribers.
type Watcher struct {
	fsw       *fsnotify.Watcher
	submitter Submitter
	logger    *slog.Logger
	ignore    []string

	idSeq uint64
	mu    sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Watcher over roots, recursively adding every
// subdirectory (fsnotify only watches one level at a time).
func New(submitter Submitter, logger *slog.Logger, roots []string, ignore []string) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:       fsw,
		submitter: submitter,
		logger:    logger.With("component", "ingest_watcher"),
		ignore:    ignore,
		stop:      make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if w.shouldIgnore(path) {
				return filepath.SkipDir
			}
			if addErr := w.fsw.Add(path); addErr != nil {
				w.logger.Warn("failed to watch directory", "path", path, "error", addErr)
			}
		}
		return nil
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	for _, pattern := range w.ignore {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// Start launches the event-translation goroutine. Call Stop to drain
// it.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop signals the watcher to exit and closes the underlying fsnotify
// watcher.
func (w *Watcher) Stop() error {
	close(w.stop)
	w.wg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.shouldIgnore(ev.Name) {
		return
	}

	var evtType domain.EventType
	switch {
	case ev.Has(fsnotify.Create):
		evtType = domain.EventFileCreated
	case ev.Has(fsnotify.Write):
		evtType = domain.EventFileModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		evtType = domain.EventFileDeleted
	default:
		return
	}

	if strings.HasSuffix(ev.Name, "_spec.md") || strings.Contains(ev.Name, "/specs/") {
		evtType = domain.EventSpecChanged
	} else if strings.HasSuffix(ev.Name, "_test.go") {
		if evtType == domain.EventFileCreated {
			evtType = domain.EventTestAdded
		}
	}

	evt := domain.Event{
		ID:         w.nextID(),
		Type:       evtType,
		SourcePath: ev.Name,
		Timestamp:  time.Now(),
	}

	if err := w.submitter.Submit(evt); err != nil {
		w.logger.Warn("dropping watched event", "path", ev.Name, "error", err)
	}
}

func (w *Watcher) nextID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.idSeq++
	return "watch-" + strconv.FormatUint(w.idSeq, 10)
}
