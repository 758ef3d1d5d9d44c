package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/decision"
	"github.com/ipiton-systems/autodev-engine/internal/domain"
	"github.com/ipiton-systems/autodev-engine/internal/guard"
	"github.com/ipiton-systems/autodev-engine/internal/queue"
	"github.com/ipiton-systems/autodev-engine/internal/safety"
)

// passGate always passes, used where the pipeline itself isn't under
// test.
type passGate struct{}

func (passGate) Name() string           { return "pass" }
func (passGate) Critical() bool         { return false }
func (passGate) Timeout() time.Duration { return 0 }
func (passGate) Run(context.Context, domain.CodeModification) domain.GateResult {
	return domain.GateResult{GateName: "pass", Passed: true, RiskLevel: domain.RiskLow}
}

// failGate always fails at the given risk level.
type failGate struct {
	risk     domain.RiskLevel
	critical bool
}

func (g failGate) Name() string           { return "fail" }
func (g failGate) Critical() bool         { return g.critical }
func (g failGate) Timeout() time.Duration { return 0 }
func (g failGate) Run(context.Context, domain.CodeModification) domain.GateResult {
	return domain.GateResult{GateName: "fail", Passed: false, RiskLevel: g.risk, Issues: []string{"forced failure"}}
}

// fakeSpecSource returns a fixed body for any path.
type fakeSpecSource struct{ body string }

func (s fakeSpecSource) ReadSpec(context.Context, string) (string, error) { return s.body, nil }
func (s fakeSpecSource) ListSpecs(context.Context) ([]string, error)      { return nil, nil }

// fakeWriter records every write/delete it receives.
type fakeWriter struct {
	mu      sync.Mutex
	written map[string]string
	deleted map[string]bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{written: make(map[string]string), deleted: make(map[string]bool)}
}

func (w *fakeWriter) WriteFile(_ context.Context, path, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written[path] = content
	return nil
}

func (w *fakeWriter) DeleteFile(_ context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted[path] = true
	return nil
}

func (w *fakeWriter) has(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.written[path]
	return v, ok
}

func newTestOrchestrator(t *testing.T, pipeline *safety.Pipeline, writer FileWriter) *Orchestrator {
	t.Helper()
	eng, err := decision.New(nil, decision.WithRules(decision.DefaultRules()))
	require.NoError(t, err)

	q := queue.New(100, nil)
	ld := guard.New(guard.DefaultConfig(), nil)
	builder := &DefaultBuilder{Specs: fakeSpecSource{body: "package widget\n"}}

	cfg := DefaultConfig()
	cfg.DequeuePoll = 5 * time.Millisecond
	cfg.PipelineTimeout = time.Second

	opts := []Option{}
	if writer != nil {
		opts = append(opts, WithFileWriter(writer))
	}
	return New(cfg, ld, eng, q, pipeline, builder, nil, opts...)
}

func TestSubmitProcessesEventIntoAppliedFile(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{passGate{}})
	writer := newFakeWriter()
	o := newTestOrchestrator(t, pipeline, writer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	require.NoError(t, o.Submit(domain.Event{
		Type:       domain.EventSpecChanged,
		SourcePath: "widget.go",
		Timestamp:  time.Now(),
	}))

	require.Eventually(t, func() bool {
		_, ok := writer.has("widget.go")
		return ok
	}, time.Second, 5*time.Millisecond)

	content, ok := writer.has("widget.go")
	require.True(t, ok)
	require.Equal(t, "package widget\n", content)
}

func TestSubmitDropsWhenIngestFull(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{passGate{}})
	o := newTestOrchestrator(t, pipeline, nil)
	o.cfg.IngestBuffer = 0
	o.ingest = make(chan domain.Event) // unbuffered, never started so nothing drains it

	err := o.Submit(domain.Event{Type: domain.EventSpecChanged, SourcePath: "x.go"})
	require.ErrorIs(t, err, ErrIngestFull)
}

func TestLoopDetectorBlocksRepeatedModifications(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{passGate{}})
	writer := newFakeWriter()
	o := newTestOrchestrator(t, pipeline, writer)
	o.loopDetector = guard.New(guard.Config{
		MaxModsPerWindow: 2,
		Window:           time.Minute,
		CooldownDuration: time.Minute,
		LoopThreshold:    2,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, o.Submit(domain.Event{
			Type:       domain.EventSpecChanged,
			SourcePath: "hot.go",
			Timestamp:  time.Now(),
		}))
	}

	require.Eventually(t, func() bool {
		_, ok := writer.has("hot.go")
		return ok
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	writer.mu.Lock()
	writes := 0
	for range writer.written {
		writes++
	}
	writer.mu.Unlock()
	require.Equal(t, 1, writes, "only the first submission should pass before the loop detector's threshold and cooldown kick in")
}

func TestModGuardDeniesCriticalPath(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{passGate{}})
	writer := newFakeWriter()
	o := newTestOrchestrator(t, pipeline, writer)
	o.modGuard = guard.NewModificationGuard(guard.DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	require.NoError(t, o.Submit(domain.Event{
		Type:       domain.EventSpecChanged,
		SourcePath: "internal/guard/policy.go",
		Timestamp:  time.Now(),
	}))

	time.Sleep(100 * time.Millisecond)
	_, ok := writer.has("internal/guard/policy.go")
	require.False(t, ok, "critical-path modification must never be applied")
}

func TestCriticalPipelineFailureIsNotRequeued(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{failGate{risk: domain.RiskCritical, critical: true}})
	writer := newFakeWriter()
	o := newTestOrchestrator(t, pipeline, writer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	require.NoError(t, o.Submit(domain.Event{
		Type:       domain.EventSpecChanged,
		SourcePath: "danger.go",
		Timestamp:  time.Now(),
	}))

	require.Eventually(t, func() bool {
		return o.q.Stats().Resident == 0 && o.q.Stats().Enqueued == 1
	}, time.Second, 5*time.Millisecond)

	_, ok := writer.has("danger.go")
	require.False(t, ok)
	require.Equal(t, uint64(0), o.q.Stats().Processed)
}

func TestNonCriticalPipelineFailureIsRequeued(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{failGate{risk: domain.RiskMedium, critical: false}})
	o := newTestOrchestrator(t, pipeline, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	require.NoError(t, o.Submit(domain.Event{
		Type:       domain.EventSpecChanged,
		SourcePath: "retry.go",
		Timestamp:  time.Now(),
	}))

	require.Eventually(t, func() bool {
		return o.q.Stats().Failed > 0
	}, time.Second, 5*time.Millisecond, "should retry until max attempts then count as failed")
}

func TestModuleResolverTriggersHotReloadError(t *testing.T) {
	pipeline := safety.New(nil, []safety.Gate{passGate{}})
	writer := newFakeWriter()
	o := newTestOrchestrator(t, pipeline, writer)
	o.resolver = resolverFunc(func(path string) (string, bool) { return "widget-module", true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer func() { require.NoError(t, o.Stop(context.Background())) }()

	require.NoError(t, o.Submit(domain.Event{
		Type:       domain.EventSpecChanged,
		SourcePath: "widget.go",
		Timestamp:  time.Now(),
	}))

	require.Eventually(t, func() bool {
		return o.q.Stats().Failed > 0 || o.q.Stats().Resident > 0
	}, time.Second, 5*time.Millisecond, "hot-reload not configured should leave the change unresolved, not silently applied")
}

type resolverFunc func(path string) (string, bool)

func (f resolverFunc) ResolveModule(path string) (string, bool) { return f(path) }

func TestContentHashEmptyWithoutMetadata(t *testing.T) {
	require.Equal(t, "", contentHash(domain.Event{SourcePath: "x"}))
}

func TestContentHashDerivedFromMetadataContent(t *testing.T) {
	h1 := contentHash(domain.Event{Metadata: map[string]interface{}{"content": "a"}})
	h2 := contentHash(domain.Event{Metadata: map[string]interface{}{"content": "b"}})
	require.NotEmpty(t, h1)
	require.NotEqual(t, h1, h2)
}

func TestErrIngestFullMessage(t *testing.T) {
	require.Equal(t, "orchestrator: ingest channel full", fmt.Sprint(ErrIngestFull))
}
