// Package orchestrator implements the event loop (C11): the glue that
// drives an ingested Event through the loop detector and modification
// guard, the decision engine, the priority queue, the safety pipeline,
// and finally into an applied change or a triggered hot-reload. The
// ingest-channel-plus-background-worker shape is modeled on the
// teacher's DefaultEventBus: a buffered channel, a stop channel, and a
// sync.WaitGroup the caller can drain on Stop.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/decision"
	"github.com/ipiton-systems/autodev-engine/internal/domain"
	"github.com/ipiton-systems/autodev-engine/internal/guard"
	"github.com/ipiton-systems/autodev-engine/internal/hotreload"
	"github.com/ipiton-systems/autodev-engine/internal/metrics"
	"github.com/ipiton-systems/autodev-engine/internal/ports"
	"github.com/ipiton-systems/autodev-engine/internal/queue"
	"github.com/ipiton-systems/autodev-engine/internal/safety"
)

// Config bounds the orchestrator's concurrency and timeouts.
type Config struct {
	IngestBuffer    int
	Workers         int
	DequeuePoll     time.Duration
	PipelineTimeout time.Duration
}

// DefaultConfig returns reasonable single-process defaults.
func DefaultConfig() Config {
	return Config{
		IngestBuffer:    256,
		Workers:         4,
		DequeuePoll:     50 * time.Millisecond,
		PipelineTimeout: 30 * time.Second,
	}
}

// ErrIngestFull is returned by Submit when the ingest channel has no
// free capacity; the caller observes neither silent loss nor blocking.
var ErrIngestFull = fmt.Errorf("orchestrator: ingest channel full")

// Orchestrator wires C1-C10 together into the running pipeline
// described in the event-loop contract.
type Orchestrator struct {
	cfg Config

	loopDetector *guard.LoopDetector
	modGuard     *guard.ModificationGuard
	engine       *decision.Engine
	q            *queue.Queue
	pipeline     *safety.Pipeline
	builder      ModificationBuilder

	writer   FileWriter
	resolver ModuleResolver
	loader   ModuleLoader
	reload   *hotreload.Orchestrator

	audit ports.AuditSink
	clock ports.Clock

	logger *slog.Logger

	ingest chan domain.Event
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithModificationGuard attaches the static content/extension screen
// (C3) run before a built modification is enqueued.
func WithModificationGuard(g *guard.ModificationGuard) Option {
	return func(o *Orchestrator) { o.modGuard = g }
}

// WithFileWriter attaches the filesystem sink an approved modification
// is written through.
func WithFileWriter(w FileWriter) Option { return func(o *Orchestrator) { o.writer = w } }

// WithModuleReload wires module-targeted modifications through the
// hot-reload orchestrator (C9): resolver identifies whether a path is a
// loaded module's binary, loader builds the new runtime.Module to swap
// in.
func WithModuleReload(resolver ModuleResolver, loader ModuleLoader, reload *hotreload.Orchestrator) Option {
	return func(o *Orchestrator) {
		o.resolver = resolver
		o.loader = loader
		o.reload = reload
	}
}

// WithAuditSink attaches the audit trail modifications and drops are
// recorded to.
func WithAuditSink(a ports.AuditSink) Option { return func(o *Orchestrator) { o.audit = a } }

// WithClock overrides the wall clock the loop detector is driven with,
// for deterministic tests.
func WithClock(c ports.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// New builds an Orchestrator. A zero-value Config is replaced with
// DefaultConfig.
func New(
	cfg Config,
	loopDetector *guard.LoopDetector,
	engine *decision.Engine,
	q *queue.Queue,
	pipeline *safety.Pipeline,
	builder ModificationBuilder,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:          cfg,
		loopDetector: loopDetector,
		engine:       engine,
		q:            q,
		pipeline:     pipeline,
		builder:      builder,
		clock:        ports.SystemClock{},
		logger:       logger.With("component", "orchestrator"),
		ingest:       make(chan domain.Event, cfg.IngestBuffer),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit enqueues evt onto the ingest channel. Non-blocking: a full
// channel drops the event and returns ErrIngestFull.
func (o *Orchestrator) Submit(evt domain.Event) error {
	metrics.EventsReceived.WithLabelValues(string(evt.Type)).Inc()
	select {
	case o.ingest <- evt:
		return nil
	default:
		metrics.EventsDropped.WithLabelValues("ingest_full").Inc()
		o.logger.Warn("ingest channel full, dropping event", "path", evt.SourcePath, "event_type", evt.Type)
		return ErrIngestFull
	}
}

// Start launches the ingest goroutine and cfg.Workers consumer
// goroutines. It returns immediately; call Stop to drain and shut down.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.ingestLoop(ctx)

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.workerLoop(ctx, i)
	}
	o.logger.Info("orchestrator started", "workers", o.cfg.Workers)
}

// Stop signals every goroutine to exit and waits for them, bounded by
// ctx.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.once.Do(func() { close(o.stop) })

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("orchestrator stopped")
		return nil
	case <-ctx.Done():
		o.logger.Warn("orchestrator stop timed out")
		return ctx.Err()
	}
}

func (o *Orchestrator) ingestLoop(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case evt := <-o.ingest:
			o.processEvent(ctx, evt)
		}
	}
}

// processEvent implements steps 2-4 of the event loop: guard/loop
// checks, decide, build, enqueue.
func (o *Orchestrator) processEvent(ctx context.Context, evt domain.Event) {
	now := o.now()
	hash := contentHash(evt)

	if o.loopDetector != nil {
		check := o.loopDetector.Check(evt.SourcePath, now, hash)
		if check.ShouldBlock() {
			metrics.EventsDropped.WithLabelValues("loop_detector").Inc()
			o.logger.Warn("event dropped by loop detector",
				"path", evt.SourcePath, "result", check.Kind)
			o.auditEvent(ctx, "loop_detector", evt.SourcePath, false,
				map[string]interface{}{"result": string(check.Kind)})
			return
		}
	}

	dec, err := o.engine.Decide(ctx, evt)
	if err != nil {
		o.logger.Error("decision engine failed", "path", evt.SourcePath, "error", err)
		return
	}
	metrics.DecisionsTotal.WithLabelValues(string(dec.Kind)).Inc()

	built, err := o.builder.Build(ctx, evt, dec)
	if err != nil {
		o.logger.Error("building modification failed", "path", evt.SourcePath, "error", err)
		return
	}

	for _, bm := range built {
		o.enqueueBuilt(ctx, bm)
	}
}

func (o *Orchestrator) enqueueBuilt(ctx context.Context, bm BuiltModification) {
	if o.modGuard != nil {
		result := o.modGuard.Validate(bm.Change.FilePath, bm.Change.Modified)
		switch result.Status {
		case guard.StatusDenied:
			metrics.EventsDropped.WithLabelValues("mod_guard_denied").Inc()
			o.auditEvent(ctx, "mod_guard", bm.Change.FilePath, false,
				map[string]interface{}{"reason": result.Reason})
			return
		case guard.StatusRequiresReview:
			metrics.EventsDropped.WithLabelValues("mod_guard_review").Inc()
			o.auditEvent(ctx, "mod_guard", bm.Change.FilePath, false,
				map[string]interface{}{"reason": result.Reason, "requires_review": true})
			return
		}
	}

	if err := o.q.Enqueue(bm.Change, bm.Impact); err != nil {
		o.logger.Warn("enqueue failed", "path", bm.Change.FilePath, "error", err)
		metrics.EventsDropped.WithLabelValues("queue_full").Inc()
		return
	}
	metrics.QueueDepth.Set(float64(o.q.Size()))
}

func (o *Orchestrator) workerLoop(ctx context.Context, id int) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		default:
		}

		qc, ok := o.q.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-o.stop:
				return
			case <-time.After(o.cfg.DequeuePoll):
			}
			continue
		}
		metrics.QueueDepth.Set(float64(o.q.Size()))
		o.processQueued(ctx, qc)
	}
}

// processQueued implements steps 5-7: run the safety pipeline, apply
// or requeue, record metrics and audit events.
func (o *Orchestrator) processQueued(ctx context.Context, qc domain.QueuedChange) {
	runCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.PipelineTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.PipelineTimeout)
		defer cancel()
	}

	start := time.Now()
	report, err := o.pipeline.Run(runCtx, qc.Change)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		o.auditEvent(ctx, "safety_pipeline", qc.Change.FilePath, false,
			map[string]interface{}{"error": err.Error()})
		o.logger.Warn("safety pipeline precondition violated, not requeued",
			"path", qc.Change.FilePath, "error", err)
		metrics.ModificationsApplied.WithLabelValues(string(domain.OutcomeRejected)).Inc()
		return
	}

	if !report.Passed {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		o.auditEvent(ctx, "safety_pipeline", qc.Change.FilePath, false,
			map[string]interface{}{"risk_level": report.RiskLevel.String()})

		if report.RiskLevel >= domain.RiskCritical {
			o.logger.Warn("safety pipeline failed critically, not requeued",
				"path", qc.Change.FilePath, "risk", report.RiskLevel.String())
			metrics.ModificationsApplied.WithLabelValues(string(domain.OutcomeRejected)).Inc()
			return
		}

		o.logger.Info("safety pipeline failed, requeuing",
			"path", qc.Change.FilePath, "risk", report.RiskLevel.String())
		o.q.Requeue(qc)
		metrics.ModificationsApplied.WithLabelValues(string(domain.OutcomeDeferred)).Inc()
		return
	}
	metrics.PipelineRuns.WithLabelValues("passed").Inc()

	if err := o.apply(ctx, qc.Change); err != nil {
		o.logger.Error("apply failed", "path", qc.Change.FilePath, "error", err)
		o.auditEvent(ctx, "apply", qc.Change.FilePath, false,
			map[string]interface{}{"error": err.Error()})
		o.q.Requeue(qc)
		metrics.ModificationsApplied.WithLabelValues(string(domain.OutcomeDeferred)).Inc()
		return
	}

	o.q.MarkProcessed()
	metrics.ModificationsApplied.WithLabelValues(string(domain.OutcomeApplied)).Inc()
	o.auditEvent(ctx, "apply", qc.Change.FilePath, true, nil)
}

// apply implements step 6: a direct file write, plus a triggered
// hot-reload when the change targets a loaded module's binary.
func (o *Orchestrator) apply(ctx context.Context, change domain.CodeModification) error {
	if o.writer != nil {
		switch change.Kind {
		case domain.ModificationDelete:
			if err := o.writer.DeleteFile(ctx, change.FilePath); err != nil {
				return err
			}
		default:
			if err := o.writer.WriteFile(ctx, change.FilePath, change.Modified); err != nil {
				return err
			}
		}
	}

	if o.resolver == nil {
		return nil
	}
	moduleID, ok := o.resolver.ResolveModule(change.FilePath)
	if !ok {
		return nil
	}
	if o.loader == nil || o.reload == nil {
		return fmt.Errorf("modification to %s targets module %s but hot-reload is not configured", change.FilePath, moduleID)
	}

	mod, manifest, err := o.loader.Load(ctx, change)
	if err != nil {
		metrics.HotReloadsTriggered.WithLabelValues("load_error").Inc()
		return fmt.Errorf("loading new module %s: %w", moduleID, err)
	}

	oldVersion, _ := o.reload.Version(moduleID)
	result, err := o.reload.Reload(ctx, moduleID, oldVersion, mod, manifest)
	if err != nil {
		if result.RolledBack {
			metrics.HotReloadsTriggered.WithLabelValues("rolled_back").Inc()
		} else {
			metrics.HotReloadsTriggered.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("hot-reloading module %s: %w", moduleID, err)
	}
	metrics.HotReloadsTriggered.WithLabelValues("success").Inc()
	return nil
}

func (o *Orchestrator) auditEvent(ctx context.Context, action, target string, allowed bool, detail map[string]interface{}) {
	if o.audit == nil {
		return
	}
	evt := ports.AuditEvent{
		Timestamp: o.now(),
		Actor:     "orchestrator",
		Action:    action,
		Target:    target,
		Allowed:   allowed,
		Detail:    detail,
	}
	if err := o.audit.Record(ctx, evt); err != nil {
		o.logger.Warn("audit record failed", "action", action, "error", err)
	}
}

func (o *Orchestrator) now() time.Time {
	if o.clock != nil {
		return o.clock.Now()
	}
	return time.Now()
}

// contentHash derives the loop detector's content-change fingerprint
// from evt.Metadata["content"], when the ingest layer supplied it.
// Events without observed content (e.g. a delete) hash to "".
func contentHash(evt domain.Event) string {
	raw, ok := evt.Metadata["content"]
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
