package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity is the level of an audit Event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Kind names the category of an audit Event.
type Kind string

const (
	EventCapabilityRequested Kind = "capability_requested"
	EventCapabilityGranted   Kind = "capability_granted"
	EventCapabilityDenied    Kind = "capability_denied"
	EventResourceLimitHit    Kind = "resource_limit_exceeded"
	EventSandboxStarted      Kind = "sandbox_started"
	EventSandboxStopped      Kind = "sandbox_stopped"
	EventModuleLifecycle     Kind = "module_lifecycle"
	EventAnomalyDetected     Kind = "anomaly_detected"
)

// Event is one structured, append-only audit record.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Severity  Severity               `json:"severity"`
	Kind      Kind                   `json:"kind"`
	ModuleID  string                 `json:"module_id,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// Subscriber receives a live copy of every recorded Event, typically a
// websocket connection feeding a dashboard.
type Subscriber interface {
	ID() string
	Send(evt Event) error
}

// AuditLog is a bounded ring buffer of Events with an optional
// append-only NDJSON file sink and live subscriber broadcast. Modeled
// on the teacher's event bus: a buffered channel drained by a single
// background worker, subscribers snapshotted under a read lock before
// each broadcast.
type AuditLog struct {
	mu          sync.Mutex
	buf         []Event
	head        int
	size        int
	capacity    int
	file        *lumberjack.Logger
	alertHook   func(Event)
	subscribers map[Subscriber]bool
	subMu       sync.RWMutex
	events      chan Event
	stop        chan struct{}
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// Config configures an AuditLog.
type Config struct {
	Capacity   int
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	AlertHook  func(Event)
}

// DefaultConfig returns a 10,000-entry ring buffer with no file sink.
func DefaultConfig() Config {
	return Config{Capacity: 10_000}
}

// NewAuditLog builds an AuditLog. If cfg.FilePath is non-empty, events
// are also appended as NDJSON to that file via lumberjack with
// rotation.
func NewAuditLog(cfg Config, logger *slog.Logger) *AuditLog {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10_000
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &AuditLog{
		buf:         make([]Event, cfg.Capacity),
		capacity:    cfg.Capacity,
		alertHook:   cfg.AlertHook,
		subscribers: make(map[Subscriber]bool),
		events:      make(chan Event, 1000),
		stop:        make(chan struct{}),
		logger:      logger.With("component", "sandbox_audit"),
	}

	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		a.file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	a.wg.Add(1)
	go a.broadcastWorker()
	return a
}

// Record appends evt to the ring buffer, stamps its timestamp if
// unset, fires the alert hook on Critical severity, and queues it for
// the file sink and live subscribers.
func (a *AuditLog) Record(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	a.mu.Lock()
	idx := (a.head + a.size) % a.capacity
	if a.size < a.capacity {
		a.size++
	} else {
		a.head = (a.head + 1) % a.capacity
	}
	a.buf[idx] = evt
	a.mu.Unlock()

	if evt.Severity == SeverityCritical && a.alertHook != nil {
		a.alertHook(evt)
	}

	select {
	case a.events <- evt:
	default:
		a.logger.Warn("audit event channel full, dropping broadcast/file copy", "kind", evt.Kind)
	}

	return nil
}

// Recent returns up to n most-recently-recorded events, oldest first.
func (a *AuditLog) Recent(n int) []Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || n > a.size {
		n = a.size
	}
	out := make([]Event, n)
	start := a.head + a.size - n
	for i := 0; i < n; i++ {
		out[i] = a.buf[(start+i)%a.capacity]
	}
	return out
}

// Subscribe registers sub to receive every future Event.
func (a *AuditLog) Subscribe(sub Subscriber) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.subscribers[sub] = true
}

// Unsubscribe removes sub from the broadcast set.
func (a *AuditLog) Unsubscribe(sub Subscriber) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	delete(a.subscribers, sub)
}

// Close stops the broadcast worker and closes the file sink, if any.
func (a *AuditLog) Close() error {
	close(a.stop)
	a.wg.Wait()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

func (a *AuditLog) broadcastWorker() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stop:
			return
		case evt := <-a.events:
			a.writeToFile(evt)
			a.broadcast(evt)
		}
	}
}

func (a *AuditLog) writeToFile(evt Event) {
	if a.file == nil {
		return
	}
	line, err := json.Marshal(evt)
	if err != nil {
		a.logger.Error("failed to marshal audit event", "error", err)
		return
	}
	line = append(line, '\n')
	if _, err := a.file.Write(line); err != nil {
		a.logger.Error("failed to write audit event to file", "error", err)
	}
}

func (a *AuditLog) broadcast(evt Event) {
	a.subMu.RLock()
	subs := make([]Subscriber, 0, len(a.subscribers))
	for s := range a.subscribers {
		subs = append(subs, s)
	}
	a.subMu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(evt); err != nil {
			a.logger.Warn("dropping audit subscriber after send failure", "subscriber_id", sub.ID(), "error", err)
			a.Unsubscribe(sub)
		}
	}
}

// WebsocketSubscriber adapts a gorilla/websocket connection into an
// audit Subscriber, serializing each Event as JSON.
type WebsocketSubscriber struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebsocketSubscriber wraps conn, identified by id for logging.
func NewWebsocketSubscriber(id string, conn *websocket.Conn) *WebsocketSubscriber {
	return &WebsocketSubscriber{id: id, conn: conn}
}

func (w *WebsocketSubscriber) ID() string { return w.id }

func (w *WebsocketSubscriber) Send(evt Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(evt)
}
