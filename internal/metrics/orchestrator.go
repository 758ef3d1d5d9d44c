// Package metrics exposes the Prometheus series the orchestrator (C11)
// updates as events flow through the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived counts ingest events by type, regardless of
	// outcome.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_events_received_total",
			Help: "Total number of events received from ingest, by event type",
		},
		[]string{"event_type"},
	)

	// EventsDropped counts events dropped before reaching the queue, by
	// the stage that dropped them (guard, loop_detector).
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_events_dropped_total",
			Help: "Total number of events dropped before enqueue, by the stage that dropped them",
		},
		[]string{"stage"},
	)

	// DecisionsTotal counts decisions produced by the decision engine,
	// by kind.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_decisions_total",
			Help: "Total number of decisions produced, by decision kind",
		},
		[]string{"kind"},
	)

	// PipelineRuns counts completed safety pipeline runs, by outcome.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_pipeline_runs_total",
			Help: "Total number of safety pipeline runs, by outcome",
		},
		[]string{"outcome"},
	)

	// PipelineDuration observes the wall-clock time of one safety
	// pipeline run.
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_pipeline_duration_seconds",
			Help:    "Duration of safety pipeline runs",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	// QueueDepth tracks the queue's current resident count.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_queue_depth",
			Help: "Current number of changes resident in the priority queue",
		},
	)

	// ModificationsApplied counts applied modifications, by outcome
	// (applied, rejected, deferred, needs_review).
	ModificationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_modifications_total",
			Help: "Total number of processed modifications, by terminal outcome",
		},
		[]string{"outcome"},
	)

	// HotReloadsTriggered counts hot-reload attempts triggered by an
	// applied modification that replaced a loaded module's binary.
	HotReloadsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_hot_reloads_total",
			Help: "Total number of hot-reload attempts triggered from applied modifications, by result",
		},
		[]string{"result"},
	)
)
