package sandbox

import (
	"context"

	"github.com/ipiton-systems/autodev-engine/internal/ports"
)

// PortsAuditSink adapts an *AuditLog to ports.AuditSink, so the
// orchestrator's audit trail and the sandbox's own capability/resource
// events land in the same ring buffer.
type PortsAuditSink struct {
	Log *AuditLog
}

// Record implements ports.AuditSink.
func (s PortsAuditSink) Record(ctx context.Context, event ports.AuditEvent) error {
	severity := SeverityInfo
	if !event.Allowed {
		severity = SeverityWarning
	}
	detail := event.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detail["actor"] = event.Actor
	detail["allowed"] = event.Allowed

	return s.Log.Record(ctx, Event{
		Timestamp: event.Timestamp,
		Severity:  severity,
		Kind:      Kind(event.Action),
		ModuleID:  event.Target,
		Detail:    detail,
	})
}
