package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipiton-systems/autodev-engine/internal/ports"
)

func TestPortsAuditSinkRecordsIntoAuditLog(t *testing.T) {
	log := NewAuditLog(DefaultConfig(), nil)
	defer log.Close()

	sink := PortsAuditSink{Log: log}
	err := sink.Record(context.Background(), ports.AuditEvent{
		Timestamp: time.Now(),
		Actor:     "orchestrator",
		Action:    "mod_guard",
		Target:    "internal/guard/modguard.go",
		Allowed:   false,
		Detail:    map[string]interface{}{"reason": "critical path"},
	})
	require.NoError(t, err)

	recent := log.Recent(1)
	require.Len(t, recent, 1)
	require.Equal(t, Kind("mod_guard"), recent[0].Kind)
	require.Equal(t, SeverityWarning, recent[0].Severity)
	require.Equal(t, "internal/guard/modguard.go", recent[0].ModuleID)
	require.Equal(t, "critical path", recent[0].Detail["reason"])
}

func TestPortsAuditSinkAllowedEventIsInfoSeverity(t *testing.T) {
	log := NewAuditLog(DefaultConfig(), nil)
	defer log.Close()

	sink := PortsAuditSink{Log: log}
	require.NoError(t, sink.Record(context.Background(), ports.AuditEvent{
		Actor:   "orchestrator",
		Action:  "apply",
		Target:  "a.go",
		Allowed: true,
	}))

	recent := log.Recent(1)
	require.Len(t, recent, 1)
	require.Equal(t, SeverityInfo, recent[0].Severity)
}
