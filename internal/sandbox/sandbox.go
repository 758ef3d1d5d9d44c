package sandbox

import (
	"context"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

// Sandbox is the per-module enclosure the runtime executes a module
// inside: a capability manager, a resource monitor, and a shared audit
// log recording everything either one decides.
type Sandbox struct {
	ModuleID   string
	Capability *CapabilityManager
	Resources  *ResourceMonitor
	Audit      *AuditLog
}

// New builds a Sandbox for moduleID with the given granted
// capabilities and limits, sharing audit across every sandbox in the
// process.
func New(moduleID string, granted []modules.Capability, limits Limits, audit *AuditLog) *Sandbox {
	return &Sandbox{
		ModuleID:   moduleID,
		Capability: NewCapabilityManager(moduleID, granted, audit),
		Resources:  NewResourceMonitor(moduleID, limits, audit),
		Audit:      audit,
	}
}

// Start records a sandbox lifecycle start event.
func (s *Sandbox) Start(ctx context.Context) {
	s.Audit.Record(ctx, Event{Severity: SeverityInfo, Kind: EventSandboxStarted, ModuleID: s.ModuleID})
}

// Stop records a sandbox lifecycle stop event.
func (s *Sandbox) Stop(ctx context.Context) {
	s.Audit.Record(ctx, Event{Severity: SeverityInfo, Kind: EventSandboxStopped, ModuleID: s.ModuleID})
}
