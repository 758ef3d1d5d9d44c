// Package sandbox implements the sandbox (C10): capability grants,
// resource limits, and the audit trail that records every decision
// either makes. Modules run inside a Sandbox, never with ambient
// authority.
package sandbox

import (
	"context"
	"sync"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

// CapabilityManager holds the capabilities granted to one module and
// decides whether a requested capability is allowed, recording every
// decision to an AuditLog.
type CapabilityManager struct {
	mu      sync.RWMutex
	granted []modules.Capability
	audit   *AuditLog
	moduleID string
}

// NewCapabilityManager builds a manager for moduleID starting with the
// given granted set (typically parsed from its manifest's
// capabilities.provides list).
func NewCapabilityManager(moduleID string, granted []modules.Capability, audit *AuditLog) *CapabilityManager {
	return &CapabilityManager{granted: granted, audit: audit, moduleID: moduleID}
}

// IsAllowed reports whether requested is covered by the granted set,
// emitting CapabilityRequested before the check and
// CapabilityGranted/CapabilityDenied after it.
func (c *CapabilityManager) IsAllowed(ctx context.Context, requested modules.Capability) bool {
	c.audit.Record(ctx, Event{
		Severity: SeverityDebug,
		Kind:     EventCapabilityRequested,
		ModuleID: c.moduleID,
		Detail:   map[string]interface{}{"capability": requested.Raw},
	})

	c.mu.RLock()
	allowed := false
	for _, g := range c.granted {
		if g.Allows(requested) {
			allowed = true
			break
		}
	}
	c.mu.RUnlock()

	if allowed {
		c.audit.Record(ctx, Event{
			Severity: SeverityInfo,
			Kind:     EventCapabilityGranted,
			ModuleID: c.moduleID,
			Detail:   map[string]interface{}{"capability": requested.Raw},
		})
		return true
	}

	c.audit.Record(ctx, Event{
		Severity: SeverityWarning,
		Kind:     EventCapabilityDenied,
		ModuleID: c.moduleID,
		Detail:   map[string]interface{}{"capability": requested.Raw},
	})
	return false
}

// Grants returns a copy of the currently granted capability set.
func (c *CapabilityManager) Grants() []modules.Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]modules.Capability, len(c.granted))
	copy(out, c.granted)
	return out
}
