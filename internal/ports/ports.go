// Package ports declares the external-world contracts the core never
// implements directly (C12): reading specifications, invoking an LLM,
// talking to version control, telling time, generating randomness, and
// recording an audit trail. The core only ever depends on these
// interfaces; concrete adapters live outside this package.
package ports

import (
	"context"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// SpecSource reads specification content the decision engine reasons
// about. Implementations might read from disk, a VCS ref, or a remote
// spec store.
type SpecSource interface {
	ReadSpec(ctx context.Context, path string) (string, error)
	ListSpecs(ctx context.Context) ([]string, error)
}

// LlmPort performs an LLM request on behalf of a RequiresLLM decision.
// The core builds the domain.LLMRequest; this port is the only thing
// allowed to actually make the call.
type LlmPort interface {
	Complete(ctx context.Context, req domain.LLMRequest) (string, error)
}

// VcsPort is the minimal version-control surface the hot-reload
// orchestrator and module runtime need: snapshotting state before a
// risky change and rolling back to it if verification fails.
type VcsPort interface {
	Snapshot(ctx context.Context, label string) (string, error)
	RollbackTo(ctx context.Context, snapshotID string) error
	Commit(ctx context.Context, message string) (string, error)
	Diff(ctx context.Context, fromRef, toRef string) (string, error)
}

// Clock abstracts wall-clock time so loop detection, cooldowns and
// hot-reload timeouts can be driven deterministically under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RandomSource abstracts randomness needed for things like sandbox
// token generation, kept separate from math/rand's global state so
// call sites can be seeded deterministically under test.
type RandomSource interface {
	Int63() int64
}

// AuditSink records a structured audit event. The sandbox (C10) is the
// primary caller, but any component may emit an audit record through
// this port.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditEvent is one structured, append-only audit record.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Target    string                 `json:"target"`
	Allowed   bool                   `json:"allowed"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}
