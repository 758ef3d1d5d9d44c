// Package hotreload implements the hot-reload orchestrator (C9): swap
// a running module's code and state without dropping in-flight work,
// rolling back automatically if verification fails. The phase
// structure (snapshot, validate, migrate, apply, verify, rollback on
// critical failure) is modeled directly on the teacher's
// ReloadCoordinator.
package hotreload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
	"github.com/ipiton-systems/autodev-engine/internal/ports"
	"github.com/ipiton-systems/autodev-engine/internal/runtime"
)

// Verifier checks that a module is healthy after a reload, used in the
// last phase before deciding whether to commit or roll back.
type Verifier interface {
	Verify(ctx context.Context, moduleID string, rt *runtime.Runtime) error
}

// Orchestrator drives a single module's hot-reload through its phases.
type Orchestrator struct {
	rt       *runtime.Runtime
	vcs      ports.VcsPort
	migrator *Migrator
	verifier Verifier
	logger   *slog.Logger

	versionsMu sync.RWMutex
	versions   map[string]string
}

// New builds an Orchestrator.
func New(rt *runtime.Runtime, vcs ports.VcsPort, migrator *Migrator, verifier Verifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		rt:       rt,
		vcs:      vcs,
		migrator: migrator,
		verifier: verifier,
		logger:   logger.With("component", "hotreload"),
		versions: make(map[string]string),
	}
}

// Version returns the version last successfully reloaded for
// moduleID, so a caller driving Reload can supply it as oldVersion on
// the next call.
func (o *Orchestrator) Version(moduleID string) (string, bool) {
	o.versionsMu.RLock()
	defer o.versionsMu.RUnlock()
	v, ok := o.versions[moduleID]
	return v, ok
}

// Result is the outcome of one reload attempt.
type Result struct {
	ModuleID    string
	Success     bool
	RolledBack  bool
	SnapshotID  string
	PhaseErrors map[string]string
	Duration    time.Duration
}

// Reload swaps moduleID's running Module for newModule, migrating its
// persisted state from oldVersion to newManifest's declared version
// and rolling back to the pre-reload module, state, and VCS snapshot
// if verification fails afterward. oldVersion is the version of the
// module currently loaded under moduleID; it may be "" if none was
// previously loaded (a fresh load rather than a reload).
func (o *Orchestrator) Reload(ctx context.Context, moduleID, oldVersion string, newModule runtime.Module, newManifest modules.Manifest) (Result, error) {
	start := time.Now()
	result := Result{ModuleID: moduleID, PhaseErrors: make(map[string]string)}

	oldModule, hadOldModule := o.rt.Module(moduleID)

	var oldState []byte
	var hadOldState bool
	if o.migrator != nil {
		var err error
		oldState, hadOldState, err = o.migrator.LoadState(ctx, moduleID)
		if err != nil {
			result.PhaseErrors["snapshot"] = err.Error()
			return result, fmt.Errorf("reading prior state for %s failed: %w", moduleID, err)
		}
	}

	// Phase 1: SNAPSHOT
	snapshotID, err := o.vcs.Snapshot(ctx, fmt.Sprintf("reload-%s-%d", moduleID, start.UnixNano()))
	if err != nil {
		result.PhaseErrors["snapshot"] = err.Error()
		return result, fmt.Errorf("phase 1 (snapshot) failed: %w", err)
	}
	result.SnapshotID = snapshotID
	o.logger.Info("phase 1 (snapshot) completed", "module_id", moduleID, "snapshot_id", snapshotID)

	// Phase 2: STOP (stop the old module so state is quiescent for migration)
	if err := o.rt.Stop(ctx, moduleID); err != nil {
		o.logger.Warn("phase 2 (stop) reported an error, continuing", "module_id", moduleID, "error", err)
	}

	restore := func() {
		o.rollback(ctx, moduleID, snapshotID, oldModule, hadOldModule, oldState, hadOldState)
	}

	// Phase 3: MIGRATE (state shape transition, if the migrator has a path)
	phaseStart := time.Now()
	if o.migrator != nil {
		if err := o.migrator.Migrate(ctx, moduleID, oldVersion, newManifest.Module.Version); err != nil {
			result.PhaseErrors["migrate"] = err.Error()
			restore()
			return result, fmt.Errorf("phase 3 (migrate) failed, rolled back: %w", err)
		}
	}
	o.logger.Info("phase 3 (migrate) completed", "module_id", moduleID, "duration_ms", time.Since(phaseStart).Milliseconds())

	// Phase 4: APPLY (load the new module under its runtime slot)
	phaseStart = time.Now()
	if err := o.rt.Load(ctx, moduleID, newModule); err != nil {
		result.PhaseErrors["apply"] = err.Error()
		restore()
		return result, fmt.Errorf("phase 4 (apply) failed, rolled back: %w", err)
	}
	o.logger.Info("phase 4 (apply) completed", "module_id", moduleID, "duration_ms", time.Since(phaseStart).Milliseconds())

	// Phase 5: VERIFY
	phaseStart = time.Now()
	if o.verifier != nil {
		if err := o.verifier.Verify(ctx, moduleID, o.rt); err != nil {
			result.PhaseErrors["verify"] = err.Error()
			restore()
			result.RolledBack = true
			result.Duration = time.Since(start)
			return result, fmt.Errorf("phase 5 (verify) failed, rolled back: %w", err)
		}
	}
	o.logger.Info("phase 5 (verify) completed", "module_id", moduleID, "duration_ms", time.Since(phaseStart).Milliseconds())

	// Phase 6: COMMIT
	if _, err := o.vcs.Commit(ctx, fmt.Sprintf("hot-reload %s to %s", moduleID, newManifest.Module.Version)); err != nil {
		o.logger.Warn("phase 6 (commit) failed, reload itself still stands", "module_id", moduleID, "error", err)
	}

	o.versionsMu.Lock()
	o.versions[moduleID] = newManifest.Module.Version
	o.versionsMu.Unlock()

	result.Success = true
	result.Duration = time.Since(start)
	o.logger.Info("reload completed", "module_id", moduleID, "duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// rollback undoes a failed reload: it resets the VCS working tree to
// the pre-reload snapshot, restores the in-memory runtime module that
// was loaded before the swap (independent of the VCS-level reset,
// since the runtime's module map is never itself versioned by the
// VCS), and restores the pre-migration state bytes.
func (o *Orchestrator) rollback(ctx context.Context, moduleID, snapshotID string, oldModule runtime.Module, hadOldModule bool, oldState []byte, hadOldState bool) {
	o.logger.Warn("rolling back reload", "module_id", moduleID, "snapshot_id", snapshotID)
	if err := o.vcs.RollbackTo(ctx, snapshotID); err != nil {
		o.logger.Error("rollback failed", "module_id", moduleID, "snapshot_id", snapshotID, "error", err)
	}

	if hadOldState && o.migrator != nil {
		if err := o.migrator.SaveState(ctx, moduleID, oldState); err != nil {
			o.logger.Error("restoring pre-reload state failed", "module_id", moduleID, "error", err)
		}
	}

	if hadOldModule {
		if err := o.rt.Load(ctx, moduleID, oldModule); err != nil {
			o.logger.Error("restoring pre-reload module failed", "module_id", moduleID, "error", err)
		}
	}
}
