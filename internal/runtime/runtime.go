package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

// Module is the behavior every runnable module must implement.
type Module interface {
	Initialize(ctx context.Context) error
	Execute(ctx context.Context, input []byte) ([]byte, error)
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// StateStore persists and restores a module's opaque internal state
// across hot reloads.
type StateStore interface {
	SaveState(ctx context.Context, moduleID string, state []byte) error
	LoadState(ctx context.Context, moduleID string) ([]byte, bool, error)
}

// Runtime manages the lifecycle of loaded modules (C8): per-module
// exclusive execution via ModuleLock, with independent modules free to
// run concurrently.
type Runtime struct {
	mu      sync.RWMutex
	modules map[string]Module
	states  map[string]modules.State
	lock    ModuleLock
	store   StateStore
	logger  *slog.Logger
}

// New creates a Runtime. lock selects the concurrency-control strategy
// (LocalLock for Lite, DistributedLock for Standard); store may be nil
// if state persistence across reloads isn't needed.
func New(lock ModuleLock, store StateStore, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		modules: make(map[string]Module),
		states:  make(map[string]modules.State),
		lock:    lock,
		store:   store,
		logger:  logger.With("component", "runtime"),
	}
}

// Load registers mod under moduleID and calls its Initialize.
func (r *Runtime) Load(ctx context.Context, moduleID string, mod Module) error {
	release, err := r.lock.Acquire(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("acquiring lock to load %s: %w", moduleID, err)
	}
	defer release()

	if err := mod.Initialize(ctx); err != nil {
		r.setState(moduleID, modules.StateFailed)
		return fmt.Errorf("initializing module %s: %w", moduleID, err)
	}

	r.mu.Lock()
	r.modules[moduleID] = mod
	r.mu.Unlock()
	r.setState(moduleID, modules.StateInitialized)

	r.logger.Info("module loaded", "module_id", moduleID)
	return nil
}

// Execute runs moduleID's Execute under its exclusive lock.
func (r *Runtime) Execute(ctx context.Context, moduleID string, input []byte) ([]byte, error) {
	mod, ok := r.module(moduleID)
	if !ok {
		return nil, fmt.Errorf("module %s not loaded", moduleID)
	}

	release, err := r.lock.Acquire(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock to execute %s: %w", moduleID, err)
	}
	defer release()

	r.setState(moduleID, modules.StateRunning)
	out, err := mod.Execute(ctx, input)
	if err != nil {
		r.setState(moduleID, modules.StateFailed)
		return nil, fmt.Errorf("executing module %s: %w", moduleID, err)
	}
	r.setState(moduleID, modules.StateInitialized)
	return out, nil
}

// HealthCheck runs moduleID's health check without acquiring the
// exclusive lock, so it can observe a module mid-execution.
func (r *Runtime) HealthCheck(ctx context.Context, moduleID string) error {
	mod, ok := r.module(moduleID)
	if !ok {
		return fmt.Errorf("module %s not loaded", moduleID)
	}
	return mod.HealthCheck(ctx)
}

// Stop shuts moduleID down, persisting its state via StateStore when
// one is configured, then removes it from the runtime.
func (r *Runtime) Stop(ctx context.Context, moduleID string) error {
	release, err := r.lock.Acquire(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("acquiring lock to stop %s: %w", moduleID, err)
	}
	defer release()

	mod, ok := r.module(moduleID)
	if !ok {
		return fmt.Errorf("module %s not loaded", moduleID)
	}

	if err := mod.Shutdown(ctx); err != nil {
		r.logger.Warn("module shutdown returned error", "module_id", moduleID, "error", err)
	}

	r.mu.Lock()
	delete(r.modules, moduleID)
	r.mu.Unlock()
	r.setState(moduleID, modules.StateStopped)
	return nil
}

// State returns moduleID's current lifecycle state.
func (r *Runtime) State(moduleID string) (modules.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[moduleID]
	return s, ok
}

func (r *Runtime) module(moduleID string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[moduleID]
	return m, ok
}

// Module returns the currently loaded Module for moduleID, so a caller
// that must undo a Load (e.g. a failed hot-reload) can retrieve the
// module it is about to replace before doing so.
func (r *Runtime) Module(moduleID string) (Module, bool) {
	return r.module(moduleID)
}

func (r *Runtime) setState(moduleID string, state modules.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[moduleID] = state
}
