// Package registry implements the module registry (C7): an in-memory
// catalog of installed modules with dependency-cycle detection,
// topological resolution, and TOML manifest persistence. Modeled on
// the teacher's silence manager — an RWMutex-guarded CRUD map with a
// background GC-style worker replaced here by an explicit prune call,
// since modules don't expire on their own.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ipiton-systems/autodev-engine/internal/modules"
)

var (
	ErrAlreadyRegistered         = fmt.Errorf("module already registered")
	ErrNotRegistered             = fmt.Errorf("module not registered")
	ErrCyclicDependency          = fmt.Errorf("cyclic dependency detected")
	ErrMissingDependency         = fmt.Errorf("missing dependency")
	ErrHasDependents             = fmt.Errorf("module has registered dependents")
	ErrDependencyVersionMismatch = fmt.Errorf("dependency version mismatch")
)

// entry is one registered module plus its current lifecycle state.
type entry struct {
	manifest modules.Manifest
	state    modules.State
}

// Registry is the RWMutex-guarded module catalog.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*entry
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		modules: make(map[string]*entry),
		logger:  logger.With("component", "registry"),
	}
}

// Register adds m to the catalog. It is rejected if a module with the
// same ID is already registered, or if adding it would introduce a
// dependency cycle.
func (r *Registry) Register(m modules.Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := m.Module.ID
	if _, exists := r.modules[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	r.modules[id] = &entry{manifest: m, state: modules.StateRegistered}
	if cyc := r.findCycleLocked(); cyc != nil {
		delete(r.modules, id)
		return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cyc, " -> "))
	}

	r.logger.Info("module registered", "id", id, "version", m.Module.Version)
	return nil
}

// Unregister removes id from the catalog. It fails if any other
// registered module still lists id as a (non-optional or optional)
// dependency: a dependent must be unregistered first.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	if dependents := r.dependentsLocked(id); len(dependents) > 0 {
		return fmt.Errorf("%w: %s depended on by %s", ErrHasDependents, id, strings.Join(dependents, ", "))
	}
	delete(r.modules, id)
	return nil
}

// dependentsLocked returns the IDs of every registered module whose
// manifest lists id among its dependencies. Caller must hold r.mu.
func (r *Registry) dependentsLocked(id string) []string {
	var dependents []string
	for otherID, e := range r.modules {
		if otherID == id {
			continue
		}
		for _, dep := range e.manifest.Dependencies {
			if dep.ID == id {
				dependents = append(dependents, otherID)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// Get returns the manifest and current state for id.
func (r *Registry) Get(id string) (modules.Manifest, modules.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.modules[id]
	if !ok {
		return modules.Manifest{}, "", false
	}
	return e.manifest, e.state, true
}

// SetState updates id's lifecycle state.
func (r *Registry) SetState(id string, state modules.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.modules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	e.state = state
	return nil
}

// List returns all registered manifests, ordered by ID.
func (r *Registry) List() []modules.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]modules.Manifest, 0, len(r.modules))
	for _, e := range r.modules {
		out = append(out, e.manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module.ID < out[j].Module.ID })
	return out
}

// findCycleLocked runs a DFS over the dependency graph and returns the
// first cycle found as an ordered slice of module IDs, or nil if the
// graph is acyclic. Caller must hold r.mu.
func (r *Registry) findCycleLocked() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.modules))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)

		if e, ok := r.modules[id]; ok {
			for _, dep := range e.manifest.Dependencies {
				switch color[dep.ID] {
				case gray:
					cycleStart := indexOf(path, dep.ID)
					return append(append([]string{}, path[cycleStart:]...), dep.ID)
				case white:
					if cyc := visit(dep.ID); cyc != nil {
						return cyc
					}
				}
			}
		}

		color[id] = black
		path = path[:len(path)-1]
		return nil
	}

	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

func indexOf(path []string, id string) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return -1
}

// ResolveOrder returns a topological ordering of all registered
// modules such that every module appears after its dependencies,
// suitable for driving initialization order in the runtime. A
// non-optional dependency that is unregistered, or registered at a
// version that does not satisfy the requirement, fails resolution; an
// absent optional dependency is skipped.
func (r *Registry) ResolveOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := make(map[string]bool, len(r.modules))
	var order []string

	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		e, ok := r.modules[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingDependency, id)
		}
		visited[id] = true
		for _, dep := range e.manifest.Dependencies {
			depEntry, ok := r.modules[dep.ID]
			if !ok {
				if dep.Optional {
					continue
				}
				return fmt.Errorf("%w: %s", ErrMissingDependency, dep.ID)
			}
			depVersion, err := depEntry.manifest.ParsedVersion()
			if err != nil {
				return fmt.Errorf("parsing version of dependency %s: %w", dep.ID, err)
			}
			if !dep.Satisfies(depVersion) {
				if dep.Optional {
					continue
				}
				return fmt.Errorf("%w: %s requires %s at %s, found %s", ErrDependencyVersionMismatch, id, dep.ID, dep.VersionReq, depEntry.manifest.Module.Version)
			}
			if err := visit(dep.ID); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ExportDependencyGraph renders the registered modules and their
// dependency edges as a Graphviz DOT document, for operator inspection
// of the install graph.
func (r *Registry) ExportDependencyGraph() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	b.WriteString("digraph modules {\n")
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		b.WriteString(fmt.Sprintf("  %q;\n", id))
	}
	for _, id := range ids {
		for _, dep := range r.modules[id].manifest.Dependencies {
			b.WriteString(fmt.Sprintf("  %q -> %q;\n", id, dep.ID))
		}
	}
	b.WriteString("}\n")
	return b.String()
}
