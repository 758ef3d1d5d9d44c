package hotreload

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ipiton-systems/autodev-engine/internal/runtime"
)

// FieldMapping moves or transforms a single top-level field of a
// module's JSON-encoded state during a migration step. FromPath names
// the source field ("" for a new field with no predecessor); ToPath
// names the destination field. Transform converts the source field's
// raw JSON value into the destination's; if nil, the value is copied
// through unchanged (a Direct or bare Rename mapping).
type FieldMapping struct {
	FromPath  string
	ToPath    string
	Transform func(old []byte) ([]byte, error)
}

// MigrationStep transforms a module's persisted state from one shape
// to the next. Steps are chained so a module many versions behind can
// still be migrated incrementally.
type MigrationStep struct {
	FromVersion string
	ToVersion   string
	Mappings    []FieldMapping
}

// maxMigrationDepth bounds the chained-step search so an
// inconsistent/cyclic migration graph can't hang a reload forever.
const maxMigrationDepth = 10

// Migrator finds and applies a path of MigrationSteps between a
// module's currently persisted state version and the version its new
// code expects.
type Migrator struct {
	store runtime.StateStore
	steps []MigrationStep
}

// NewMigrator builds a Migrator with the given chained steps and the
// state store to read from and write back to.
func NewMigrator(store runtime.StateStore, steps []MigrationStep) *Migrator {
	return &Migrator{store: store, steps: steps}
}

// LoadState reads moduleID's currently persisted state, for a caller
// that needs to capture it before Migrate mutates it (e.g. to restore
// on a later rollback).
func (m *Migrator) LoadState(ctx context.Context, moduleID string) ([]byte, bool, error) {
	return m.store.LoadState(ctx, moduleID)
}

// SaveState writes state back for moduleID, for a caller restoring a
// previously captured snapshot.
func (m *Migrator) SaveState(ctx context.Context, moduleID string, state []byte) error {
	return m.store.SaveState(ctx, moduleID, state)
}

// Migrate loads moduleID's current state and, if fromVersion and
// toVersion differ, applies whatever chain of registered steps
// transforms it from fromVersion to toVersion, then saves the result.
// Absent state is left untouched: a module with nothing persisted yet
// has nothing to migrate.
func (m *Migrator) Migrate(ctx context.Context, moduleID, fromVersion, toVersion string) error {
	state, found, err := m.store.LoadState(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("loading state for %s: %w", moduleID, err)
	}
	if !found {
		return nil
	}
	if fromVersion == toVersion {
		return nil
	}

	path, err := m.findPath(fromVersion, toVersion)
	if err != nil {
		return err
	}

	for _, step := range path {
		state, err = applyStep(step, state)
		if err != nil {
			return fmt.Errorf("applying migration %s -> %s for %s: %w", step.FromVersion, step.ToVersion, moduleID, err)
		}
	}

	return m.store.SaveState(ctx, moduleID, state)
}

// findPath does a depth-limited search over m.steps for a chain
// connecting from to to. Steps need not be registered in order; the
// search tries each step whose FromVersion matches the current
// frontier.
func (m *Migrator) findPath(from, to string) ([]MigrationStep, error) {
	type frontier struct {
		version string
		path    []MigrationStep
	}
	queue := []frontier{{version: from}}
	visited := map[string]bool{from: true}

	for depth := 0; depth < maxMigrationDepth && len(queue) > 0; depth++ {
		var next []frontier
		for _, f := range queue {
			if f.version == to {
				return f.path, nil
			}
			for _, step := range m.steps {
				if step.FromVersion != f.version || visited[step.ToVersion] {
					continue
				}
				visited[step.ToVersion] = true
				path := append(append([]MigrationStep{}, f.path...), step)
				next = append(next, frontier{version: step.ToVersion, path: path})
			}
		}
		queue = next
	}

	for _, f := range queue {
		if f.version == to {
			return f.path, nil
		}
	}
	return nil, fmt.Errorf("no migration path found from %s to %s within depth %d", from, to, maxMigrationDepth)
}

// applyStep decodes state as a flat JSON object and applies step's
// field mappings to it: each mapping reads FromPath's raw value (if
// any), passes it through Transform when one is given, and writes the
// result to ToPath. A Rename is a mapping whose FromPath and ToPath
// differ with no Transform; a Split is expressed as several mappings
// sharing one FromPath; a Merge is expressed as one mapping whose
// Transform reads more than one field out of the full state by
// ignoring FromPath and inspecting the raw state itself. Fields left
// untouched by every mapping are carried over unchanged.
func applyStep(step MigrationStep, state []byte) ([]byte, error) {
	var data map[string]json.RawMessage
	if len(state) > 0 {
		if err := json.Unmarshal(state, &data); err != nil {
			return nil, fmt.Errorf("decoding state as a JSON object: %w", err)
		}
	}
	if data == nil {
		data = map[string]json.RawMessage{}
	}

	result := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		result[k] = v
	}

	for _, mapping := range step.Mappings {
		var value json.RawMessage
		if mapping.FromPath != "" {
			v, ok := data[mapping.FromPath]
			if !ok {
				return nil, fmt.Errorf("field %q not found in state", mapping.FromPath)
			}
			value = v
		}

		switch {
		case mapping.Transform != nil:
			transformed, err := mapping.Transform(value)
			if err != nil {
				return nil, fmt.Errorf("transforming field %q: %w", mapping.ToPath, err)
			}
			value = transformed
		case mapping.FromPath == "":
			return nil, fmt.Errorf("field %q has no source path and no transform to produce a default", mapping.ToPath)
		}

		if mapping.ToPath != "" {
			result[mapping.ToPath] = value
		}
		if mapping.FromPath != "" && mapping.FromPath != mapping.ToPath {
			delete(result, mapping.FromPath)
		}
	}

	return json.Marshal(result)
}
