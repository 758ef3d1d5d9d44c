package orchestrator

import (
	"context"
	"fmt"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
	"github.com/ipiton-systems/autodev-engine/internal/ports"
)

// BuiltModification is one concrete change a Decision resolved to,
// ready for the modification guard and the queue.
type BuiltModification struct {
	Change domain.CodeModification
	Impact domain.Impact
}

// ModificationBuilder turns a classified Decision into zero or more
// concrete CodeModifications. A DecisionSkip, or a decision the builder
// cannot resolve into an actual change, yields an empty, non-error
// result.
type ModificationBuilder interface {
	Build(ctx context.Context, evt domain.Event, dec domain.Decision) ([]BuiltModification, error)
}

// FileReader supplies the current on-disk content of a path, used to
// populate CodeModification.Original so an applied change stays
// invertible.
type FileReader interface {
	ReadFile(ctx context.Context, path string) (content string, exists bool, err error)
}

// PatternLibrary resolves a pattern ID selected by UsePattern into the
// modification content it applies. Without one configured, UsePattern
// decisions are treated as unresolvable and dropped rather than
// escalated, since applying an unknown pattern blind would bypass the
// safety pipeline's expectations for Original/Modified content.
type PatternLibrary interface {
	Resolve(ctx context.Context, patternID string, evt domain.Event) (modified string, ok bool)
}

// DefaultBuilder is the production ModificationBuilder. Each dependency
// is optional; a decision kind whose dependency is unset degrades to an
// empty result rather than an error, except RequiresLLM, which has no
// other way to produce content.
type DefaultBuilder struct {
	Specs    ports.SpecSource
	LLM      ports.LlmPort
	Reader   FileReader
	Patterns PatternLibrary
}

// Build implements ModificationBuilder.
func (b *DefaultBuilder) Build(ctx context.Context, evt domain.Event, dec domain.Decision) ([]BuiltModification, error) {
	switch dec.Kind {
	case domain.DecisionSkip:
		return nil, nil

	case domain.DecisionImplement:
		return b.buildImplement(ctx, evt, dec)

	case domain.DecisionUpdateTests:
		return b.buildUpdateTests(evt, dec), nil

	case domain.DecisionUsePattern:
		return b.buildUsePattern(ctx, evt, dec)

	case domain.DecisionRequiresLLM:
		return b.buildRequiresLLM(ctx, evt, dec)

	default:
		return nil, fmt.Errorf("unrecognized decision kind %q", dec.Kind)
	}
}

func (b *DefaultBuilder) buildImplement(ctx context.Context, evt domain.Event, dec domain.Decision) ([]BuiltModification, error) {
	task := dec.Implement
	var modified string
	if b.Specs != nil {
		content, err := b.Specs.ReadSpec(ctx, task.SpecPath)
		if err != nil {
			return nil, fmt.Errorf("reading spec %s: %w", task.SpecPath, err)
		}
		modified = content
	}

	original, kind := b.originalAndKind(ctx, task.TargetPath, task.Incremental)
	impact := domain.ImpactModerate
	if !task.Incremental {
		impact = domain.ImpactMajor
	}

	return []BuiltModification{{
		Change: domain.CodeModification{
			FilePath: task.TargetPath,
			Original: original,
			Modified: modified,
			Kind:     kind,
			Reason:   "implement " + task.SpecPath,
		},
		Impact: impact,
	}}, nil
}

func (b *DefaultBuilder) buildUpdateTests(evt domain.Event, dec domain.Decision) []BuiltModification {
	out := make([]BuiltModification, 0, len(dec.UpdateTests))
	for _, path := range dec.UpdateTests {
		out = append(out, BuiltModification{
			Change: domain.CodeModification{
				FilePath: path,
				Kind:     domain.ModificationUpdate,
				Reason:   "update tests for " + evt.SourcePath,
			},
			Impact: domain.ImpactMinor,
		})
	}
	return out
}

func (b *DefaultBuilder) buildUsePattern(ctx context.Context, evt domain.Event, dec domain.Decision) ([]BuiltModification, error) {
	if b.Patterns == nil {
		return nil, nil
	}
	modified, ok := b.Patterns.Resolve(ctx, dec.PatternID, evt)
	if !ok {
		return nil, nil
	}
	original, _ := b.originalAndKind(ctx, evt.SourcePath, true)
	return []BuiltModification{{
		Change: domain.CodeModification{
			FilePath: evt.SourcePath,
			Original: original,
			Modified: modified,
			Kind:     domain.ModificationUpdate,
			Reason:   "apply pattern " + dec.PatternID,
		},
		Impact: domain.ImpactMinor,
	}}, nil
}

func (b *DefaultBuilder) buildRequiresLLM(ctx context.Context, evt domain.Event, dec domain.Decision) ([]BuiltModification, error) {
	if b.LLM == nil {
		return nil, fmt.Errorf("decision for %s requires an LLM but no LlmPort is configured", evt.SourcePath)
	}
	modified, err := b.LLM.Complete(ctx, *dec.LLMRequest)
	if err != nil {
		return nil, fmt.Errorf("LLM completion for %s: %w", evt.SourcePath, err)
	}
	original, kind := b.originalAndKind(ctx, evt.SourcePath, true)
	return []BuiltModification{{
		Change: domain.CodeModification{
			FilePath: evt.SourcePath,
			Original: original,
			Modified: modified,
			Kind:     kind,
			Reason:   dec.LLMRequest.Prompt,
		},
		Impact: domain.ImpactModerate,
	}}, nil
}

// originalAndKind reads path's current content through Reader, if
// configured. A path that doesn't exist yet (or no Reader at all)
// yields an empty Original and Create; otherwise Update, or the
// caller's preference when incremental is false.
func (b *DefaultBuilder) originalAndKind(ctx context.Context, path string, incremental bool) (string, domain.ModificationKind) {
	if b.Reader == nil {
		if incremental {
			return "", domain.ModificationUpdate
		}
		return "", domain.ModificationCreate
	}
	content, exists, err := b.Reader.ReadFile(ctx, path)
	if err != nil || !exists {
		return "", domain.ModificationCreate
	}
	return content, domain.ModificationUpdate
}
