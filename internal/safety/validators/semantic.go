package validators

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// SemanticGate checks that the modification doesn't change the
// package's exported declarations in a way likely to break callers: it
// compares the set of exported top-level identifiers before and after.
// Not critical — a shrinking export surface is a warning, not a block,
// since it may be an intentional deprecation.
type SemanticGate struct{}

func (SemanticGate) Name() string           { return "semantic" }
func (SemanticGate) Critical() bool         { return false }
func (SemanticGate) Timeout() time.Duration { return 0 }

func (SemanticGate) Run(_ context.Context, change domain.CodeModification) domain.GateResult {
	if change.Kind != domain.ModificationUpdate {
		return domain.GateResult{GateName: "semantic", Passed: true, RiskLevel: domain.RiskLow}
	}

	before, errBefore := exportedIdents(change.Original)
	after, errAfter := exportedIdents(change.Modified)
	if errBefore != nil || errAfter != nil {
		return domain.GateResult{GateName: "semantic", Passed: true, RiskLevel: domain.RiskLow}
	}

	var removed []string
	for name := range before {
		if !after[name] {
			removed = append(removed, name)
		}
	}

	if len(removed) == 0 {
		return domain.GateResult{GateName: "semantic", Passed: true, RiskLevel: domain.RiskLow}
	}

	return domain.GateResult{
		GateName:    "semantic",
		Passed:      true,
		RiskLevel:   domain.RiskMedium,
		Issues:      []string{fmt.Sprintf("%d exported identifier(s) removed: %v", len(removed), removed)},
		Suggestions: []string{"confirm no external caller depends on the removed identifiers"},
	}
}

func exportedIdents(src string) (map[string]bool, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.AllErrors)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil && d.Name.IsExported() {
				out[d.Name.Name] = true
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name.IsExported() {
						out[s.Name.Name] = true
					}
				case *ast.ValueSpec:
					for _, n := range s.Names {
						if n.IsExported() {
							out[n.Name] = true
						}
					}
				}
			}
		}
	}
	return out, nil
}
