package decision

import "github.com/ipiton-systems/autodev-engine/internal/domain"

// Rule maps one event shape to a Decision. Match reports whether this
// rule applies; when it does, Apply builds the Decision. Rules are
// tried in order and the first match wins.
type Rule interface {
	Name() string
	Match(evt domain.Event) bool
	Apply(evt domain.Event) domain.Decision
}

// specChangeRule: a specification file changed, so the target
// implementation needs to be (re)generated.
type specChangeRule struct{}

func (specChangeRule) Name() string { return "specification_change" }
func (specChangeRule) Match(evt domain.Event) bool {
	return evt.Type == domain.EventSpecChanged
}
func (specChangeRule) Apply(evt domain.Event) domain.Decision {
	return domain.NewImplementDecision(domain.ImplementTask{
		SpecPath:    evt.SourcePath,
		TargetPath:  targetPathFor(evt.SourcePath),
		Incremental: true,
	})
}

// testAddedRule: a new test was added without corresponding production
// code; update tests is meaningless here, the engine needs to
// implement against the new test.
type testAddedRule struct{}

func (testAddedRule) Name() string { return "test_added" }
func (testAddedRule) Match(evt domain.Event) bool {
	return evt.Type == domain.EventTestAdded
}
func (testAddedRule) Apply(evt domain.Event) domain.Decision {
	return domain.NewImplementDecision(domain.ImplementTask{
		SpecPath:    evt.SourcePath,
		TargetPath:  targetPathFor(evt.SourcePath),
		Incremental: true,
	})
}

// testFailedRule: an existing test started failing; the test itself is
// the source of truth, so the engine updates the implementation to
// satisfy it again.
type testFailedRule struct{}

func (testFailedRule) Name() string { return "test_failed" }
func (testFailedRule) Match(evt domain.Event) bool {
	return evt.Type == domain.EventTestFailed
}
func (testFailedRule) Apply(evt domain.Event) domain.Decision {
	return domain.NewUpdateTestsDecision([]string{evt.SourcePath})
}

// dependencyUpdateRule: a dependency manifest changed; nothing to
// implement on its own, but it's worth a low-priority pass so the
// decision is recorded rather than silently ignored.
type dependencyUpdateRule struct{}

func (dependencyUpdateRule) Name() string { return "dependency_update" }
func (dependencyUpdateRule) Match(evt domain.Event) bool {
	return evt.Type == domain.EventDependencyUpdated
}
func (dependencyUpdateRule) Apply(evt domain.Event) domain.Decision {
	return domain.NewSkipDecision("dependency manifest change carries no direct implementation task")
}

// configChangeRule: a configuration file changed; treat it as a direct
// implementation task against the config schema/consumer.
type configChangeRule struct{}

func (configChangeRule) Name() string { return "config_change" }
func (configChangeRule) Match(evt domain.Event) bool {
	return evt.Type == domain.EventConfigChanged
}
func (configChangeRule) Apply(evt domain.Event) domain.Decision {
	return domain.NewImplementDecision(domain.ImplementTask{
		SpecPath:    evt.SourcePath,
		TargetPath:  targetPathFor(evt.SourcePath),
		Incremental: true,
	})
}

// DefaultRules is the baseline rule chain, evaluated in this order.
func DefaultRules() []Rule {
	return []Rule{
		specChangeRule{},
		testAddedRule{},
		testFailedRule{},
		dependencyUpdateRule{},
		configChangeRule{},
	}
}

// targetPathFor derives the implementation path a spec/test/config
// path implies. This is a placeholder mapping; callers supply their
// own Rule set when the repository layout disagrees.
func targetPathFor(sourcePath string) string {
	return sourcePath
}
