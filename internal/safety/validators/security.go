package validators

import (
	"context"
	"regexp"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

var secretLikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][^"']{8,}["']`),
	regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`),
}

// SecurityGate screens Modified content for embedded credentials and
// obviously insecure constructs. Critical: an embedded secret must
// never reach a commit.
type SecurityGate struct{}

func (SecurityGate) Name() string           { return "security" }
func (SecurityGate) Critical() bool         { return true }
func (SecurityGate) Timeout() time.Duration { return 0 }

func (SecurityGate) Run(_ context.Context, change domain.CodeModification) domain.GateResult {
	var issues []string
	for _, re := range secretLikePatterns {
		if re.MatchString(change.Modified) {
			issues = append(issues, "possible embedded credential matching pattern: "+re.String())
		}
	}

	if len(issues) > 0 {
		return domain.GateResult{
			GateName:    "security",
			Passed:      false,
			RiskLevel:   domain.RiskCritical,
			Issues:      issues,
			Suggestions: []string{"move secrets to configuration or a secret store, never inline them"},
		}
	}

	return domain.GateResult{GateName: "security", Passed: true, RiskLevel: domain.RiskLow}
}
