package categorize

import (
	"regexp"
	"strings"

	"github.com/ledgerline/ledgerline/internal/store"
)

// RuleConfidence is the fixed confidence assigned to a deterministic rule
// match. Rules exist to skip AI calls, so a match is authoritative.
const RuleConfidence = 0.95

// matchRules evaluates the rule set in stored order and returns the first
// matching rule. A later rule that would also match never overrides an
// earlier one.
func matchRules(rules []store.CategoryRule, merchantName, description string) *store.CategoryRule {
	for i := range rules {
		if ruleMatches(&rules[i], merchantName, description) {
			return &rules[i]
		}
	}
	return nil
}

func ruleMatches(rule *store.CategoryRule, merchantName, description string) bool {
	var subject string
	switch rule.Field {
	case "merchantName":
		subject = merchantName
	case "description":
		subject = description
	default:
		return false
	}
	if subject == "" {
		return false
	}

	switch rule.MatchType {
	case "exact":
		return normalize(subject) == normalize(rule.Value)
	case "contains":
		return strings.Contains(normalize(subject), normalize(rule.Value))
	case "regex":
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			// A broken pattern never matches; it must not poison the
			// rest of the rule set.
			return false
		}
		return re.MatchString(subject)
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
