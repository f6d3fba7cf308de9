package categorize

import (
	"testing"

	"github.com/ledgerline/ledgerline/internal/store"
)

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name         string
		rule         store.CategoryRule
		merchantName string
		description  string
		want         bool
	}{
		{
			name:         "exact match is case and space insensitive",
			rule:         store.CategoryRule{Field: "merchantName", MatchType: "exact", Value: "Starbucks"},
			merchantName: "  STARBUCKS ",
			want:         true,
		},
		{
			name:         "exact does not match substring",
			rule:         store.CategoryRule{Field: "merchantName", MatchType: "exact", Value: "Starbucks"},
			merchantName: "Starbucks #1234",
			want:         false,
		},
		{
			name:         "contains matches substring",
			rule:         store.CategoryRule{Field: "merchantName", MatchType: "contains", Value: "starbucks"},
			merchantName: "STARBUCKS #1234",
			want:         true,
		},
		{
			name:        "description field is matched against description",
			rule:        store.CategoryRule{Field: "description", MatchType: "contains", Value: "payroll"},
			description: "ACME CORP PAYROLL DEP",
			want:        true,
		},
		{
			name:         "regex match",
			rule:         store.CategoryRule{Field: "merchantName", MatchType: "regex", Value: `^UBER\s`},
			merchantName: "UBER TRIP 123",
			want:         true,
		},
		{
			name:         "broken regex never matches",
			rule:         store.CategoryRule{Field: "merchantName", MatchType: "regex", Value: `([`},
			merchantName: "anything",
			want:         false,
		},
		{
			name: "empty subject never matches",
			rule: store.CategoryRule{Field: "merchantName", MatchType: "contains", Value: ""},
			want: false,
		},
		{
			name:         "unknown field never matches",
			rule:         store.CategoryRule{Field: "amount", MatchType: "exact", Value: "5"},
			merchantName: "5",
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ruleMatches(&tt.rule, tt.merchantName, tt.description)
			if got != tt.want {
				t.Errorf("ruleMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchRulesFirstWins(t *testing.T) {
	rules := []store.CategoryRule{
		{ID: "r1", CategoryID: "coffee", Field: "merchantName", MatchType: "contains", Value: "star", Position: 0},
		{ID: "r2", CategoryID: "dining", Field: "merchantName", MatchType: "contains", Value: "starbucks", Position: 1},
	}

	got := matchRules(rules, "STARBUCKS", "")
	if got == nil || got.ID != "r1" {
		t.Errorf("matchRules() = %v, want first rule r1", got)
	}
}

func TestMatchRulesNoMatch(t *testing.T) {
	rules := []store.CategoryRule{
		{ID: "r1", Field: "merchantName", MatchType: "exact", Value: "starbucks"},
	}
	if got := matchRules(rules, "TIM HORTONS", ""); got != nil {
		t.Errorf("matchRules() = %v, want nil", got)
	}
}
