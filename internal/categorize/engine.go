// Package categorize resolves a category (and optionally a business) for
// a transaction. Resolution is two-tier: the user's deterministic rules
// run first and skip AI entirely on a match, which is the primary cost
// control; AI inference over the scoped category vocabulary is the
// fallback.
package categorize

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/schema"
	"github.com/ledgerline/ledgerline/internal/store"
)

// snapDistance is the maximum Levenshtein distance at which an
// AI-proposed category name is treated as an existing category rather
// than a new one.
const snapDistance = 2

// Request is one categorization call.
type Request struct {
	MerchantName string
	Description  string
	Amount       float64
	UserID       string

	// TransactionType scopes the vocabulary; inferred from the amount
	// sign when empty (>= 0 means income).
	TransactionType string

	// UsageScope scopes the vocabulary ("personal", "business"); empty
	// means both.
	UsageScope string

	// MinConfidence is caller-supplied. Results below it are still
	// returned but flagged for manual review.
	MinConfidence float64
}

// Result is the categorization outcome.
type Result struct {
	CategoryID        string
	CategoryName      string
	Confidence        float64
	IsNewCategory     bool
	IsBusinessExpense bool
	BusinessID        string

	// NeedsReview is set when confidence fell below the caller's
	// threshold; the caller routes those to manual review instead of
	// auto-applying.
	NeedsReview bool

	// MatchedRule reports the rule that decided the result, when the
	// deterministic pass won.
	MatchedRuleID string
}

// Engine resolves categories. It only reads the category/rule tables and
// never mutates them.
type Engine struct {
	categories store.CategoryStore
	extractor  *extract.Engine
	log        zerolog.Logger
}

// NewEngine builds a categorization engine.
func NewEngine(categories store.CategoryStore, extractor *extract.Engine, log zerolog.Logger) *Engine {
	return &Engine{categories: categories, extractor: extractor, log: log}
}

// Categorize resolves the category for one transaction.
func (e *Engine) Categorize(ctx context.Context, req Request) (Result, error) {
	if req.TransactionType == "" {
		if req.Amount >= 0 {
			req.TransactionType = "income"
		} else {
			req.TransactionType = "expense"
		}
	}

	rules, err := e.categories.ListRules(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("categorize: list rules: %w", err)
	}

	cats, err := e.categories.ListCategories(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("categorize: list categories: %w", err)
	}
	scoped := scopeCategories(cats, req.TransactionType, req.UsageScope)

	if rule := matchRules(rules, req.MerchantName, req.Description); rule != nil {
		res := Result{
			CategoryID:    rule.CategoryID,
			Confidence:    RuleConfidence,
			MatchedRuleID: rule.ID,
		}
		if cat := findCategoryByID(cats, rule.CategoryID); cat != nil {
			res.CategoryName = cat.Name
		}
		res.NeedsReview = res.Confidence < req.MinConfidence
		return res, nil
	}

	return e.inferWithAI(ctx, req, scoped)
}

func (e *Engine) inferWithAI(ctx context.Context, req Request, scoped []store.Category) (Result, error) {
	businesses, err := e.categories.ListBusinesses(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("categorize: list businesses: %w", err)
	}

	raw, _, err := e.extractor.Extract(ctx, extract.Request{
		Prompt:      buildPrompt(req, scoped, businesses),
		Schema:      resultSchema(),
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		return Result{}, fmt.Errorf("categorize: infer: %w", err)
	}

	res := decodeResult(raw)

	// Snap near-matches onto the existing vocabulary before declaring a
	// brand-new category.
	if res.CategoryName != "" {
		if cat := closestCategory(scoped, res.CategoryName); cat != nil {
			res.CategoryID = cat.ID
			res.CategoryName = cat.Name
			res.IsNewCategory = false
		} else {
			res.IsNewCategory = true
		}
	}

	if res.IsBusinessExpense && res.BusinessID != "" && findBusinessByID(businesses, res.BusinessID) == nil {
		// The model invented a business id; keep the flag, drop the id.
		res.BusinessID = ""
	}

	res.NeedsReview = res.Confidence < req.MinConfidence
	return res, nil
}

func scopeCategories(cats []store.Category, transactionType, usageScope string) []store.Category {
	var out []store.Category
	for _, c := range cats {
		if c.TransactionType != "" && c.TransactionType != transactionType {
			continue
		}
		if usageScope != "" && c.UsageScope != "both" && c.UsageScope != usageScope {
			continue
		}
		out = append(out, c)
	}
	return out
}

func findCategoryByID(cats []store.Category, id string) *store.Category {
	for i := range cats {
		if cats[i].ID == id {
			return &cats[i]
		}
	}
	return nil
}

func findBusinessByID(businesses []store.Business, id string) *store.Business {
	for i := range businesses {
		if businesses[i].ID == id {
			return &businesses[i]
		}
	}
	return nil
}

func closestCategory(cats []store.Category, name string) *store.Category {
	norm := normalize(name)
	best := -1
	bestDist := snapDistance + 1
	for i := range cats {
		d := levenshtein.ComputeDistance(norm, normalize(cats[i].Name))
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	return &cats[best]
}

func resultSchema() *schema.Schema {
	return schema.NewObject(
		schema.Prop("categoryName", schema.Str("chosen category name, or a proposed new category name")),
		schema.Prop("confidence", schema.Num("confidence 0 to 1")),
		schema.Prop("isNewCategory", schema.Bool("true when categoryName is not in the provided list")),
		schema.Prop("isBusinessExpense", schema.Bool("true when this looks like a business expense")),
		schema.Prop("businessId", schema.Str("id of the matching business from the provided list").AsNullable()),
	)
}

func buildPrompt(req Request, scoped []store.Category, businesses []store.Business) string {
	var b strings.Builder
	b.WriteString("You are a transaction categorization assistant.\n\n")
	b.WriteString("Transaction:\n")
	if req.MerchantName != "" {
		b.WriteString(fmt.Sprintf("- merchant: %s\n", req.MerchantName))
	}
	if req.Description != "" {
		b.WriteString(fmt.Sprintf("- description: %s\n", req.Description))
	}
	b.WriteString(fmt.Sprintf("- amount: %.2f\n", req.Amount))
	b.WriteString(fmt.Sprintf("- type: %s\n\n", req.TransactionType))

	b.WriteString("Available categories:\n")
	for _, c := range scoped {
		b.WriteString("- " + c.Name + "\n")
	}
	b.WriteString("\nPrefer an existing category. Only propose a new category name when nothing fits, and set isNewCategory accordingly.\n")

	if len(businesses) > 0 {
		b.WriteString("\nUser businesses (for business-expense attribution):\n")
		for _, biz := range businesses {
			b.WriteString(fmt.Sprintf("- id=%s name=%s\n", biz.ID, biz.Name))
		}
		b.WriteString("Set businessId only when the expense clearly belongs to one of these.\n")
	}
	return b.String()
}

func decodeResult(raw map[string]any) Result {
	res := Result{}
	if v, ok := raw["categoryName"].(string); ok {
		res.CategoryName = strings.TrimSpace(v)
	}
	if v, ok := raw["confidence"].(float64); ok {
		res.Confidence = clamp01(v)
	}
	if v, ok := raw["isNewCategory"].(bool); ok {
		res.IsNewCategory = v
	}
	if v, ok := raw["isBusinessExpense"].(bool); ok {
		res.IsBusinessExpense = v
	}
	if v, ok := raw["businessId"].(string); ok {
		res.BusinessID = strings.TrimSpace(v)
	}
	return res
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
