package categorize

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ledgerline/ledgerline/internal/store"
)

// seedFile is the YAML shape of the system category taxonomy.
type seedFile struct {
	Categories []seedCategory `yaml:"categories"`
}

type seedCategory struct {
	Name            string `yaml:"name"`
	TransactionType string `yaml:"transaction_type"`
	UsageScope      string `yaml:"usage_scope"`
}

// SeedFromFile loads the system category taxonomy from a YAML file and
// installs it into the store. Missing usage scope defaults to "both".
func SeedFromFile(ctx context.Context, categories store.CategoryStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("categorize: read seed file %q: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("categorize: parse seed file %q: %w", path, err)
	}
	if len(f.Categories) == 0 {
		return fmt.Errorf("categorize: seed file %q contains no categories", path)
	}

	rows := make([]store.Category, 0, len(f.Categories))
	for i, c := range f.Categories {
		if c.Name == "" {
			return fmt.Errorf("categorize: seed file %q: category %d has no name", path, i)
		}
		scope := c.UsageScope
		if scope == "" {
			scope = "both"
		}
		txType := c.TransactionType
		if txType == "" {
			txType = "expense"
		}
		rows = append(rows, store.Category{
			ID:              uuid.NewString(),
			Name:            c.Name,
			Scope:           store.ScopeSystem,
			TransactionType: txType,
			UsageScope:      scope,
		})
	}

	if err := categories.SeedSystemCategories(ctx, rows); err != nil {
		return fmt.Errorf("categorize: seed categories: %w", err)
	}
	return nil
}
