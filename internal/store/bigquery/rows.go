// Package bigquery is the durable store implementation over BigQuery
// tables. One shared client is injected; table rows mirror the store
// types with snake_case columns.
package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/ledgerline/ledgerline/internal/store"
)

// Table names inside the configured dataset.
const (
	categoriesTable    = "categories"
	categoryRulesTable = "category_rules"
	businessesTable    = "businesses"
	batchesTable       = "batches"
	batchItemsTable    = "batch_items"
	activityLogTable   = "activity_log"
	documentsTable     = "documents"
	transactionsTable  = "transactions"
	fileHashesTable    = "file_hashes"
)

type categoryRow struct {
	CategoryID      string `bigquery:"category_id"`      // REQUIRED
	Name            string `bigquery:"name"`             // REQUIRED
	Scope           string `bigquery:"scope"`            // REQUIRED ("system" or "user")
	TransactionType string `bigquery:"transaction_type"` // REQUIRED
	UsageScope      string `bigquery:"usage_scope"`      // REQUIRED

	UserID bigquery.NullString `bigquery:"user_id"` // NULLABLE (system rows)
}

func (r *categoryRow) toCategory() store.Category {
	return store.Category{
		ID:              r.CategoryID,
		Name:            r.Name,
		Scope:           store.CategoryScope(r.Scope),
		TransactionType: r.TransactionType,
		UsageScope:      r.UsageScope,
		UserID:          r.UserID.StringVal,
	}
}

type categoryRuleRow struct {
	RuleID     string `bigquery:"rule_id"`     // REQUIRED
	UserID     string `bigquery:"user_id"`     // REQUIRED
	CategoryID string `bigquery:"category_id"` // REQUIRED
	Field      string `bigquery:"field"`       // REQUIRED
	MatchType  string `bigquery:"match_type"`  // REQUIRED
	Value      string `bigquery:"value"`       // REQUIRED
	Position   int64  `bigquery:"position"`    // REQUIRED (INTEGER in BQ maps to int64)
}

func (r *categoryRuleRow) toRule() store.CategoryRule {
	return store.CategoryRule{
		ID:         r.RuleID,
		UserID:     r.UserID,
		CategoryID: r.CategoryID,
		Field:      r.Field,
		MatchType:  r.MatchType,
		Value:      r.Value,
		Position:   int(r.Position),
	}
}

type businessRow struct {
	BusinessID string `bigquery:"business_id"` // REQUIRED
	UserID     string `bigquery:"user_id"`     // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED
}

type batchRow struct {
	BatchID   string    `bigquery:"batch_id"`   // REQUIRED
	UserID    string    `bigquery:"user_id"`    // REQUIRED
	Cancelled bool      `bigquery:"cancelled"`  // REQUIRED
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type batchItemRow struct {
	ItemID       string `bigquery:"item_id"`       // REQUIRED
	BatchID      string `bigquery:"batch_id"`      // REQUIRED
	UserID       string `bigquery:"user_id"`       // REQUIRED
	FileURL      string `bigquery:"file_url"`      // REQUIRED
	FileName     string `bigquery:"file_name"`     // REQUIRED
	FileFormat   string `bigquery:"file_format"`   // REQUIRED
	ImportType   string `bigquery:"import_type"`   // REQUIRED
	SourceFormat string `bigquery:"source_format"` // REQUIRED (may be empty)
	ItemOrder    int64  `bigquery:"item_order"`    // REQUIRED

	Status string `bigquery:"status"` // REQUIRED

	Error      bigquery.NullString `bigquery:"error"`       // NULLABLE
	DocumentID bigquery.NullString `bigquery:"document_id"` // NULLABLE
}

func (r *batchItemRow) toItem() store.BatchItem {
	return store.BatchItem{
		ID:           r.ItemID,
		BatchID:      r.BatchID,
		UserID:       r.UserID,
		FileURL:      r.FileURL,
		FileName:     r.FileName,
		FileFormat:   r.FileFormat,
		ImportType:   r.ImportType,
		SourceFormat: r.SourceFormat,
		Order:        int(r.ItemOrder),
		Status:       store.ItemStatus(r.Status),
		Error:        r.Error.StringVal,
		DocumentID:   r.DocumentID.StringVal,
	}
}

type activityRow struct {
	ActivityID   string `bigquery:"activity_id"`   // REQUIRED
	BatchID      string `bigquery:"batch_id"`      // REQUIRED
	BatchItemID  string `bigquery:"batch_item_id"` // REQUIRED
	ActivityType string `bigquery:"activity_type"` // REQUIRED
	Message      string `bigquery:"message"`       // REQUIRED
	DurationMs   int64  `bigquery:"duration_ms"`   // REQUIRED

	Metadata bigquery.NullJSON `bigquery:"metadata"` // NULLABLE (JSON)

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type documentRow struct {
	DocumentID   string `bigquery:"document_id"`   // REQUIRED
	UserID       string `bigquery:"user_id"`       // REQUIRED
	BatchItemID  string `bigquery:"batch_item_id"` // REQUIRED
	DocumentType string `bigquery:"document_type"` // REQUIRED

	MerchantName bigquery.NullString    `bigquery:"merchant_name"` // NULLABLE
	DocumentDate bigquery.NullTimestamp `bigquery:"document_date"` // NULLABLE
	Subtotal     bigquery.NullFloat64   `bigquery:"subtotal"`      // NULLABLE
	TaxTotal     bigquery.NullFloat64   `bigquery:"tax_total"`     // NULLABLE
	Tip          bigquery.NullFloat64   `bigquery:"tip"`           // NULLABLE

	TotalAmount float64 `bigquery:"total_amount"` // REQUIRED

	PaymentMethod bigquery.NullString `bigquery:"payment_method"` // NULLABLE
	Currency      bigquery.NullString `bigquery:"currency"`       // NULLABLE
	CategoryID    bigquery.NullString `bigquery:"category_id"`    // NULLABLE
	CategoryName  bigquery.NullString `bigquery:"category_name"`  // NULLABLE
	BusinessID    bigquery.NullString `bigquery:"business_id"`    // NULLABLE

	Confidence     float64             `bigquery:"confidence"`       // REQUIRED
	ChecksumSHA256 string              `bigquery:"checksum_sha256"`  // REQUIRED
	RawModelOutput bigquery.NullString `bigquery:"raw_model_output"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type transactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED
	BatchItemID   string `bigquery:"batch_item_id"`  // REQUIRED

	TransactionDate civil.Date        `bigquery:"transaction_date"` // REQUIRED (DATE)
	PostedDate      bigquery.NullDate `bigquery:"posted_date"`      // NULLABLE (DATE)

	Description string               `bigquery:"description"` // REQUIRED
	Amount      float64              `bigquery:"amount"`      // REQUIRED
	Balance     bigquery.NullFloat64 `bigquery:"balance"`     // NULLABLE

	MerchantName    bigquery.NullString `bigquery:"merchant_name"`    // NULLABLE
	CategoryID      bigquery.NullString `bigquery:"category_id"`      // NULLABLE
	CategoryName    bigquery.NullString `bigquery:"category_name"`    // NULLABLE
	ReferenceNumber bigquery.NullString `bigquery:"reference_number"` // NULLABLE
	Currency        bigquery.NullString `bigquery:"currency"`         // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

type fileHashRow struct {
	UserID         string    `bigquery:"user_id"`         // REQUIRED
	ChecksumSHA256 string    `bigquery:"checksum_sha256"` // REQUIRED
	DocumentID     string    `bigquery:"document_id"`     // REQUIRED
	CreatedTS      time.Time `bigquery:"created_ts"`      // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullFloat(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}

func nullTimestamp(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: *t, Valid: true}
}

func nullDate(t *time.Time) bigquery.NullDate {
	if t == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: civil.DateOf(*t), Valid: true}
}

func nullJSON(v map[string]any) bigquery.NullJSON {
	if len(v) == 0 {
		return bigquery.NullJSON{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return bigquery.NullJSON{}
	}
	return bigquery.NullJSON{JSONVal: string(raw), Valid: true}
}
