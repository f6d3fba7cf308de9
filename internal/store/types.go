// Package store defines the durable-store boundary of the pipeline. The
// core depends only on these field-level operations keyed by id/userId,
// never on a specific storage engine; memory and bigquery provide the
// concrete implementations.
package store

import "time"

// CategoryScope distinguishes process-wide seed data from user-owned rows.
type CategoryScope string

const (
	ScopeSystem CategoryScope = "system"
	ScopeUser   CategoryScope = "user"
)

// Category is one selectable transaction category.
type Category struct {
	ID              string
	Name            string
	Scope           CategoryScope
	TransactionType string // "income" or "expense"
	UsageScope      string // "personal", "business" or "both"
	UserID          string // empty for system categories
}

// CategoryRule is a deterministic categorization rule. Rules are
// evaluated in stored order; the first match wins.
type CategoryRule struct {
	ID         string
	UserID     string
	CategoryID string
	Field      string // "merchantName" or "description"
	MatchType  string // "exact", "contains" or "regex"
	Value      string
	Position   int
}

// Business is a user-owned business a transaction may be attributed to.
type Business struct {
	ID     string
	UserID string
	Name   string
}

// ItemStatus is the lifecycle state of one batch item.
type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemDuplicate  ItemStatus = "duplicate"
)

// Terminal reports whether the status admits no further transition.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemDuplicate:
		return true
	}
	return false
}

// Batch groups the items of one user-submitted import.
type Batch struct {
	ID        string
	UserID    string
	Cancelled bool
	CreatedAt time.Time
}

// BatchItem is one source file within a batch.
type BatchItem struct {
	ID           string
	BatchID      string
	UserID       string
	FileURL      string
	FileName     string
	FileFormat   string
	ImportType   string
	SourceFormat string
	Order        int

	Status     ItemStatus
	Error      string
	DocumentID string
}

// ActivityEntry is one append-only activity-log row. Entries are never
// mutated after the append.
type ActivityEntry struct {
	ID           string
	BatchID      string
	BatchItemID  string
	ActivityType string
	Message      string
	DurationMs   int64
	Metadata     map[string]any
	CreatedAt    time.Time
}

// DocumentRecord is the persisted result of one processed document.
type DocumentRecord struct {
	DocumentID     string
	UserID         string
	BatchItemID    string
	DocumentType   string
	MerchantName   string
	DocumentDate   *time.Time
	Subtotal       *float64
	TaxTotal       *float64
	Tip            *float64
	TotalAmount    float64
	PaymentMethod  string
	Currency       string
	CategoryID     string
	CategoryName   string
	BusinessID     string
	Confidence     float64
	ChecksumSHA256 string
	RawModelOutput string
	CreatedAt      time.Time
}

// TransactionRecord is one persisted normalized transaction from a
// spreadsheet import.
type TransactionRecord struct {
	TransactionID   string
	UserID          string
	BatchItemID     string
	TransactionDate time.Time
	PostedDate      *time.Time
	Description     string
	Amount          float64
	Balance         *float64
	MerchantName    string
	CategoryID      string
	CategoryName    string
	ReferenceNumber string
	Currency        string
	CreatedAt       time.Time
}
