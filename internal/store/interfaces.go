package store

import "context"

// CategoryStore reads the category/rule tables. The pipeline only reads
// these; writes happen through unrelated user-facing flows, so the
// interface stays read-mostly (seeding excepted).
type CategoryStore interface {
	// ListCategories returns system categories plus the user's own.
	ListCategories(ctx context.Context, userID string) ([]Category, error)

	// ListRules returns the user's rules in stored (creation) order.
	ListRules(ctx context.Context, userID string) ([]CategoryRule, error)

	// ListBusinesses returns the user's businesses.
	ListBusinesses(ctx context.Context, userID string) ([]Business, error)

	// SeedSystemCategories installs the process-wide category taxonomy.
	// Existing system categories with the same name are left untouched.
	SeedSystemCategories(ctx context.Context, categories []Category) error
}

// BatchStore owns batch and batch-item rows. TransitionItem is the
// idempotency guard: the orchestrator only proceeds when the
// check-and-transition succeeds atomically.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *Batch) error
	CreateItem(ctx context.Context, item *BatchItem) error

	GetBatch(ctx context.Context, batchID string) (*Batch, error)
	GetItem(ctx context.Context, itemID string) (*BatchItem, error)
	ListItems(ctx context.Context, batchID string) ([]BatchItem, error)

	// TransitionItem atomically moves an item from one status to another.
	// It returns false (and no error) when the item is not in the
	// expected from status.
	TransitionItem(ctx context.Context, itemID string, from, to ItemStatus) (bool, error)

	// FinishItem records the single terminal write for an item.
	FinishItem(ctx context.Context, itemID string, status ItemStatus, errorMsg, documentID string) error

	// CancelBatch flags a batch for no-further-dispatch. In-flight items
	// run to completion.
	CancelBatch(ctx context.Context, batchID string) error
}

// ActivityStore appends activity-log rows. Append-only and safe for
// concurrent writers.
type ActivityStore interface {
	Append(ctx context.Context, entry ActivityEntry) error
}

// DocumentStore persists extraction results and content hashes.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *DocumentRecord) error
	InsertTransactions(ctx context.Context, txs []*TransactionRecord) error

	// FindFileHash returns the document ID already recorded for this
	// user and checksum, or "" when the content is new.
	FindFileHash(ctx context.Context, userID, checksum string) (string, error)

	// RecordFileHash remembers a processed file's checksum.
	RecordFileHash(ctx context.Context, userID, checksum, documentID string) error
}
