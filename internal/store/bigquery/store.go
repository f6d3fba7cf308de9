package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/ledgerline/ledgerline/internal/store"
)

// Store implements the store interfaces over one shared BigQuery client.
// The client lifecycle belongs to the caller.
type Store struct {
	client  *bigquery.Client
	dataset string
}

// New builds a store over the given client and dataset.
func New(client *bigquery.Client, dataset string) *Store {
	return &Store{client: client, dataset: dataset}
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.client.Project(), s.dataset, name)
}

// --- CategoryStore ---

func (s *Store) ListCategories(ctx context.Context, userID string) ([]store.Category, error) {
	query := fmt.Sprintf(`
		SELECT category_id, name, scope, transaction_type, usage_scope, user_id
		FROM %s
		WHERE scope = 'system' OR user_id = @user_id
		ORDER BY name
	`, s.table(categoriesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: reading query: %w", err)
	}

	var out []store.Category
	for {
		var row categoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iterating: %w", err)
		}
		out = append(out, row.toCategory())
	}
	return out, nil
}

func (s *Store) ListRules(ctx context.Context, userID string) ([]store.CategoryRule, error) {
	query := fmt.Sprintf(`
		SELECT rule_id, user_id, category_id, field, match_type, value, position
		FROM %s
		WHERE user_id = @user_id
		ORDER BY position
	`, s.table(categoryRulesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRules: reading query: %w", err)
	}

	var out []store.CategoryRule
	for {
		var row categoryRuleRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRules: iterating: %w", err)
		}
		out = append(out, row.toRule())
	}
	return out, nil
}

func (s *Store) ListBusinesses(ctx context.Context, userID string) ([]store.Business, error) {
	query := fmt.Sprintf(`
		SELECT business_id, user_id, name
		FROM %s
		WHERE user_id = @user_id
		ORDER BY name
	`, s.table(businessesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListBusinesses: reading query: %w", err)
	}

	var out []store.Business
	for {
		var row businessRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListBusinesses: iterating: %w", err)
		}
		out = append(out, store.Business{ID: row.BusinessID, UserID: row.UserID, Name: row.Name})
	}
	return out, nil
}

func (s *Store) SeedSystemCategories(ctx context.Context, categories []store.Category) error {
	existing, err := s.systemCategoryNames(ctx)
	if err != nil {
		return err
	}

	var rows []*categoryRow
	for _, c := range categories {
		if existing[c.Name] {
			continue
		}
		rows = append(rows, &categoryRow{
			CategoryID:      c.ID,
			Name:            c.Name,
			Scope:           string(store.ScopeSystem),
			TransactionType: c.TransactionType,
			UsageScope:      c.UsageScope,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	inserter := s.client.Dataset(s.dataset).Table(categoriesTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("SeedSystemCategories: inserting rows: %w", err)
	}
	return nil
}

func (s *Store) systemCategoryNames(ctx context.Context) (map[string]bool, error) {
	query := fmt.Sprintf(`
		SELECT name FROM %s WHERE scope = 'system'
	`, s.table(categoriesTable))

	it, err := s.client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("systemCategoryNames: reading query: %w", err)
	}

	names := make(map[string]bool)
	for {
		var row struct {
			Name string `bigquery:"name"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("systemCategoryNames: iterating: %w", err)
		}
		names[row.Name] = true
	}
	return names, nil
}

// --- BatchStore ---

func (s *Store) CreateBatch(ctx context.Context, batch *store.Batch) error {
	row := &batchRow{
		BatchID:   batch.ID,
		UserID:    batch.UserID,
		Cancelled: batch.Cancelled,
		CreatedTS: batch.CreatedAt,
	}
	inserter := s.client.Dataset(s.dataset).Table(batchesTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("CreateBatch: inserting row: %w", err)
	}
	return nil
}

func (s *Store) CreateItem(ctx context.Context, item *store.BatchItem) error {
	status := item.Status
	if status == "" {
		status = store.ItemQueued
	}
	row := &batchItemRow{
		ItemID:       item.ID,
		BatchID:      item.BatchID,
		UserID:       item.UserID,
		FileURL:      item.FileURL,
		FileName:     item.FileName,
		FileFormat:   item.FileFormat,
		ImportType:   item.ImportType,
		SourceFormat: item.SourceFormat,
		ItemOrder:    int64(item.Order),
		Status:       string(status),
	}
	inserter := s.client.Dataset(s.dataset).Table(batchItemsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("CreateItem: inserting row: %w", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchID string) (*store.Batch, error) {
	query := fmt.Sprintf(`
		SELECT batch_id, user_id, cancelled, created_ts
		FROM %s
		WHERE batch_id = @batch_id
		LIMIT 1
	`, s.table(batchesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "batch_id", Value: batchID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetBatch: reading query: %w", err)
	}

	var row batchRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetBatch: batch %s not found", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetBatch: reading row: %w", err)
	}
	return &store.Batch{ID: row.BatchID, UserID: row.UserID, Cancelled: row.Cancelled, CreatedAt: row.CreatedTS}, nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*store.BatchItem, error) {
	query := fmt.Sprintf(`
		SELECT item_id, batch_id, user_id, file_url, file_name, file_format,
			import_type, source_format, item_order, status, error, document_id
		FROM %s
		WHERE item_id = @item_id
		LIMIT 1
	`, s.table(batchItemsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "item_id", Value: itemID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetItem: reading query: %w", err)
	}

	var row batchItemRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetItem: item %s not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetItem: reading row: %w", err)
	}
	item := row.toItem()
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context, batchID string) ([]store.BatchItem, error) {
	query := fmt.Sprintf(`
		SELECT item_id, batch_id, user_id, file_url, file_name, file_format,
			import_type, source_format, item_order, status, error, document_id
		FROM %s
		WHERE batch_id = @batch_id
		ORDER BY item_order
	`, s.table(batchItemsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "batch_id", Value: batchID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListItems: reading query: %w", err)
	}

	var out []store.BatchItem
	for {
		var row batchItemRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListItems: iterating: %w", err)
		}
		out = append(out, row.toItem())
	}
	return out, nil
}

// TransitionItem relies on the conditional UPDATE matching zero rows when
// the item is not in the expected status; the affected-row count is the
// atomicity signal.
func (s *Store) TransitionItem(ctx context.Context, itemID string, from, to store.ItemStatus) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = @to_status
		WHERE item_id = @item_id AND status = @from_status
	`, s.table(batchItemsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "item_id", Value: itemID},
		{Name: "from_status", Value: string(from)},
		{Name: "to_status", Value: string(to)},
	}

	affected, err := s.runDML(ctx, q)
	if err != nil {
		return false, fmt.Errorf("TransitionItem: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) FinishItem(ctx context.Context, itemID string, status store.ItemStatus, errorMsg, documentID string) error {
	if !status.Terminal() {
		return fmt.Errorf("FinishItem: non-terminal status %q", status)
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = @status, error = @error, document_id = @document_id
		WHERE item_id = @item_id
	`, s.table(batchItemsTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "item_id", Value: itemID},
		{Name: "status", Value: string(status)},
		{Name: "error", Value: errorMsg},
		{Name: "document_id", Value: documentID},
	}

	if _, err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("FinishItem: %w", err)
	}
	return nil
}

func (s *Store) CancelBatch(ctx context.Context, batchID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET cancelled = TRUE
		WHERE batch_id = @batch_id
	`, s.table(batchesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{{Name: "batch_id", Value: batchID}}

	if _, err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("CancelBatch: %w", err)
	}
	return nil
}

func (s *Store) runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job failed: %w", err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// --- ActivityStore ---

func (s *Store) Append(ctx context.Context, entry store.ActivityEntry) error {
	row := &activityRow{
		ActivityID:   entry.ID,
		BatchID:      entry.BatchID,
		BatchItemID:  entry.BatchItemID,
		ActivityType: entry.ActivityType,
		Message:      entry.Message,
		DurationMs:   entry.DurationMs,
		Metadata:     nullJSON(entry.Metadata),
		CreatedTS:    entry.CreatedAt,
	}
	inserter := s.client.Dataset(s.dataset).Table(activityLogTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("Append: inserting activity row: %w", err)
	}
	return nil
}

// --- DocumentStore ---

func (s *Store) InsertDocument(ctx context.Context, doc *store.DocumentRecord) error {
	row := &documentRow{
		DocumentID:     doc.DocumentID,
		UserID:         doc.UserID,
		BatchItemID:    doc.BatchItemID,
		DocumentType:   doc.DocumentType,
		MerchantName:   nullString(doc.MerchantName),
		DocumentDate:   nullTimestamp(doc.DocumentDate),
		Subtotal:       nullFloat(doc.Subtotal),
		TaxTotal:       nullFloat(doc.TaxTotal),
		Tip:            nullFloat(doc.Tip),
		TotalAmount:    doc.TotalAmount,
		PaymentMethod:  nullString(doc.PaymentMethod),
		Currency:       nullString(doc.Currency),
		CategoryID:     nullString(doc.CategoryID),
		CategoryName:   nullString(doc.CategoryName),
		BusinessID:     nullString(doc.BusinessID),
		Confidence:     doc.Confidence,
		ChecksumSHA256: doc.ChecksumSHA256,
		RawModelOutput: nullString(doc.RawModelOutput),
		CreatedTS:      doc.CreatedAt,
	}
	inserter := s.client.Dataset(s.dataset).Table(documentsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertDocument: inserting row: %w", err)
	}
	return nil
}

func (s *Store) InsertTransactions(ctx context.Context, txs []*store.TransactionRecord) error {
	rows := make([]*transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &transactionRow{
			TransactionID:   tx.TransactionID,
			UserID:          tx.UserID,
			BatchItemID:     tx.BatchItemID,
			TransactionDate: civil.DateOf(tx.TransactionDate),
			PostedDate:      nullDate(tx.PostedDate),
			Description:     tx.Description,
			Amount:          tx.Amount,
			Balance:         nullFloat(tx.Balance),
			MerchantName:    nullString(tx.MerchantName),
			CategoryID:      nullString(tx.CategoryID),
			CategoryName:    nullString(tx.CategoryName),
			ReferenceNumber: nullString(tx.ReferenceNumber),
			Currency:        nullString(tx.Currency),
			CreatedTS:       tx.CreatedAt,
		})
	}
	inserter := s.client.Dataset(s.dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

func (s *Store) FindFileHash(ctx context.Context, userID, checksum string) (string, error) {
	query := fmt.Sprintf(`
		SELECT document_id
		FROM %s
		WHERE user_id = @user_id AND checksum_sha256 = @checksum
		LIMIT 1
	`, s.table(fileHashesTable))

	q := s.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "checksum", Value: checksum},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("FindFileHash: reading query: %w", err)
	}

	var row struct {
		DocumentID string `bigquery:"document_id"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("FindFileHash: reading row: %w", err)
	}
	return row.DocumentID, nil
}

func (s *Store) RecordFileHash(ctx context.Context, userID, checksum, documentID string) error {
	row := &fileHashRow{
		UserID:         userID,
		ChecksumSHA256: checksum,
		DocumentID:     documentID,
		CreatedTS:      time.Now(),
	}
	inserter := s.client.Dataset(s.dataset).Table(fileHashesTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("RecordFileHash: inserting row: %w", err)
	}
	return nil
}
