package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/categorize"
	"github.com/ledgerline/ledgerline/internal/mapping"
	"github.com/ledgerline/ledgerline/internal/processor"
	"github.com/ledgerline/ledgerline/internal/spreadsheet"
	"github.com/ledgerline/ledgerline/internal/store"
)

// rawOutputLimit bounds how much raw model output is persisted per
// document for diagnostics.
const rawOutputLimit = 4096

// Categorizer is the subset of the categorization engine the
// orchestrator uses on spreadsheet rows.
type Categorizer interface {
	Categorize(ctx context.Context, req categorize.Request) (categorize.Result, error)
}

// Orchestrator owns BatchItem state transitions. Nothing else in the
// system writes item states.
type Orchestrator struct {
	batches    store.BatchStore
	documents  store.DocumentStore
	activity   store.ActivityStore
	registry   *processor.Registry
	mapper     *mapping.Engine
	categorize Categorizer
	fetcher    processor.Fetcher
	log        zerolog.Logger

	workerCount int
	maxRetries  int

	// backoffBase is scaled by 2^attempt between retries. Overridable
	// in tests.
	backoffBase time.Duration
}

// Options configures the orchestrator pool and retry policy.
type Options struct {
	WorkerCount int
	MaxRetries  int
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(
	batches store.BatchStore,
	documents store.DocumentStore,
	activity store.ActivityStore,
	registry *processor.Registry,
	mapper *mapping.Engine,
	categorizer Categorizer,
	fetcher processor.Fetcher,
	log zerolog.Logger,
	opts Options,
) *Orchestrator {
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	return &Orchestrator{
		batches:     batches,
		documents:   documents,
		activity:    activity,
		registry:    registry,
		mapper:      mapper,
		categorize:  categorizer,
		fetcher:     fetcher,
		log:         log,
		workerCount: opts.WorkerCount,
		maxRetries:  opts.MaxRetries,
		backoffBase: time.Second,
	}
}

// ProcessItem handles one job delivery. Deliveries are at-least-once, so
// the method is idempotent: a terminal item is reported again without
// reprocessing, and the queued->processing transition is atomic.
func (o *Orchestrator) ProcessItem(ctx context.Context, payload JobPayload) JobResult {
	item, err := o.batches.GetItem(ctx, payload.BatchItemID)
	if err != nil {
		return failResult(payload.BatchItemID, CodeStoreFailed, fmt.Errorf("load item: %w", err))
	}

	if item.Status.Terminal() {
		return o.terminalResult(item)
	}

	batch, err := o.batches.GetBatch(ctx, payload.BatchID)
	if err != nil {
		return failResult(payload.BatchItemID, CodeStoreFailed, fmt.Errorf("load batch: %w", err))
	}
	if batch.Cancelled && item.Status == store.ItemQueued {
		// No-further-dispatch: the item is left queued, not failed.
		return JobResult{Success: false, BatchItemID: item.ID, ErrorCode: CodeBatchCancelled, Error: "batch cancelled"}
	}

	ok, err := o.batches.TransitionItem(ctx, item.ID, store.ItemQueued, store.ItemProcessing)
	if err != nil {
		return failResult(item.ID, CodeStoreFailed, fmt.Errorf("transition item: %w", err))
	}
	if !ok {
		// Lost the race: another delivery holds the item. Re-read and
		// report whatever state it reached.
		current, err := o.batches.GetItem(ctx, item.ID)
		if err == nil && current.Status.Terminal() {
			return o.terminalResult(current)
		}
		return JobResult{Success: false, BatchItemID: item.ID, Error: "item already in flight"}
	}

	started := time.Now()
	o.appendActivity(ctx, payload, ActivityItemStarted, "processing started", 0, nil)

	result := o.runItem(ctx, payload, started)

	logEvent := o.log.Info()
	if !result.Success {
		logEvent = o.log.Warn()
	}
	logEvent.
		Str("batch_id", payload.BatchID).
		Str("batch_item_id", payload.BatchItemID).
		Bool("success", result.Success).
		Bool("duplicate", result.Duplicate).
		Str("error_code", result.ErrorCode).
		Dur("took", time.Since(started)).
		Msg("batch item finished")
	return result
}

// runItem performs fetch -> duplicate check -> dispatch -> persist and
// writes the single terminal state.
func (o *Orchestrator) runItem(ctx context.Context, payload JobPayload, started time.Time) JobResult {
	data, err := o.fetcher.Fetch(ctx, payload.FileURL)
	if err != nil {
		return o.failItem(ctx, payload, started, CodeFetchFailed, err)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	existingDoc, hashErr := o.documents.FindFileHash(ctx, payload.UserID, checksum)
	if hashErr != nil {
		// Processing continues without the duplicate check, but the
		// outage must be visible.
		o.log.Warn().
			Err(hashErr).
			Str("batch_item_id", payload.BatchItemID).
			Msg("duplicate lookup failed, proceeding without it")
	}
	if hashErr == nil && existingDoc != "" {
		if err := o.batches.FinishItem(ctx, payload.BatchItemID, store.ItemDuplicate, "", existingDoc); err != nil {
			return failResult(payload.BatchItemID, CodeStoreFailed, err)
		}
		o.appendActivity(ctx, payload, ActivityDuplicateDetected,
			fmt.Sprintf("duplicate of document %s", existingDoc),
			time.Since(started).Milliseconds(), nil)
		return JobResult{Success: true, BatchItemID: payload.BatchItemID, DocumentID: existingDoc, Duplicate: true}
	}

	var documentID string
	var meta map[string]any
	if isSpreadsheetImport(payload) {
		documentID, meta, err = o.processSpreadsheet(ctx, payload, data, checksum)
	} else {
		documentID, meta, err = o.processDocument(ctx, payload, data, checksum)
	}
	if err != nil {
		return o.failItem(ctx, payload, started, errorCode(err), err)
	}

	if err := o.batches.FinishItem(ctx, payload.BatchItemID, store.ItemCompleted, "", documentID); err != nil {
		return failResult(payload.BatchItemID, CodeStoreFailed, err)
	}
	o.appendActivity(ctx, payload, ActivityItemCompleted, "processing completed",
		time.Since(started).Milliseconds(), meta)

	return JobResult{Success: true, BatchItemID: payload.BatchItemID, DocumentID: documentID}
}

// processDocument runs the receipt/invoice path.
func (o *Orchestrator) processDocument(ctx context.Context, payload JobPayload, data []byte, checksum string) (string, map[string]any, error) {
	proc, ok := o.registry.Lookup(resolveImportType(payload))
	if !ok {
		return "", nil, fmt.Errorf("no processor for import type %q", payload.ImportType)
	}

	doc, err := proc.ProcessDocument(ctx, payload.UserID, payload.FileURL, payload.FileName)
	if err != nil {
		return "", nil, err
	}

	record := documentRecord(payload, doc, checksum)
	if err := o.documents.InsertDocument(ctx, record); err != nil {
		return "", nil, fmt.Errorf("persist document: %w", err)
	}
	if err := o.documents.RecordFileHash(ctx, payload.UserID, checksum, record.DocumentID); err != nil {
		return "", nil, fmt.Errorf("record file hash: %w", err)
	}

	meta := map[string]any{
		"provider":    doc.Provider,
		"tokens_used": doc.TokensUsed,
		"confidence":  doc.Confidence,
	}
	return record.DocumentID, meta, nil
}

// processSpreadsheet runs the column-mapping + parsing path.
func (o *Orchestrator) processSpreadsheet(ctx context.Context, payload JobPayload, data []byte, checksum string) (string, map[string]any, error) {
	rows, err := spreadsheet.Read(payload.FileName, data)
	if err != nil {
		return "", nil, err
	}

	cfg, err := o.mapper.DetectMapping(ctx,
		spreadsheet.Preview(rows, mapping.PreviewRowLimit),
		rows,
		mapping.Context{StatementType: mapping.StatementType(payload.SourceFormat)},
	)
	if err != nil {
		return "", nil, err
	}

	txs := mapping.ApplyMapping(rows, cfg)
	if len(txs) == 0 {
		return "", nil, fmt.Errorf("%w: no rows passed date/amount validation", mapping.ErrNoMapping)
	}

	documentID := uuid.NewString()
	records := make([]*store.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		rec := transactionRecord(payload, tx, cfg.Currency)

		// Rules-first categorization per transaction; AI fallback is
		// inside the engine. A failure leaves the row uncategorized.
		res, catErr := o.categorize.Categorize(ctx, categorize.Request{
			MerchantName: tx.MerchantName,
			Description:  tx.Description,
			Amount:       tx.Amount,
			UserID:       payload.UserID,
		})
		if catErr != nil {
			o.log.Warn().Err(catErr).Str("batch_item_id", payload.BatchItemID).
				Msg("transaction categorization failed")
		} else {
			rec.CategoryID = res.CategoryID
			rec.CategoryName = res.CategoryName
		}
		records = append(records, rec)
	}

	if err := o.documents.InsertTransactions(ctx, records); err != nil {
		return "", nil, fmt.Errorf("persist transactions: %w", err)
	}
	if err := o.documents.RecordFileHash(ctx, payload.UserID, checksum, documentID); err != nil {
		return "", nil, fmt.Errorf("record file hash: %w", err)
	}

	meta := map[string]any{
		"transactions":       len(records),
		"mapping_confidence": cfg.Confidence,
	}
	return documentID, meta, nil
}

// ProcessBatch drives every payload of one batch through a bounded
// worker pool. Items are independent; there is no ordering guarantee
// between them. Each item gets a bounded retry budget with exponential
// backoff before its failure is final.
func (o *Orchestrator) ProcessBatch(ctx context.Context, payloads []JobPayload) Summary {
	jobs := make(chan JobPayload)
	var wg sync.WaitGroup

	for i := 0; i < o.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for payload := range jobs {
				o.processWithRetry(ctx, payload)
			}
		}()
	}

	var batchID string
	for _, p := range payloads {
		batchID = p.BatchID
		select {
		case jobs <- p:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	summary, err := o.BatchStatus(ctx, batchID)
	if err != nil {
		o.log.Error().Err(err).Str("batch_id", batchID).Msg("derive batch status")
		return Summary{BatchID: batchID, Status: "processing"}
	}
	return summary
}

func (o *Orchestrator) processWithRetry(ctx context.Context, payload JobPayload) {
	for attempt := 0; ; attempt++ {
		result := o.ProcessItem(ctx, payload)
		if result.Success || result.ErrorCode == CodeBatchCancelled {
			return
		}
		if attempt >= o.maxRetries || !retryable(result.ErrorCode) {
			return
		}

		// The item failed terminally in the store; requeue it for the
		// retry so the state machine admits another attempt.
		requeued, err := o.batches.TransitionItem(ctx, payload.BatchItemID, store.ItemFailed, store.ItemQueued)
		if err != nil || !requeued {
			return
		}

		backoff := o.backoffBase << attempt
		o.log.Info().
			Str("batch_item_id", payload.BatchItemID).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("retrying batch item")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

// retryable reports whether an error code is worth another attempt.
// Validation and mapping failures are deterministic; retrying them only
// spends money.
func retryable(code string) bool {
	switch code {
	case CodeExtractionValidation, CodeMappingDetection, CodeStoreFailed:
		return false
	}
	return true
}

// BatchStatus derives the batch summary from item states.
func (o *Orchestrator) BatchStatus(ctx context.Context, batchID string) (Summary, error) {
	items, err := o.batches.ListItems(ctx, batchID)
	if err != nil {
		return Summary{}, fmt.Errorf("batch: list items: %w", err)
	}
	return summarize(batchID, items), nil
}

// CancelBatch flags a batch for no-further-dispatch. In-flight items run
// to completion.
func (o *Orchestrator) CancelBatch(ctx context.Context, batchID string) error {
	return o.batches.CancelBatch(ctx, batchID)
}

func (o *Orchestrator) failItem(ctx context.Context, payload JobPayload, started time.Time, code string, err error) JobResult {
	if ferr := o.batches.FinishItem(ctx, payload.BatchItemID, store.ItemFailed, err.Error(), ""); ferr != nil {
		o.log.Error().Err(ferr).Str("batch_item_id", payload.BatchItemID).Msg("record item failure")
	}
	o.appendActivity(ctx, payload, ActivityItemFailed, err.Error(),
		time.Since(started).Milliseconds(), nil)
	return failResult(payload.BatchItemID, code, err)
}

func (o *Orchestrator) appendActivity(ctx context.Context, payload JobPayload, activityType, message string, durationMs int64, meta map[string]any) {
	entry := store.ActivityEntry{
		ID:           uuid.NewString(),
		BatchID:      payload.BatchID,
		BatchItemID:  payload.BatchItemID,
		ActivityType: activityType,
		Message:      message,
		DurationMs:   durationMs,
		Metadata:     meta,
		CreatedAt:    time.Now(),
	}
	if err := o.activity.Append(ctx, entry); err != nil {
		// The log is best-effort; a log write must never fail an item.
		o.log.Error().Err(err).Str("batch_item_id", payload.BatchItemID).Msg("append activity log")
	}
}

func (o *Orchestrator) terminalResult(item *store.BatchItem) JobResult {
	switch item.Status {
	case store.ItemCompleted:
		return JobResult{Success: true, BatchItemID: item.ID, DocumentID: item.DocumentID}
	case store.ItemDuplicate:
		return JobResult{Success: true, BatchItemID: item.ID, DocumentID: item.DocumentID, Duplicate: true}
	default:
		return JobResult{Success: false, BatchItemID: item.ID, Error: item.Error}
	}
}

func failResult(itemID, code string, err error) JobResult {
	return JobResult{Success: false, BatchItemID: itemID, Error: err.Error(), ErrorCode: code}
}

func errorCode(err error) string {
	var vErr *processor.ValidationError
	if errors.As(err, &vErr) {
		return CodeExtractionValidation
	}
	if errors.Is(err, mapping.ErrNoMapping) {
		return CodeMappingDetection
	}
	return CodeProviderFailed
}

// isSpreadsheetImport decides the processing path. Declared bank
// statements always take the mapping path; mixed imports fall back to
// the file extension.
func isSpreadsheetImport(payload JobPayload) bool {
	if payload.ImportType == ImportBankStatements {
		return true
	}
	if payload.ImportType == ImportMixed {
		switch strings.ToLower(filepath.Ext(payload.FileName)) {
		case ".csv", ".xlsx", ".xlsm", ".xls", ".txt":
			return true
		}
	}
	return false
}

// resolveImportType maps a mixed import onto a concrete processor key.
func resolveImportType(payload JobPayload) string {
	if payload.ImportType != ImportMixed {
		return payload.ImportType
	}
	return ImportReceipts
}

func documentRecord(payload JobPayload, doc *processor.ExtractedDocument, checksum string) *store.DocumentRecord {
	rec := &store.DocumentRecord{
		DocumentID:     uuid.NewString(),
		UserID:         payload.UserID,
		BatchItemID:    payload.BatchItemID,
		DocumentType:   doc.DocumentType,
		MerchantName:   doc.MerchantName,
		DocumentDate:   doc.DocumentDate,
		Subtotal:       doc.Subtotal,
		Tip:            doc.Tip,
		TotalAmount:    doc.TotalAmount,
		PaymentMethod:  doc.PaymentMethod,
		Currency:       doc.Currency,
		CategoryID:     doc.CategoryID,
		CategoryName:   doc.CategoryName,
		BusinessID:     doc.BusinessID,
		Confidence:     doc.Confidence,
		ChecksumSHA256: checksum,
		CreatedAt:      time.Now(),
	}
	if len(doc.Taxes) > 0 {
		taxTotal := 0.0
		for _, v := range doc.Taxes {
			taxTotal += v
		}
		rec.TaxTotal = &taxTotal
	}
	if raw, err := json.Marshal(doc.RawOutput); err == nil {
		s := string(raw)
		if len(s) > rawOutputLimit {
			s = s[:rawOutputLimit]
		}
		rec.RawModelOutput = s
	}
	return rec
}

func transactionRecord(payload JobPayload, tx mapping.NormalizedTransaction, currency string) *store.TransactionRecord {
	return &store.TransactionRecord{
		TransactionID:   uuid.NewString(),
		UserID:          payload.UserID,
		BatchItemID:     payload.BatchItemID,
		TransactionDate: tx.TransactionDate,
		PostedDate:      tx.PostedDate,
		Description:     tx.Description,
		Amount:          tx.Amount,
		Balance:         tx.Balance,
		MerchantName:    tx.MerchantName,
		ReferenceNumber: tx.ReferenceNumber,
		Currency:        currency,
		CreatedAt:       time.Now(),
	}
}
