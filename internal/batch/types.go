// Package batch sequences the per-item jobs of an import batch: state
// transitions, duplicate detection, processor dispatch, persistence and
// activity logging. Batch-level status is always derived from item
// states, never stored independently.
package batch

import "github.com/ledgerline/ledgerline/internal/store"

// Import types accepted in job payloads.
const (
	ImportReceipts       = "receipts"
	ImportInvoices       = "invoices"
	ImportBankStatements = "bank_statements"
	ImportMixed          = "mixed"
)

// Activity types appended to the activity log.
const (
	ActivityItemStarted       = "item_started"
	ActivityItemCompleted     = "item_completed"
	ActivityItemFailed        = "item_failed"
	ActivityDuplicateDetected = "duplicate_detected"
)

// Error codes reported on job results.
const (
	CodeFetchFailed          = "fetch_failed"
	CodeProviderFailed       = "provider_failed"
	CodeExtractionValidation = "extraction_validation"
	CodeMappingDetection     = "mapping_detection"
	CodeStoreFailed          = "store_failed"
	CodeBatchCancelled       = "batch_cancelled"
)

// JobPayload is the at-least-once delivery contract with the job-trigger
// substrate. Field names are fixed by the batch-submission flow.
type JobPayload struct {
	BatchID      string `json:"batchId"`
	BatchItemID  string `json:"batchItemId"`
	FileURL      string `json:"fileUrl"`
	FileName     string `json:"fileName"`
	FileFormat   string `json:"fileFormat"`
	UserID       string `json:"userId"`
	ImportType   string `json:"importType"`
	SourceFormat string `json:"sourceFormat,omitempty"`
	Order        int    `json:"order"`
}

// JobResult is the per-item outcome returned to the job substrate.
type JobResult struct {
	Success     bool   `json:"success"`
	BatchItemID string `json:"batchItemId"`
	DocumentID  string `json:"documentId,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
}

// Summary is the derived batch-level status. Partial success is a
// first-class outcome; there is no batch-level "failed" state.
type Summary struct {
	BatchID    string `json:"batchId"`
	Status     string `json:"status"` // "processing" or "completed"
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Duplicate  int    `json:"duplicate"`
}

func summarize(batchID string, items []store.BatchItem) Summary {
	s := Summary{BatchID: batchID, Status: "completed", Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case store.ItemCompleted:
			s.Successful++
		case store.ItemFailed:
			s.Failed++
		case store.ItemDuplicate:
			s.Duplicate++
		default:
			s.Status = "processing"
		}
	}
	return s
}
