package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/schema"
)

// InvoiceProcessor extracts scanned or photographed invoices. Invoices
// differ from receipts in vocabulary (vendor, due date, reference) but
// share the same required-field contract: date and total.
type InvoiceProcessor struct {
	base
}

// NewInvoiceProcessor builds the invoice processor.
func NewInvoiceProcessor(fetcher Fetcher, extractor *extract.Engine, categorizer Categorizer, jurisdiction Jurisdiction, log zerolog.Logger) *InvoiceProcessor {
	return &InvoiceProcessor{base: base{
		docType: "invoice",
		required: []Field{
			{Name: "date", Description: "invoice issue date", Kind: schema.String},
			{Name: "totalAmount", Description: "total amount due", Kind: schema.Number},
		},
		preferred: []Field{
			{Name: "vendorName", Description: "issuing vendor or supplier name", Kind: schema.String},
			{Name: "subtotal", Description: "pre-tax subtotal", Kind: schema.Number},
			{Name: "currency", Description: "ISO 4217 currency code", Kind: schema.String},
			{Name: "dueDate", Description: "payment due date", Kind: schema.String},
		},
		optional: append([]Field{
			{Name: "paymentMethod", Description: "payment method or terms if stated", Kind: schema.String},
			{Name: "extractionConfidence", Description: "your confidence in this extraction, 0 to 1", Kind: schema.Number},
		}, taxFields(jurisdiction)...),
		jurisdiction: jurisdiction,
		fetcher:      fetcher,
		extractor:    extractor,
		categorizer:  categorizer,
		log:          log,
	}}
}

// ProcessDocument implements DocumentProcessor.
func (p *InvoiceProcessor) ProcessDocument(ctx context.Context, userID, fileURL, fileName string) (*ExtractedDocument, error) {
	return p.process(ctx, userID, fileURL, fileName)
}
