package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/schema"
)

// ReceiptProcessor extracts photographed or scanned purchase receipts.
type ReceiptProcessor struct {
	base
}

// NewReceiptProcessor builds the receipt processor. The jurisdiction
// selects which tax fields are requested; the required fields are the
// same everywhere.
func NewReceiptProcessor(fetcher Fetcher, extractor *extract.Engine, categorizer Categorizer, jurisdiction Jurisdiction, log zerolog.Logger) *ReceiptProcessor {
	return &ReceiptProcessor{base: base{
		docType: "receipt",
		required: []Field{
			{Name: "date", Description: "purchase date", Kind: schema.String},
			{Name: "totalAmount", Description: "final total charged", Kind: schema.Number},
		},
		preferred: []Field{
			{Name: "merchantName", Description: "store or merchant name as printed", Kind: schema.String},
			{Name: "subtotal", Description: "pre-tax subtotal", Kind: schema.Number},
			{Name: "currency", Description: "ISO 4217 currency code", Kind: schema.String},
		},
		optional: append([]Field{
			{Name: "tip", Description: "tip or gratuity amount", Kind: schema.Number},
			{Name: "paymentMethod", Description: "how the purchase was paid", Kind: schema.String,
				Enum: []string{"cash", "credit", "debit", "other"}},
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
func (p *ReceiptProcessor) ProcessDocument(ctx context.Context, userID, fileURL, fileName string) (*ExtractedDocument, error) {
	return p.process(ctx, userID, fileURL, fileName)
}

// taxFields returns the jurisdiction-specific optional tax breakdown.
func taxFields(j Jurisdiction) []Field {
	switch j {
	case JurisdictionCanada:
		return []Field{
			{Name: "gst", Description: "GST amount if itemized", Kind: schema.Number},
			{Name: "hst", Description: "HST amount if itemized", Kind: schema.Number},
			{Name: "pst", Description: "PST amount if itemized", Kind: schema.Number},
			{Name: "qst", Description: "QST amount if itemized", Kind: schema.Number},
		}
	case JurisdictionUS:
		return []Field{
			{Name: "salesTax", Description: "sales tax amount if itemized", Kind: schema.Number},
		}
	default:
		return []Field{
			{Name: "salesTax", Description: "total tax amount if itemized", Kind: schema.Number},
		}
	}
}
