package processor

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/llm"
)

// docFetcher serves the same bytes for every URL.
type docFetcher struct{ data []byte }

func (f *docFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return f.data, nil
}

// docRouter replays one canned model answer.
type docRouter struct{ text string }

func (r *docRouter) GenerateStructured(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Text: r.text, Provider: "gemini", TokensUsed: 256}, nil
}

func (r *docRouter) GenerateText(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Text: r.text, Provider: "gemini"}, nil
}

func receiptProcessorWith(text string) *ReceiptProcessor {
	return NewReceiptProcessor(
		&docFetcher{data: []byte("image-bytes")},
		extract.NewEngine(&docRouter{text: text}),
		nil,
		JurisdictionCanada,
		zerolog.Nop(),
	)
}

// A null required field must come back as a ValidationError naming the
// field, not as a wire-schema rejection: required-ness is enforced after
// extraction, and the wire schema accepts null everywhere.
func TestProcessDocumentNullRequiredDate(t *testing.T) {
	p := receiptProcessorWith(`{"date": null, "totalAmount": 42.10, "merchantName": "Acme"}`)

	_, err := p.ProcessDocument(context.Background(), "u1", "gs://b/r.jpg", "r.jpg")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if !reflect.DeepEqual(vErr.MissingFields, []string{"date"}) {
		t.Errorf("MissingFields = %v, want [date]", vErr.MissingFields)
	}
	if vErr.DocumentType != "receipt" {
		t.Errorf("DocumentType = %q, want receipt", vErr.DocumentType)
	}
}

func TestProcessDocumentOmittedRequiredTotal(t *testing.T) {
	p := receiptProcessorWith(`{"date": "2025-03-14", "merchantName": "Acme"}`)

	_, err := p.ProcessDocument(context.Background(), "u1", "gs://b/r.jpg", "r.jpg")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if !reflect.DeepEqual(vErr.MissingFields, []string{"totalAmount"}) {
		t.Errorf("MissingFields = %v, want [totalAmount]", vErr.MissingFields)
	}
}

func TestProcessDocumentCompleteReceipt(t *testing.T) {
	p := receiptProcessorWith(`{
		"date": "2025-03-14",
		"totalAmount": 42.10,
		"merchantName": "Acme",
		"subtotal": 38.00,
		"currency": "cad",
		"tip": null,
		"paymentMethod": "credit",
		"extractionConfidence": 0.9,
		"gst": 1.90,
		"hst": null,
		"pst": 2.20,
		"qst": null
	}`)

	doc, err := p.ProcessDocument(context.Background(), "u1", "gs://b/r.jpg", "r.jpg")
	if err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if doc.MerchantName != "Acme" || doc.TotalAmount != 42.10 {
		t.Errorf("doc = %+v", doc)
	}
	if doc.DocumentDate == nil || doc.DocumentDate.Format("2006-01-02") != "2025-03-14" {
		t.Errorf("DocumentDate = %v, want 2025-03-14", doc.DocumentDate)
	}
	if doc.Currency != "CAD" {
		t.Errorf("Currency = %q, want CAD", doc.Currency)
	}
	if doc.Taxes["gst"] != 1.90 || doc.Taxes["pst"] != 2.20 {
		t.Errorf("Taxes = %v", doc.Taxes)
	}
	if doc.Provider != "gemini" || doc.TokensUsed != 256 {
		t.Errorf("usage = %s/%d, want gemini/256", doc.Provider, doc.TokensUsed)
	}
}
