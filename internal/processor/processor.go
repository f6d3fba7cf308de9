// Package processor implements the per-document-type extraction
// processors. Each processor declares a field taxonomy, builds the
// matching prompt and abstract schema, runs the extraction engine with
// the image attached, and validates the result against its required
// fields before handing it to categorization.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/categorize"
	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/llm"
	"github.com/ledgerline/ledgerline/internal/schema"
)

// Jurisdiction changes which optional tax fields are requested. It never
// changes the required-field contract.
type Jurisdiction string

const (
	JurisdictionNone   Jurisdiction = ""
	JurisdictionCanada Jurisdiction = "CA"
	JurisdictionUS     Jurisdiction = "US"
)

// Field is one entry of a processor's field taxonomy.
type Field struct {
	Name        string
	Description string
	Kind        schema.Kind
	Enum        []string
}

// ExtractedDocument is the validated output of one document extraction.
type ExtractedDocument struct {
	DocumentType  string
	MerchantName  string
	DocumentDate  *time.Time
	DueDate       *time.Time
	Subtotal      *float64
	Taxes         map[string]float64
	Tip           *float64
	TotalAmount   float64
	PaymentMethod string
	Currency      string
	Confidence    float64

	CategoryID        string
	CategoryName      string
	IsNewCategory     bool
	IsBusinessExpense bool
	BusinessID        string

	// RawOutput retains the model's JSON for diagnostics, truncated by
	// the caller before persistence.
	RawOutput  map[string]any
	Provider   string
	TokensUsed int
}

// ValidationError reports which required business fields were missing
// after an otherwise successful model call. The document is rejected as a
// whole; nothing is silently defaulted.
type ValidationError struct {
	DocumentType  string
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("processor: %s rejected, missing required fields: %s",
		e.DocumentType, strings.Join(e.MissingFields, ", "))
}

// Fetcher retrieves file bytes for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Categorizer resolves a category for the extracted merchant.
type Categorizer interface {
	Categorize(ctx context.Context, req categorize.Request) (categorize.Result, error)
}

// DocumentProcessor is one document-type-specific extraction pipeline.
type DocumentProcessor interface {
	DocumentType() string
	RequiredFields() []string
	OptionalFields() []string
	ProcessDocument(ctx context.Context, userID, fileURL, fileName string) (*ExtractedDocument, error)
}

// Registry maps import types onto processors.
type Registry struct {
	processors map[string]DocumentProcessor
}

// NewRegistry builds a registry from the given processors, keyed by
// import type ("receipts", "invoices").
func NewRegistry(entries map[string]DocumentProcessor) *Registry {
	return &Registry{processors: entries}
}

// Lookup returns the processor for an import type.
func (r *Registry) Lookup(importType string) (DocumentProcessor, bool) {
	p, ok := r.processors[importType]
	return p, ok
}

// mimeForFile guesses the payload MIME type from the file extension.
func mimeForFile(fileName string) string {
	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(name, ".webp"):
		return "image/webp"
	case strings.HasSuffix(name, ".heic"):
		return "image/heic"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// base carries the shared mechanics of the concrete processors.
type base struct {
	docType      string
	required     []Field
	preferred    []Field
	optional     []Field
	jurisdiction Jurisdiction

	fetcher     Fetcher
	extractor   *extract.Engine
	categorizer Categorizer
	log         zerolog.Logger
}

func (b *base) DocumentType() string { return b.docType }

func (b *base) RequiredFields() []string {
	return fieldNames(b.required)
}

func (b *base) OptionalFields() []string {
	return append(fieldNames(b.preferred), fieldNames(b.optional)...)
}

func fieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// process is the shared fetch -> prompt -> extract -> validate ->
// categorize sequence.
func (b *base) process(ctx context.Context, userID, fileURL, fileName string) (*ExtractedDocument, error) {
	data, err := b.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("processor: fetch %s: %w", fileName, err)
	}

	raw, usage, err := b.extractor.Extract(ctx, extract.Request{
		Prompt: b.buildPrompt(fileName),
		Schema: b.buildSchema(),
		Image: &llm.Image{
			Data:     data,
			MIMEType: mimeForFile(fileName),
		},
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, err
	}

	doc, err := b.validateExtractedData(raw)
	if err != nil {
		return nil, err
	}
	doc.Provider = usage.Provider
	doc.TokensUsed = usage.TokensUsed

	// Categorization failure is non-fatal: the extraction stands and the
	// category stays empty.
	if doc.MerchantName != "" && b.categorizer != nil {
		res, catErr := b.categorizer.Categorize(ctx, categorize.Request{
			MerchantName: doc.MerchantName,
			Amount:       -doc.TotalAmount,
			UserID:       userID,
		})
		if catErr != nil {
			b.log.Warn().Err(catErr).Str("file", fileName).Msg("categorization failed, leaving category empty")
		} else {
			doc.CategoryID = res.CategoryID
			doc.CategoryName = res.CategoryName
			doc.IsNewCategory = res.IsNewCategory
			doc.IsBusinessExpense = res.IsBusinessExpense
			doc.BusinessID = res.BusinessID
		}
	}

	return doc, nil
}

func (b *base) buildPrompt(fileName string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a %s data extraction assistant. Extract the fields below from the attached document (%s).\n\n", b.docType, fileName))

	sb.WriteString("These fields are MANDATORY; the extraction is rejected without them:\n")
	for _, f := range b.required {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Description))
	}

	if len(b.preferred) > 0 {
		sb.WriteString("\nThese fields are strongly recommended; extract them whenever legible:\n")
		for _, f := range b.preferred {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Description))
		}
	}

	if len(b.optional) > 0 {
		sb.WriteString("\nThese fields are best-effort; return null when absent or unreadable:\n")
		for _, f := range b.optional {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Description))
		}
	}

	sb.WriteString("\nDates must use ISO format YYYY-MM-DD. Amounts are plain numbers without currency symbols.\n")
	sb.WriteString("Never invent values: a field you cannot read is null.\n")
	return sb.String()
}

func (b *base) buildSchema() *schema.Schema {
	var props []schema.Property
	for _, fields := range [][]Field{b.required, b.preferred, b.optional} {
		for _, f := range fields {
			props = append(props, schema.Prop(f.Name, fieldSchema(f)))
		}
	}
	return schema.NewObject(props...)
}

// fieldSchema builds the wire schema for one taxonomy field. Every field
// is nullable on the wire, required ones included: required-ness is a
// business rule owned by the prompt and validateExtractedData, so a null
// required field is rejected with its name listed instead of surfacing
// as an anonymous wire-schema violation.
func fieldSchema(f Field) *schema.Schema {
	return &schema.Schema{Kind: f.Kind, Description: f.Description, Enum: f.Enum, Nullable: true}
}
