package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/schema"
)

// ErrNoMapping is returned when no usable column mapping can be derived.
// An empty-but-"successful" model answer is treated as detection failure,
// not as a mapping.
var ErrNoMapping = errors.New("mapping: no usable column mapping detected")

const (
	// PreviewRowLimit bounds how many rows are shown to the model.
	PreviewRowLimit = 20

	// Hand-tuned sign-convention thresholds, preserved literally from
	// long-running production behavior. Tunable, not derived.
	positiveReverseThreshold = 0.80
	positiveKeepThreshold    = 0.20

	defaultConfidence = 0.5
)

// Engine infers a MappingConfig from spreadsheet preview rows.
type Engine struct {
	extractor *extract.Engine
}

// NewEngine builds a mapping engine over the extraction engine.
func NewEngine(extractor *extract.Engine) *Engine {
	return &Engine{extractor: extractor}
}

// DetectMapping infers the header row, per-field column mapping, sign
// convention and conversion instructions for a spreadsheet. previewRows
// is a bounded sample; allRows is the full dataset and is only consulted
// for the sign-convention statistic.
func (e *Engine) DetectMapping(ctx context.Context, previewRows, allRows [][]string, mctx Context) (*MappingConfig, error) {
	if len(previewRows) == 0 {
		return nil, ErrNoMapping
	}
	if len(previewRows) > PreviewRowLimit {
		previewRows = previewRows[:PreviewRowLimit]
	}

	raw, _, err := e.extractor.Extract(ctx, extract.Request{
		Prompt:      buildDetectionPrompt(previewRows, mctx),
		Schema:      detectionSchema(),
		Temperature: 0.1,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("mapping: detect: %w", err)
	}

	cfg, dateFormat := decodeDetection(raw)

	// Separate debit/credit columns win over a combined amount column
	// whenever both patterns are detectable.
	_, hasDebit := cfg.FieldMappings[FieldDebit]
	_, hasCredit := cfg.FieldMappings[FieldCredit]
	if hasDebit && hasCredit {
		delete(cfg.FieldMappings, FieldAmount)
	}

	if len(cfg.FieldMappings) == 0 {
		return nil, ErrNoMapping
	}

	reverse := false
	if amountRef, ok := cfg.FieldMappings[FieldAmount]; ok {
		reverse = resolveSignConvention(mctx.StatementType, allRows, cfg.HeaderRowIndex, amountRef.ColumnIndex)
	}

	cfg.Conversions = buildConversions(cfg.FieldMappings, dateFormat, reverse)
	return cfg, nil
}

// resolveSignConvention decides whether single-amount-column values must
// be sign-reversed. A declared statement type always wins; otherwise the
// positive-value percentage over the full dataset decides, defaulting to
// no reversal in the ambiguous middle band.
func resolveSignConvention(st StatementType, allRows [][]string, headerRow, amountCol int) bool {
	switch st {
	case StatementCreditCard:
		// Purchases exported as positive numbers; expenses must flip.
		return true
	case StatementBank:
		// Already expense-negative.
		return false
	}

	positive, total := 0, 0
	for i, row := range allRows {
		if i <= headerRow || amountCol >= len(row) {
			continue
		}
		v, ok := parseAmountValue(row[amountCol])
		if !ok || v == 0 {
			continue
		}
		total++
		if v > 0 {
			positive++
		}
	}
	if total == 0 {
		return false
	}
	ratio := float64(positive) / float64(total)
	switch {
	case ratio > positiveReverseThreshold:
		return true
	case ratio < positiveKeepThreshold:
		return false
	default:
		// Ambiguous middle band: leave signs as exported.
		return false
	}
}

func buildConversions(mappings map[string]ColumnRef, dateFormat string, reverseSign bool) []Conversion {
	var out []Conversion
	for _, field := range []string{FieldTransactionDate, FieldPostedDate} {
		if _, ok := mappings[field]; ok {
			out = append(out, Conversion{Field: field, Kind: ConvertDate, DateFormat: dateFormat})
		}
	}
	if _, ok := mappings[FieldAmount]; ok {
		out = append(out, Conversion{
			Field:         FieldAmount,
			Kind:          ConvertAmount,
			RemoveSymbols: true,
			ReverseSign:   reverseSign,
		})
	}
	for _, field := range []string{FieldDebit, FieldCredit, FieldBalance} {
		if _, ok := mappings[field]; ok {
			out = append(out, Conversion{Field: field, Kind: ConvertAmount, RemoveSymbols: true})
		}
	}
	for _, field := range []string{FieldDescription, FieldMerchantName} {
		if _, ok := mappings[field]; ok {
			out = append(out, Conversion{Field: field, Kind: ConvertDescription, Trim: true})
		}
	}
	return out
}

func detectionSchema() *schema.Schema {
	columnRef := func() *schema.Schema {
		return schema.NewObject(
			schema.Prop("columnIndex", schema.Int("zero-based column index")),
			schema.Prop("columnName", schema.Str("header text of the column, empty string if the sheet has no header")),
		)
	}

	var fieldProps []schema.Property
	for _, field := range KnownFields {
		fieldProps = append(fieldProps, schema.Prop(field, columnRef().AsNullable()))
	}

	return schema.NewObject(
		schema.Prop("headerRowIndex", schema.Int("zero-based index of the header row; 0 if the first row is data")),
		schema.Prop("fieldMappings", schema.NewObject(fieldProps...)),
		schema.Prop("dateFormat", schema.Str("Go reference-time layout of the date values, e.g. 01/02/2006").AsNullable()),
		schema.Prop("currency", schema.Str("ISO 4217 currency code if determinable").AsNullable()),
		schema.Prop("confidence", schema.Num("confidence in this mapping, 0 to 1").AsNullable()),
	)
}

func buildDetectionPrompt(previewRows [][]string, mctx Context) string {
	var b strings.Builder
	b.WriteString("You are a financial spreadsheet layout analyst.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Determine which row is the header row and which columns hold which transaction fields.\n")
	b.WriteString("- Map columns onto these logical fields only: ")
	b.WriteString(strings.Join(KnownFields, ", "))
	b.WriteString(".\n")
	b.WriteString("- If the sheet has separate debit and credit columns, map BOTH and do not map amount.\n")
	b.WriteString("- Leave a field null when no column holds it. Never guess a column that is not present.\n")
	b.WriteString("- Report the date format as a Go reference-time layout (e.g. 2006-01-02, 01/02/2006).\n\n")

	if mctx.StatementType != StatementUnknown {
		b.WriteString(fmt.Sprintf("The user declared this spreadsheet as a %s statement.\n\n", mctx.StatementType))
	}
	if len(mctx.CategoryNames) > 0 {
		b.WriteString("User category vocabulary (context only, do not map): ")
		b.WriteString(strings.Join(mctx.CategoryNames, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString(fmt.Sprintf("Preview (%d rows, cells separated by tabs):\n", len(previewRows)))
	for i, row := range previewRows {
		b.WriteString(fmt.Sprintf("row %d:\t%s\n", i, strings.Join(row, "\t")))
	}
	return b.String()
}

// decodeDetection pulls a MappingConfig out of validated model output.
// The structure was already schema-checked; this is defensive coercion
// only, tolerant of absent optional keys.
func decodeDetection(raw map[string]any) (*MappingConfig, string) {
	cfg := &MappingConfig{
		FieldMappings: map[string]ColumnRef{},
		Confidence:    defaultConfidence,
	}

	if v, ok := raw["headerRowIndex"].(float64); ok && v >= 0 {
		cfg.HeaderRowIndex = int(v)
	}
	if v, ok := raw["currency"].(string); ok {
		cfg.Currency = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := raw["confidence"].(float64); ok {
		cfg.Confidence = clamp01(v)
	}

	dateFormat := ""
	if v, ok := raw["dateFormat"].(string); ok {
		dateFormat = strings.TrimSpace(v)
	}

	mappings, _ := raw["fieldMappings"].(map[string]any)
	for _, field := range KnownFields {
		entry, ok := mappings[field].(map[string]any)
		if !ok {
			continue
		}
		idx, ok := entry["columnIndex"].(float64)
		if !ok || idx < 0 {
			continue
		}
		name, _ := entry["columnName"].(string)
		cfg.FieldMappings[field] = ColumnRef{ColumnIndex: int(idx), ColumnName: name}
	}

	return cfg, dateFormat
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
