package processor

import (
	"strings"
	"time"
)

// validateExtractedData enforces the required-field contract on raw model
// output and builds the typed document. Every missing required field is
// reported by name; a partially valid document is still rejected.
func (b *base) validateExtractedData(raw map[string]any) (*ExtractedDocument, error) {
	var missing []string
	for _, f := range b.required {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			missing = append(missing, f.Name)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{DocumentType: b.docType, MissingFields: missing}
	}

	doc := &ExtractedDocument{
		DocumentType: b.docType,
		Taxes:        map[string]float64{},
		RawOutput:    raw,
	}

	doc.MerchantName = stringField(raw, "merchantName")
	if doc.MerchantName == "" {
		doc.MerchantName = stringField(raw, "vendorName")
	}
	doc.DocumentDate = dateField(raw, "date")
	doc.DueDate = dateField(raw, "dueDate")
	doc.Subtotal = numberField(raw, "subtotal")
	doc.Tip = numberField(raw, "tip")
	if total := numberField(raw, "totalAmount"); total != nil {
		doc.TotalAmount = *total
	}
	doc.PaymentMethod = stringField(raw, "paymentMethod")
	doc.Currency = strings.ToUpper(stringField(raw, "currency"))
	if conf := numberField(raw, "extractionConfidence"); conf != nil {
		doc.Confidence = clampConfidence(*conf)
	} else {
		doc.Confidence = 0.5
	}

	for _, taxField := range []string{"gst", "hst", "pst", "qst", "salesTax"} {
		if v := numberField(raw, taxField); v != nil {
			doc.Taxes[taxField] = *v
		}
	}

	return doc, nil
}

func stringField(raw map[string]any, name string) string {
	if v, ok := raw[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func numberField(raw map[string]any, name string) *float64 {
	if v, ok := raw[name].(float64); ok {
		f := v
		return &f
	}
	return nil
}

func dateField(raw map[string]any, name string) *time.Time {
	s := stringField(raw, name)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
