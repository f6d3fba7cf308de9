package mapping

import (
	"strconv"
	"strings"
	"time"
)

// fallbackDateLayouts are tried in order when the mapping carries no
// explicit date format.
var fallbackDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"01-02-2006",
	"02-01-2006",
	"2006-01-02T15:04:05Z07:00",
}

// ApplyMapping parses every data row through the mapping. Rows that fail
// to yield both a transaction date and a usable amount are dropped from
// the result; that is a hard acceptance gate, not a warning.
func ApplyMapping(rawRows [][]string, cfg *MappingConfig) []NormalizedTransaction {
	var out []NormalizedTransaction
	for i, row := range rawRows {
		if i <= cfg.HeaderRowIndex {
			continue
		}
		tx, ok := applyRow(row, cfg)
		if !ok {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func applyRow(row []string, cfg *MappingConfig) (NormalizedTransaction, bool) {
	tx := NormalizedTransaction{Raw: row}

	values := map[string]string{}
	for field, ref := range cfg.FieldMappings {
		if ref.ColumnIndex >= 0 && ref.ColumnIndex < len(row) {
			values[field] = row[ref.ColumnIndex]
		}
	}

	haveDate := false
	haveAmount := false

	for _, conv := range cfg.Conversions {
		raw, ok := values[conv.Field]
		if !ok {
			continue
		}
		switch conv.Kind {
		case ConvertDate:
			t, ok := parseDate(raw, conv.DateFormat)
			if !ok {
				continue
			}
			switch conv.Field {
			case FieldTransactionDate:
				tx.TransactionDate = t
				haveDate = true
			case FieldPostedDate:
				posted := t
				tx.PostedDate = &posted
			}
		case ConvertAmount:
			v, ok := parseAmountValue(raw)
			if !ok {
				continue
			}
			// reverseSign is always the last step of amount conversion.
			if conv.ReverseSign {
				v = -v
			}
			switch conv.Field {
			case FieldAmount:
				tx.Amount = v
				haveAmount = true
			case FieldDebit:
				d := v
				tx.Debit = &d
			case FieldCredit:
				c := v
				tx.Credit = &c
			case FieldBalance:
				b := v
				tx.Balance = &b
			}
		case ConvertDescription:
			s := raw
			if conv.Trim {
				s = strings.TrimSpace(s)
			}
			switch conv.Field {
			case FieldDescription:
				tx.Description = s
			case FieldMerchantName:
				tx.MerchantName = s
			}
		}
	}

	// Reference numbers need no conversion instruction.
	if ref, ok := values[FieldReferenceNumber]; ok {
		tx.ReferenceNumber = strings.TrimSpace(ref)
	}

	// Separate debit/credit columns collapse into one signed amount
	// with the expense convention negative.
	if !haveAmount {
		switch {
		case tx.Debit != nil && *tx.Debit != 0:
			tx.Amount = -abs(*tx.Debit)
			haveAmount = true
		case tx.Credit != nil && *tx.Credit != 0:
			tx.Amount = abs(*tx.Credit)
			haveAmount = true
		}
	}

	if !haveDate || !haveAmount {
		return NormalizedTransaction{}, false
	}
	return tx, true
}

func parseDate(raw, format string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if format != "" {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmountValue parses a raw cell as a monetary amount: currency
// symbols and thousands separators are stripped, parenthesized values
// are negative.
func parseAmountValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == '$', r == '€', r == '£', r == '¥', r == ' ':
			// stripped
		default:
			// Any other character means this is not an amount cell.
			if !isCurrencyLetter(r) {
				return 0, false
			}
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// isCurrencyLetter tolerates alphabetic currency markers like "CAD" or
// "USD" that some exports prepend to amounts.
func isCurrencyLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
