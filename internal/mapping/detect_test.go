package mapping

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ledgerline/ledgerline/internal/extract"
	"github.com/ledgerline/ledgerline/internal/llm"
)

// stubRouter feeds a canned detection answer through the extract engine.
type stubRouter struct {
	text string
	err  error
}

func (s *stubRouter) GenerateStructured(_ context.Context, _ llm.Request) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text, Provider: "gemini"}, nil
}

func (s *stubRouter) GenerateText(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Text: s.text, Provider: "gemini"}, nil
}

func engineWith(text string) *Engine {
	return NewEngine(extract.NewEngine(&stubRouter{text: text}))
}

const amountDetection = `{
	"headerRowIndex": 0,
	"fieldMappings": {
		"transactionDate": {"columnIndex": 0, "columnName": "Date"},
		"description": {"columnIndex": 1, "columnName": "Description"},
		"amount": {"columnIndex": 2, "columnName": "Amount"}
	},
	"dateFormat": "2006-01-02",
	"currency": "cad",
	"confidence": 0.9
}`

func previewRows() [][]string {
	return [][]string{
		{"Date", "Description", "Amount"},
		{"2025-01-02", "COFFEE SHOP", "4.50"},
	}
}

// rowsWithAmounts builds a dataset with one header row and the given
// amount values in column 2.
func rowsWithAmounts(amounts ...string) [][]string {
	rows := [][]string{{"Date", "Description", "Amount"}}
	for i, a := range amounts {
		rows = append(rows, []string{fmt.Sprintf("2025-01-%02d", i+1), "TX", a})
	}
	return rows
}

func amountConversion(t *testing.T, cfg *MappingConfig) Conversion {
	t.Helper()
	for _, c := range cfg.Conversions {
		if c.Field == FieldAmount {
			return c
		}
	}
	t.Fatal("no amount conversion in config")
	return Conversion{}
}

func TestDetectMappingDecodesConfig(t *testing.T) {
	e := engineWith(amountDetection)
	cfg, err := e.DetectMapping(context.Background(), previewRows(), rowsWithAmounts("-4.50"), Context{})
	if err != nil {
		t.Fatalf("DetectMapping() error = %v", err)
	}

	if cfg.HeaderRowIndex != 0 {
		t.Errorf("HeaderRowIndex = %d, want 0", cfg.HeaderRowIndex)
	}
	if got := cfg.FieldMappings[FieldAmount]; got.ColumnIndex != 2 || got.ColumnName != "Amount" {
		t.Errorf("amount mapping = %+v", got)
	}
	if cfg.Currency != "CAD" {
		t.Errorf("Currency = %q, want normalized CAD", cfg.Currency)
	}
	if cfg.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", cfg.Confidence)
	}
}

func TestDetectMappingSignConvention(t *testing.T) {
	tests := []struct {
		name        string
		st          StatementType
		amounts     []string
		wantReverse bool
	}{
		{
			name:        "declared credit card always reverses",
			st:          StatementCreditCard,
			amounts:     []string{"-1.00", "-2.00", "-3.00"},
			wantReverse: true,
		},
		{
			name:        "declared bank never reverses",
			st:          StatementBank,
			amounts:     []string{"1.00", "2.00", "3.00", "4.00", "5.00"},
			wantReverse: false,
		},
		{
			name:        "undeclared mostly positive reverses",
			st:          StatementUnknown,
			amounts:     []string{"1.00", "2.00", "3.00", "4.00", "-5.00", "6.00", "7.00", "8.00", "9.00", "10.00"},
			wantReverse: true,
		},
		{
			name:        "undeclared mostly negative keeps",
			st:          StatementUnknown,
			amounts:     []string{"-1.00", "-2.00", "-3.00", "-4.00", "5.00"},
			wantReverse: false,
		},
		{
			name:        "undeclared ambiguous middle keeps",
			st:          StatementUnknown,
			amounts:     []string{"1.00", "-2.00", "3.00", "-4.00"},
			wantReverse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := engineWith(amountDetection)
			cfg, err := e.DetectMapping(context.Background(), previewRows(), rowsWithAmounts(tt.amounts...), Context{StatementType: tt.st})
			if err != nil {
				t.Fatalf("DetectMapping() error = %v", err)
			}
			if got := amountConversion(t, cfg).ReverseSign; got != tt.wantReverse {
				t.Errorf("ReverseSign = %v, want %v", got, tt.wantReverse)
			}
		})
	}
}

func TestDetectMappingDebitCreditWinsOverAmount(t *testing.T) {
	e := engineWith(`{
		"headerRowIndex": 0,
		"fieldMappings": {
			"transactionDate": {"columnIndex": 0, "columnName": "Date"},
			"amount": {"columnIndex": 1, "columnName": "Amount"},
			"debit": {"columnIndex": 2, "columnName": "Debit"},
			"credit": {"columnIndex": 3, "columnName": "Credit"}
		}
	}`)

	cfg, err := e.DetectMapping(context.Background(), previewRows(), nil, Context{})
	if err != nil {
		t.Fatalf("DetectMapping() error = %v", err)
	}
	if _, ok := cfg.FieldMappings[FieldAmount]; ok {
		t.Error("amount mapping should be dropped when debit and credit are both mapped")
	}
	if _, ok := cfg.FieldMappings[FieldDebit]; !ok {
		t.Error("debit mapping missing")
	}
	if _, ok := cfg.FieldMappings[FieldCredit]; !ok {
		t.Error("credit mapping missing")
	}
}

func TestDetectMappingEmptyMappingIsFailure(t *testing.T) {
	e := engineWith(`{"headerRowIndex": 0, "fieldMappings": {}}`)
	_, err := e.DetectMapping(context.Background(), previewRows(), nil, Context{})
	if !errors.Is(err, ErrNoMapping) {
		t.Errorf("error = %v, want ErrNoMapping", err)
	}
}

func TestDetectMappingEmptyPreview(t *testing.T) {
	e := engineWith(amountDetection)
	_, err := e.DetectMapping(context.Background(), nil, nil, Context{})
	if !errors.Is(err, ErrNoMapping) {
		t.Errorf("error = %v, want ErrNoMapping", err)
	}
}

func TestDetectMappingDefaultConfidence(t *testing.T) {
	e := engineWith(`{
		"headerRowIndex": 0,
		"fieldMappings": {
			"transactionDate": {"columnIndex": 0, "columnName": "Date"},
			"amount": {"columnIndex": 2, "columnName": "Amount"}
		}
	}`)

	cfg, err := e.DetectMapping(context.Background(), previewRows(), nil, Context{})
	if err != nil {
		t.Fatalf("DetectMapping() error = %v", err)
	}
	if cfg.Confidence != defaultConfidence {
		t.Errorf("Confidence = %v, want default %v", cfg.Confidence, defaultConfidence)
	}
}

func TestDetectMappingDeterministicForSameInput(t *testing.T) {
	rows := rowsWithAmounts("-1.00", "2.00", "-3.00")

	first, err := engineWith(amountDetection).DetectMapping(context.Background(), previewRows(), rows, Context{})
	if err != nil {
		t.Fatalf("first DetectMapping() error = %v", err)
	}
	second, err := engineWith(amountDetection).DetectMapping(context.Background(), previewRows(), rows, Context{})
	if err != nil {
		t.Fatalf("second DetectMapping() error = %v", err)
	}

	if amountConversion(t, first).ReverseSign != amountConversion(t, second).ReverseSign {
		t.Error("sign convention differs across identical runs")
	}
	if first.HeaderRowIndex != second.HeaderRowIndex {
		t.Error("header row differs across identical runs")
	}
}
