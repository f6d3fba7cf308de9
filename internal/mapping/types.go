// Package mapping infers how an arbitrary spreadsheet layout maps onto
// normalized transaction fields, and applies that mapping to data rows.
package mapping

import "time"

// Logical field names are the fixed contract between the mapping engine
// and the spreadsheet parser. They appear verbatim in MappingConfig JSON.
const (
	FieldTransactionDate = "transactionDate"
	FieldPostedDate      = "postedDate"
	FieldDescription     = "description"
	FieldAmount          = "amount"
	FieldDebit           = "debit"
	FieldCredit          = "credit"
	FieldBalance         = "balance"
	FieldMerchantName    = "merchantName"
	FieldReferenceNumber = "referenceNumber"
)

// KnownFields lists every logical field in contract order.
var KnownFields = []string{
	FieldTransactionDate,
	FieldPostedDate,
	FieldDescription,
	FieldAmount,
	FieldDebit,
	FieldCredit,
	FieldBalance,
	FieldMerchantName,
	FieldReferenceNumber,
}

// StatementType is the user-declared source kind, when known.
type StatementType string

const (
	StatementUnknown    StatementType = ""
	StatementBank       StatementType = "bank_account"
	StatementCreditCard StatementType = "credit_card"
)

// ColumnRef ties a logical field to a physical column.
type ColumnRef struct {
	ColumnIndex int    `json:"columnIndex"`
	ColumnName  string `json:"columnName"`
}

// ConversionKind tags a conversion instruction.
type ConversionKind string

const (
	ConvertDate        ConversionKind = "date"
	ConvertAmount      ConversionKind = "amount"
	ConvertDescription ConversionKind = "description"
)

// Conversion is one value-conversion instruction, applied in list order.
type Conversion struct {
	Field string         `json:"field"`
	Kind  ConversionKind `json:"kind"`

	// Date params.
	DateFormat string `json:"dateFormat,omitempty"`

	// Amount params. ReverseSign is always applied last.
	ReverseSign   bool `json:"reverseSign,omitempty"`
	RemoveSymbols bool `json:"removeSymbols,omitempty"`

	// Description params.
	Trim bool `json:"trim,omitempty"`
}

// MappingConfig is produced once per spreadsheet import and consumed to
// parse every data row.
type MappingConfig struct {
	HeaderRowIndex int                  `json:"headerRowIndex"`
	FieldMappings  map[string]ColumnRef `json:"fieldMappings"`
	Conversions    []Conversion         `json:"conversions"`
	Currency       string               `json:"currency"`
	Confidence     float64              `json:"confidence"`
}

// Context carries optional caller knowledge into detection.
type Context struct {
	StatementType StatementType
	// CategoryNames is the user's category vocabulary, available to the
	// model as naming context. May be empty.
	CategoryNames []string
}

// NormalizedTransaction is the ephemeral output of applying a mapping to
// one data row. Amount is signed with the expense convention negative.
type NormalizedTransaction struct {
	TransactionDate time.Time
	PostedDate      *time.Time
	Description     string
	Amount          float64
	Debit           *float64
	Credit          *float64
	Balance         *float64
	MerchantName    string
	ReferenceNumber string
	Raw             []string
}
