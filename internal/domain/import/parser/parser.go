// Package parser turns statement PDFs and receipt text into candidate
// transaction records.
package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RawTable is a grid of cell text as found in a document. Row 0 is the header.
type RawTable [][]string

// Header returns the first row, or nil for an empty table.
func (t RawTable) Header() []string {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// DataRows returns every row after the header.
func (t RawTable) DataRows() [][]string {
	if len(t) < 2 {
		return nil
	}
	return t[1:]
}

// TransactionType is the direction of money movement.
type TransactionType string

const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// Provenance notes attached to candidate records.
const (
	NotesImportedFromPDF     = "Imported from PDF"
	NotesImportedFromReceipt = "Imported from receipt"
	DefaultDescription       = "Imported"
)

// Polarity decides which sign of a raw statement amount means income.
type Polarity string

const (
	// NegativeIsIncome treats negative amounts as money received.
	NegativeIsIncome Polarity = "negative_is_income"
	// NegativeIsExpense treats negative amounts as money spent.
	NegativeIsExpense Polarity = "negative_is_expense"
)

// ParsePolarity validates a configured polarity value.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case NegativeIsIncome, NegativeIsExpense:
		return Polarity(s), nil
	case "":
		return NegativeIsIncome, nil
	default:
		return "", fmt.Errorf("unknown polarity %q", s)
	}
}

// Classify derives the transaction type from a signed raw amount.
func (p Polarity) Classify(raw decimal.Decimal) TransactionType {
	negative := raw.IsNegative()
	if p == NegativeIsExpense {
		if negative {
			return TypeExpense
		}
		return TypeIncome
	}
	if negative {
		return TypeIncome
	}
	return TypeExpense
}

// CandidateRecord is a normalized transaction that has not been persisted.
type CandidateRecord struct {
	OccurredAt time.Time       `json:"occurred_at"`
	Amount     decimal.Decimal `json:"amount"`
	Type       TransactionType `json:"type"`
	Merchant   string          `json:"merchant"`
	Notes      string          `json:"notes"`
}

var (
	ErrMissingDate    = errors.New("occurred_at is required")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrInvalidType    = errors.New("type must be expense or income")
)

// Validate checks the invariants a record must hold before persistence.
func (r CandidateRecord) Validate() error {
	if r.OccurredAt.IsZero() {
		return ErrMissingDate
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}
