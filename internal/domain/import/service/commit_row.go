package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
)

// CommitRow is a preview row sent back by the client for commit. Fields are
// loosely typed; a malformed row fails on its own.
type CommitRow struct {
	OccurredAt string          `json:"occurred_at"`
	Amount     json.RawMessage `json:"amount"`
	Type       string          `json:"type"`
	Merchant   string          `json:"merchant"`
	Notes      string          `json:"notes"`
}

// NewCommitRow renders a candidate record the way a preview returns it.
func NewCommitRow(record parser.CandidateRecord) CommitRow {
	amount, _ := json.Marshal(record.Amount.String())
	return CommitRow{
		OccurredAt: record.OccurredAt.Format(time.RFC3339),
		Amount:     amount,
		Type:       string(record.Type),
		Merchant:   record.Merchant,
		Notes:      record.Notes,
	}
}

// Record converts the row into a validated candidate record.
func (r CommitRow) Record() (parser.CandidateRecord, error) {
	occurredAt, err := parseCommitDate(r.OccurredAt)
	if err != nil {
		return parser.CandidateRecord{}, err
	}

	amount, err := parseCommitAmount(r.Amount)
	if err != nil {
		return parser.CandidateRecord{}, err
	}

	merchant := normalizer.CleanMerchant(r.Merchant)
	if merchant == "" {
		merchant = parser.DefaultDescription
	}
	notes := strings.TrimSpace(r.Notes)
	if notes == "" {
		notes = parser.NotesImportedFromPDF
	}

	record := parser.CandidateRecord{
		OccurredAt: occurredAt,
		Amount:     amount,
		Type:       parser.TransactionType(strings.ToLower(strings.TrimSpace(r.Type))),
		Merchant:   merchant,
		Notes:      notes,
	}
	if err := record.Validate(); err != nil {
		return parser.CandidateRecord{}, err
	}
	return record, nil
}

func parseCommitDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, parser.ErrMissingDate
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, ok := normalizer.ParseDate(s); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid occurred_at %q", s)
}

// parseCommitAmount accepts the amount as a JSON string or number.
func parseCommitAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, errors.New("amount is required")
	}

	text := string(raw)
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		text = quoted
	}

	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		if parsed, ok := normalizer.ParseAmount(text); ok {
			return parsed, nil
		}
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", text)
	}
	return d, nil
}
