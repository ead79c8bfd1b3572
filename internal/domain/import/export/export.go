// Package export writes candidate records as CSV or XLSX for review outside
// the API.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/echo-ingest/internal/domain/import/parser"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Transactions"

// Format is an export file format
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatXLSX:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Row is the flat shape of one exported record
type Row struct {
	Date     string `csv:"date"`
	Amount   string `csv:"amount"`
	Type     string `csv:"type"`
	Merchant string `csv:"merchant"`
	Notes    string `csv:"notes"`
}

var header = []any{"date", "amount", "type", "merchant", "notes"}

// Rows flattens records; amounts keep two decimal places.
func Rows(records []parser.CandidateRecord) []*Row {
	rows := make([]*Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, &Row{
			Date:     r.OccurredAt.Format(time.DateOnly),
			Amount:   r.Amount.StringFixed(2),
			Type:     string(r.Type),
			Merchant: r.Merchant,
			Notes:    r.Notes,
		})
	}
	return rows
}

// WriteCSV writes records with a header line
func WriteCSV(w io.Writer, records []parser.CandidateRecord) error {
	rows := Rows(records)
	if len(rows) == 0 {
		// gocsv writes nothing for an empty slice; keep the header.
		_, err := io.WriteString(w, "date,amount,type,merchant,notes\n")
		return err
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes records to a single-sheet workbook
func WriteXLSX(w io.Writer, records []parser.CandidateRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range Rows(records) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Date, r.Amount, r.Type, r.Merchant, r.Notes}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
