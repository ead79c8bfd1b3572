package parser

import (
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/echo-ingest/internal/domain/import/sniffer"
)

// StatementResult holds the rows kept from a statement and how many were
// dropped for lacking a usable date or amount.
type StatementResult struct {
	Records []CandidateRecord
	Skipped int
}

// StatementPipeline maps raw statement tables to candidate records.
type StatementPipeline struct {
	polarity Polarity
}

// NewStatementPipeline creates a pipeline that classifies amounts with polarity.
func NewStatementPipeline(polarity Polarity) *StatementPipeline {
	if polarity == "" {
		polarity = NegativeIsIncome
	}
	return &StatementPipeline{polarity: polarity}
}

// Parse infers a column mapping per table and normalizes every data row,
// preserving table order and row order.
func (p *StatementPipeline) Parse(tables []RawTable) StatementResult {
	var result StatementResult
	for _, table := range tables {
		mapping := sniffer.InferColumns(table.Header())
		for _, row := range table.DataRows() {
			record, ok := p.normalizeRow(row, mapping)
			if !ok {
				result.Skipped++
				continue
			}
			result.Records = append(result.Records, record)
		}
	}
	return result
}

func (p *StatementPipeline) normalizeRow(row []string, mapping sniffer.ColumnMapping) (CandidateRecord, bool) {
	dateCell, _ := mapping.Resolve(row, sniffer.RoleDate)
	amountCell, _ := mapping.Resolve(row, sniffer.RoleAmount)
	description, ok := mapping.Resolve(row, sniffer.RoleDescription)
	if !ok {
		description = DefaultDescription
	}

	occurredAt, ok := normalizer.ParseDate(dateCell)
	if !ok {
		return CandidateRecord{}, false
	}
	raw, ok := normalizer.ParseAmount(amountCell)
	if !ok {
		return CandidateRecord{}, false
	}

	return CandidateRecord{
		OccurredAt: occurredAt,
		Amount:     raw.Abs(),
		Type:       p.polarity.Classify(raw),
		Merchant:   normalizer.CleanMerchant(description),
		Notes:      NotesImportedFromPDF,
	}, true
}
