package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"rsc.io/pdf"
)

// Table detection strategy names.
const (
	StrategyLattice = "lattice"
	StrategyStream  = "stream"
)

type tableStrategy struct {
	name   string
	detect func(pageLayout) []RawTable
}

// tableStrategies run in order; the first one that finds any table anywhere
// in the document wins.
var tableStrategies = []tableStrategy{
	{name: StrategyLattice, detect: latticeTables},
	{name: StrategyStream, detect: streamTables},
}

// Extraction is the outcome of table detection over a whole document.
type Extraction struct {
	Tables   []RawTable
	Strategy string // empty when no table was found
}

// PDFParser extracts tables and embedded text from PDF documents.
type PDFParser struct {
	logger  *slog.Logger
	workers int
}

// NewPDFParser creates a new PDF parser.
func NewPDFParser(logger *slog.Logger) *PDFParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFParser{logger: logger}
}

// WithWorkers bounds how many pages are searched for tables at once.
// Zero or less uses GOMAXPROCS.
func (p *PDFParser) WithWorkers(n int) *PDFParser {
	p.workers = n
	return p
}

// ExtractTables reads the whole document and returns its tables in page
// order. Only a failure to read r is returned as an error; a malformed
// document yields no tables.
func (p *PDFParser) ExtractTables(r io.Reader) ([]RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return p.Extract(data).Tables, nil
}

// Extract runs the table strategies over data.
func (p *PDFParser) Extract(data []byte) Extraction {
	pages := p.loadPages(data)
	if len(pages) == 0 {
		return Extraction{}
	}

	for _, strategy := range tableStrategies {
		tables := p.detectPages(strategy, pages)
		if len(tables) > 0 {
			p.logger.Debug("tables extracted",
				slog.String("strategy", strategy.name),
				slog.Int("tables", len(tables)),
				slog.Int("pages", len(pages)),
			)
			return Extraction{Tables: tables, Strategy: strategy.name}
		}
	}
	return Extraction{}
}

// ExtractText returns the embedded text layer, one line per baseline and a
// blank line between pages. Scanned documents produce an empty string.
func (p *PDFParser) ExtractText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}

	var b strings.Builder
	for _, page := range p.loadPages(data) {
		for _, line := range groupLines(page.glyphs) {
			if s := joinGlyphs(line.glyphs); s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}

func (p *PDFParser) detect(strategy tableStrategy, page pageLayout) (tables []RawTable) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("table detection failed",
				slog.String("strategy", strategy.name),
				slog.Int("page", page.number),
				slog.Any("panic", r),
			)
			tables = nil
		}
	}()
	return strategy.detect(page)
}

// loadPages decodes every readable page. rsc.io/pdf reports malformed input
// by panicking, so each step is guarded and a broken page is skipped.
func (p *PDFParser) loadPages(data []byte) (pages []pageLayout) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("unreadable pdf", slog.Any("panic", r))
			pages = nil
		}
	}()

	if len(data) == 0 {
		return nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		p.logger.Debug("failed to open pdf", slog.Any("error", err))
		return nil
	}

	n := reader.NumPage()
	for i := 1; i <= n; i++ {
		if page, ok := p.loadPage(reader, i); ok {
			pages = append(pages, page)
		}
	}
	return pages
}

func (p *PDFParser) loadPage(reader *pdf.Reader, number int) (layout pageLayout, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("skipping unreadable page",
				slog.Int("page", number),
				slog.Any("panic", r),
			)
			ok = false
		}
	}()

	page := reader.Page(number)
	if page.V.IsNull() {
		return pageLayout{}, false
	}
	return newPageLayout(number, page), true
}
