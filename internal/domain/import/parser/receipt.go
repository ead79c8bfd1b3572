package parser

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	merchantScanLines = 8
	merchantMaxLength = 40
)

// ReceiptFields are the values recovered from a receipt's text. A nil field
// was not found.
type ReceiptFields struct {
	Amount     *decimal.Decimal `json:"amount"`
	OccurredAt *time.Time       `json:"occurred_at"`
	Merchant   *string          `json:"merchant"`
}

// Complete reports whether the fields are enough to create a transaction.
func (f ReceiptFields) Complete() bool {
	return f.Amount != nil && f.OccurredAt != nil
}

const currencyGlyph = `(?:₹|rs\.?|\$|€|£)?`

type totalStrategy struct {
	label   string
	pattern *regexp.Regexp
}

func labeledTotal(label, expr string) totalStrategy {
	return totalStrategy{
		label:   label,
		pattern: regexp.MustCompile(expr + `\s*[:\-]?\s*` + currencyGlyph + `\s*([0-9]+(?:\.[0-9]{1,2})?)`),
	}
}

// totalStrategies are tried in order against lower-cased, comma-free text.
var totalStrategies = []totalStrategy{
	labeledTotal("total", `total`),
	labeledTotal("amount", `amount`),
	labeledTotal("grand total", `grand\s*total`),
}

var lastNumberPattern = regexp.MustCompile(currencyGlyph + `\s*([0-9]+(?:\.[0-9]{1,2})?)`)

var (
	merchantPattern      = regexp.MustCompile(`[A-Za-z]{3,}`)
	receiptDatePattern   = regexp.MustCompile(`\d{1,2}[-/ ]\d{1,2}[-/ ]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}[-/ ][A-Za-z]{3}[-/ ]\d{4}`)
	receiptDateSeparator = strings.NewReplacer(" ", "-", "/", "-")
)

// receiptDateLayouts are tried in order for every candidate token.
var receiptDateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2006-1-2",
	"2-Jan-2006",
	"2 Jan 2006",
	"1/2/2006",
}

// ParseReceipt extracts merchant, total and date from receipt text.
func ParseReceipt(text string) ReceiptFields {
	return ReceiptFields{
		Amount:     receiptAmount(text),
		OccurredAt: receiptDate(text),
		Merchant:   receiptMerchant(text),
	}
}

// receiptMerchant picks the first short line with a real word in it among
// the top lines of the receipt.
func receiptMerchant(text string) *string {
	scanned := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if scanned == merchantScanLines {
			break
		}
		scanned++
		if merchantPattern.MatchString(line) && utf8.RuneCountInString(line) <= merchantMaxLength {
			return &line
		}
	}
	return nil
}

// receiptAmount prefers a labelled total and falls back to the last number
// printed on the receipt.
func receiptAmount(text string) *decimal.Decimal {
	low := strings.ReplaceAll(strings.ToLower(text), ",", "")

	for _, strategy := range totalStrategies {
		m := strategy.pattern.FindStringSubmatch(low)
		if m == nil {
			continue
		}
		if d, err := decimal.NewFromString(m[1]); err == nil {
			return &d
		}
	}

	all := lastNumberPattern.FindAllStringSubmatch(low, -1)
	if len(all) == 0 {
		return nil
	}
	d, err := decimal.NewFromString(all[len(all)-1][1])
	if err != nil {
		return nil
	}
	return &d
}

// receiptDate returns the first date-shaped token, scanning left to right,
// that parses with one of the receipt layouts.
func receiptDate(text string) *time.Time {
	for _, candidate := range receiptDatePattern.FindAllString(text, -1) {
		normalized := receiptDateSeparator.Replace(candidate)
		for _, layout := range receiptDateLayouts {
			for _, variant := range []string{normalized, candidate} {
				if t, err := time.Parse(layout, variant); err == nil {
					t = t.UTC()
					return &t
				}
			}
		}
	}
	return nil
}
