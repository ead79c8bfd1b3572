package money

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator generates realistic statement and receipt data using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(0), // Random seed
	}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
	}
}

// ============================================================================
// Amounts
// ============================================================================

// RandomAmount returns a positive amount with two fraction digits between
// minMinor and maxMinor minor units.
func (g *TestDataGenerator) RandomAmount(minMinor, maxMinor int64) decimal.Decimal {
	minor := int64(g.faker.Number(int(minMinor), int(maxMinor)))
	return decimal.New(minor, -2)
}

// SmallPurchase generates a typical small purchase (1-50).
func (g *TestDataGenerator) SmallPurchase() decimal.Decimal {
	return g.RandomAmount(100, 5000)
}

// Bill generates a realistic bill amount (20-500).
func (g *TestDataGenerator) Bill() decimal.Decimal {
	return g.RandomAmount(2000, 50000)
}

// ============================================================================
// Statement rows
// ============================================================================

// StatementRow is one generated bank statement line.
type StatementRow struct {
	Date      time.Time
	Narration string
	Amount    decimal.Decimal
	IsDebit   bool
}

// Cells renders the row as Date / Narration / Debit / Credit cells the way a
// bank statement prints them.
func (r StatementRow) Cells() []string {
	amount := r.Amount.StringFixed(2)
	debit, credit := "", ""
	if r.IsDebit {
		debit = amount
	} else {
		credit = amount
	}
	return []string{r.Date.Format("02/01/2006"), r.Narration, debit, credit}
}

// StatementRow generates a single statement line dated within the last year.
func (g *TestDataGenerator) StatementRow() StatementRow {
	isDebit := g.faker.Number(0, 3) > 0
	amount := g.SmallPurchase()
	narration := g.Merchant()
	if !isDebit {
		amount = g.Bill()
		narration = g.IncomeDescription()
	}

	now := time.Now().UTC()
	date := g.faker.DateRange(now.AddDate(-1, 0, 0), now)

	return StatementRow{
		Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Narration: strings.ToUpper(narration),
		Amount:    amount,
		IsDebit:   isDebit,
	}
}

// StatementRows generates count statement lines.
func (g *TestDataGenerator) StatementRows(count int) []StatementRow {
	rows := make([]StatementRow, count)
	for i := 0; i < count; i++ {
		rows[i] = g.StatementRow()
	}
	return rows
}

// ============================================================================
// Receipts
// ============================================================================

// Receipt is a generated receipt with its expected fields.
type Receipt struct {
	Merchant string
	Date     time.Time
	Total    decimal.Decimal
	Text     string
}

// Receipt generates receipt text with a merchant header, a few line items and
// a TOTAL line.
func (g *TestDataGenerator) Receipt() Receipt {
	merchant := strings.ToUpper(g.Merchant())
	date := g.faker.DateRange(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString(merchant + "\n")
	b.WriteString(g.faker.Street() + "\n")
	b.WriteString("Date: " + date.Format("02/01/2006") + "\n")

	total := decimal.Zero
	for i := 0; i < g.faker.Number(1, 4); i++ {
		price := g.SmallPurchase()
		total = total.Add(price)
		fmt.Fprintf(&b, "%s x1 %s\n", strings.ToUpper(g.faker.Noun()), price.StringFixed(2))
	}
	fmt.Fprintf(&b, "TOTAL: %s\n", total.StringFixed(2))
	b.WriteString("THANK YOU\n")

	return Receipt{Merchant: merchant, Date: date, Total: total, Text: b.String()}
}

// ============================================================================
// Descriptions
// ============================================================================

var merchants = []string{
	"Amazon", "Walmart", "Target", "Costco", "Starbucks",
	"Uber", "Netflix", "Spotify", "Whole Foods", "Shell",
	"Big Bazaar", "Reliance Fresh", "Swiggy", "Zomato", "Fresh Mart",
	"Home Depot", "Best Buy", "IKEA", "Marriott", "Indian Oil",
}

var incomeDescriptions = []string{
	"Monthly salary deposit",
	"Freelance payment",
	"Client invoice payment",
	"Dividend payment",
	"Interest income",
	"Tax refund",
	"Rental income",
}

// Merchant returns a random merchant name.
func (g *TestDataGenerator) Merchant() string {
	return merchants[g.faker.Number(0, len(merchants)-1)]
}

// IncomeDescription returns a random income description.
func (g *TestDataGenerator) IncomeDescription() string {
	return incomeDescriptions[g.faker.Number(0, len(incomeDescriptions)-1)]
}
