package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const freshMartReceipt = `
   FRESH MART
12 MG Road, Bengaluru
GSTIN 29ABCDE1234F1Z5
Date: 14/08/2025  18:42
Milk 1L        2 x 30.00
Bread                45.00
Rice 5kg            144.00
TOTAL: 249.00
Thank you! Visit again
`

func TestParseReceipt_FreshMart(t *testing.T) {
	fields := ParseReceipt(freshMartReceipt)

	require.NotNil(t, fields.Merchant)
	assert.Equal(t, "FRESH MART", *fields.Merchant)

	require.NotNil(t, fields.Amount)
	assert.True(t, decimal.RequireFromString("249.00").Equal(*fields.Amount))

	require.NotNil(t, fields.OccurredAt)
	assert.Equal(t, time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC), *fields.OccurredAt)
	assert.True(t, fields.Complete())
}

func TestReceiptAmount_Precedence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"total before amount", "Amount: 50\nTotal: 120", "120"},
		{"amount label", "Items 3\nAmount - 75.5\nCash", "75.5"},
		{"rupee glyph", "TOTAL ₹ 1,499.00", "1499.00"},
		{"rs prefix", "Total: Rs. 320", "320"},
		{"grand total", "GRAND TOTAL: 999.99", "999.99"},
		{"fallback to last number", "Coffee 120.00\nCake 80.00\n200.00", "200.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := receiptAmount(tt.text)
			require.NotNil(t, got)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(*got), "got %s", got)
		})
	}
}

func TestReceiptAmount_None(t *testing.T) {
	assert.Nil(t, receiptAmount("no digits here"))
	assert.Nil(t, receiptAmount(""))
}

func TestReceiptMerchant(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *string
	}{
		{"skips noise lines", "***\n12345\n--\nCAFE COFFEE DAY\n", ptr("CAFE COFFEE DAY")},
		{"skips long disclaimer", strings.Repeat("x", 10) + " " + strings.Repeat("terms ", 10) + "\nBLUE TOKAI", ptr("BLUE TOKAI")},
		{"only first eight lines", "1\n2\n3\n4\n5\n6\n7\n8\nLATE MERCHANT", nil},
		{"blank lines ignored", "\n\n\n1\n\n2\n\nSTORE ONE", ptr("STORE ONE")},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := receiptMerchant(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestReceiptDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"day first dashes", "Bill 05-08-2025", time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)},
		{"day first slashes", "on 5/8/2025 at", time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)},
		{"iso", "2025-12-01 10:00", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"month first when day first is impossible", "12/31/2025", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"named month", "Date 07-Sep-2025", time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)},
		{"named month spaced", "07 Sep 2025", time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)},
		{"first parseable wins", "99/99/9999 then 01-02-2024", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := receiptDate(tt.text)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestReceiptDate_None(t *testing.T) {
	assert.Nil(t, receiptDate("no date on this receipt"))
	assert.Nil(t, receiptDate("Invoice 12-2025"))
}

func TestParseReceipt_Incomplete(t *testing.T) {
	fields := ParseReceipt("KWIK STOP\nTOTAL: 12.00")
	assert.NotNil(t, fields.Amount)
	assert.Nil(t, fields.OccurredAt)
	assert.False(t, fields.Complete())
}

func ptr(s string) *string { return &s }
