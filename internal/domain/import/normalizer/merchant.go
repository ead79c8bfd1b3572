package normalizer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMerchantLength bounds the merchant text stored on a candidate record.
const MaxMerchantLength = 100

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanMerchant flattens line breaks and whitespace runs inside a merchant
// cell and truncates the result to MaxMerchantLength runes.
func CleanMerchant(raw string) string {
	cleaned := whitespaceRun.ReplaceAllString(raw, " ")
	cleaned = strings.TrimSpace(cleaned)
	return Truncate(cleaned, MaxMerchantLength)
}

// Truncate cuts s to at most n runes without splitting a multi-byte character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
