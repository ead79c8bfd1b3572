// Package normalizer converts free-text tokens found in statements and receipts
// into typed values. Every function here is total: malformed input yields an
// explicit absent result, never an error or a panic.
package normalizer

import (
	"regexp"
	"strings"
	"time"
)

// dateStrategy pairs a textual shape with the strict layouts tried once the
// shape is found in the input.
type dateStrategy struct {
	name    string
	pattern *regexp.Regexp
}

// statementDateLayouts are tried after separator normalization, so the
// slash-separated shape is parsed by the dashed layout.
var statementDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02 Jan 2006",
}

// Order matters: the first strategy whose pattern matches and whose token
// parses wins.
var dateStrategies = []dateStrategy{
	{name: "iso", pattern: regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)},
	{name: "dd/mm/yyyy", pattern: regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)},
	{name: "dd-mm-yyyy", pattern: regexp.MustCompile(`\d{2}-\d{2}-\d{4}`)},
	{name: "dd mon yyyy", pattern: regexp.MustCompile(`\d{2}\s\w{3}\s\d{4}`)},
}

// SupportedDateFormats lists the layouts ParseDate round-trips.
var SupportedDateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02 Jan 2006",
}

// ParseDate finds the first recognised date shape in s and parses it.
// The result is midnight UTC on the parsed day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, strategy := range dateStrategies {
		token := strategy.pattern.FindString(s)
		if token == "" {
			continue
		}
		if t, ok := parseDateToken(token); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDateToken(token string) (time.Time, bool) {
	token = strings.ReplaceAll(token, "/", "-")
	token = strings.Join(strings.Fields(token), " ")

	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
