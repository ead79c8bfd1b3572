// Package sniffer infers what an uploaded document is and what its table
// columns mean. It works from header text and raw bytes only.
package sniffer

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// Role is the semantic purpose of a table column.
type Role string

const (
	RoleDate        Role = "date"
	RoleDescription Role = "description"
	RoleAmount      Role = "amount"
)

// Unmapped marks a role with no matching column.
const Unmapped = -1

// ColumnMapping maps each role to a column index, or Unmapped.
type ColumnMapping struct {
	Date        int `json:"date"`
	Description int `json:"description"`
	Amount      int `json:"amount"`
}

// Index returns the column index for role.
func (m ColumnMapping) Index(role Role) int {
	switch role {
	case RoleDate:
		return m.Date
	case RoleDescription:
		return m.Description
	case RoleAmount:
		return m.Amount
	default:
		return Unmapped
	}
}

// Resolve returns the cell for role in row, or "" when the role is unmapped
// or the row is too short.
func (m ColumnMapping) Resolve(row []string, role Role) (string, bool) {
	idx := m.Index(role)
	if idx == Unmapped || idx < 0 || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}

// roleKeywords is evaluated per role; a header matches a role when it
// contains any of its keywords.
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RoleDate, []string{"date"}},
	{RoleAmount, []string{"amount", "debit", "credit"}},
	{RoleDescription, []string{"desc", "details", "narration", "merchant"}},
}

// roleMatcher wraps an Aho-Corasick matcher; Match mutates internal state,
// so calls are serialised.
type roleMatcher struct {
	mu      sync.Mutex
	role    Role
	matcher *ahocorasick.Matcher
}

func (r *roleMatcher) matches(header string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matcher.Match([]byte(header))) > 0
}

var roleMatchers = buildRoleMatchers()

func buildRoleMatchers() []*roleMatcher {
	matchers := make([]*roleMatcher, 0, len(roleKeywords))
	for _, rk := range roleKeywords {
		matchers = append(matchers, &roleMatcher{
			role:    rk.role,
			matcher: ahocorasick.NewStringMatcher(rk.keywords),
		})
	}
	return matchers
}

// InferColumns assigns each role the first header, in column order, that
// contains one of the role's keywords. Roles with no match stay Unmapped.
func InferColumns(headers []string) ColumnMapping {
	mapping := ColumnMapping{
		Date:        Unmapped,
		Description: Unmapped,
		Amount:      Unmapped,
	}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))
		if h == "" {
			continue
		}

		for _, rm := range roleMatchers {
			if mapping.Index(rm.role) != Unmapped {
				continue
			}
			if rm.matches(h) {
				mapping.set(rm.role, i)
			}
		}
	}

	return mapping
}

func (m *ColumnMapping) set(role Role, idx int) {
	switch role {
	case RoleDate:
		m.Date = idx
	case RoleDescription:
		m.Description = idx
	case RoleAmount:
		m.Amount = idx
	}
}
