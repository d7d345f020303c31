package reconcile

import (
	"strings"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/pagination"
)

// All is the sentinel that disables an enum criterion.
const All = "all"

// Criteria narrows a collection. Search is a case-insensitive substring over
// the record's text fields; Match holds exact-match enum criteria by name.
type Criteria struct {
	Search string            `json:"search,omitempty"`
	Match  map[string]string `json:"match,omitempty"`
}

// Query is what a view asks its tiers for.
type Query struct {
	Criteria
	Page     pagination.Params
	SortKey  string
	SortDesc bool
}

// Fields tells Filter how to read a record.
type Fields[T any] struct {
	Text func(T) []string
	Enum map[string]func(T) string
}

func isBypass(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, All)
}

// Active reports whether the criteria would narrow anything.
func (c Criteria) Active() bool {
	if strings.TrimSpace(c.Search) != "" {
		return true
	}
	for _, v := range c.Match {
		if !isBypass(v) {
			return true
		}
	}
	return false
}

// Filter returns the records matching c in their original order. The input
// slice is never modified.
func Filter[T any](records []T, c Criteria, fields Fields[T]) []T {
	out := make([]T, 0, len(records))
	needle := strings.ToLower(strings.TrimSpace(c.Search))
	for _, rec := range records {
		if needle != "" && !matchesText(rec, needle, fields) {
			continue
		}
		if !matchesEnums(rec, c.Match, fields) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesText[T any](rec T, needle string, fields Fields[T]) bool {
	if fields.Text == nil {
		return true
	}
	for _, text := range fields.Text(rec) {
		if strings.Contains(strings.ToLower(text), needle) {
			return true
		}
	}
	return false
}

func matchesEnums[T any](rec T, match map[string]string, fields Fields[T]) bool {
	for key, want := range match {
		if isBypass(want) {
			continue
		}
		read, ok := fields.Enum[key]
		if !ok {
			continue
		}
		if read(rec) != strings.TrimSpace(want) {
			return false
		}
	}
	return true
}

// BackendFilters turns the enum criteria into equality filters for a
// collection query. Keys are mapped through columns; unmapped keys are skipped.
func (c Criteria) BackendFilters(columns map[string]string) []backend.Filter {
	var out []backend.Filter
	for key, value := range c.Match {
		if isBypass(value) {
			continue
		}
		column, ok := columns[key]
		if !ok {
			continue
		}
		out = append(out, backend.Eq(column, strings.TrimSpace(value)))
	}
	return out
}

// LocalPage applies q to an in-memory collection: criteria first, then the
// page window. Total counts the matches before paging. A zero limit keeps
// every record from the offset on.
func LocalPage[T any](records []T, q Query, fields Fields[T]) Page[T] {
	if records == nil {
		records = []T{}
	}
	if q.Criteria.Active() {
		records = Filter(records, q.Criteria, fields)
	}
	total := len(records)
	switch {
	case q.Page.Limit > 0:
		records = pagination.Slice(records, q.Page)
	case q.Page.Offset > 0:
		if q.Page.Offset >= len(records) {
			records = []T{}
		} else {
			records = append([]T(nil), records[q.Page.Offset:]...)
		}
	}
	return Page[T]{Records: records, Total: total}
}
