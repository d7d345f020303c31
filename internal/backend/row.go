package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row is a single record: field name to value. Every persisted row carries
// id, created_at and updated_at.
type Row map[string]any

const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// get returns the field with any *any indirection removed.
func (r Row) get(field string) any {
	v := r[field]
	for {
		p, ok := v.(*any)
		if !ok {
			return v
		}
		if p == nil {
			return nil
		}
		v = *p
	}
}

// ID returns the row identifier as a string.
func (r Row) ID() string {
	return r.String(FieldID)
}

// String returns the field rendered as a string; nil and missing fields are "".
func (r Row) String(field string) string {
	switch v := r.get(field).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		if len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case uuid.UUID:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the field as an int, tolerating JSON floats, driver int64s and numeric strings.
func (r Row) Int(field string) int {
	switch v := r.get(field).(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	case []byte:
		n, _ := strconv.Atoi(strings.TrimSpace(string(v)))
		return n
	default:
		return 0
	}
}

// Decimal returns the field as a decimal, tolerating NUMERIC columns returned as text.
func (r Row) Decimal(field string) decimal.Decimal {
	switch v := r.get(field).(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(v)))
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// Bool returns the field as a bool; SQLite stores booleans as integers.
func (r Row) Bool(field string) bool {
	switch v := r.get(field).(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case json.Number:
		n, err := v.Float64()
		return err == nil && n != 0
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

// Time returns the field as a UTC time, or the zero time when absent or unparseable.
func (r Row) Time(field string) time.Time {
	t, _ := r.TimePtr(field)
	if t == nil {
		return time.Time{}
	}
	return *t
}

// TimePtr returns the field as a UTC time. ok is false when the field is absent.
func (r Row) TimePtr(field string) (*time.Time, bool) {
	switch v := r.get(field).(type) {
	case time.Time:
		t := v.UTC()
		return &t, true
	case *time.Time:
		if v == nil {
			return nil, false
		}
		t := v.UTC()
		return &t, true
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return nil, false
	}
}

func parseTime(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, true
		}
	}
	return nil, false
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every field of patch applied on top.
func (r Row) Merge(patch Row) Row {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Rows returns a nested array of objects, as produced by procedures that
// embed child records.
func (r Row) Rows(field string) []Row {
	switch v := r.get(field).(type) {
	case []Row:
		return v
	case []map[string]any:
		out := make([]Row, 0, len(v))
		for _, m := range v {
			out = append(out, Row(m))
		}
		return out
	case []any:
		out := make([]Row, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Row(m))
			case Row:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// StringPtr returns the field as a string, or nil when absent or empty.
func (r Row) StringPtr(field string) *string {
	v := r.String(field)
	if v == "" {
		return nil
	}
	return &v
}

// IntPtr returns the field as an int, or nil when absent.
func (r Row) IntPtr(field string) *int {
	if r.get(field) == nil {
		return nil
	}
	n := r.Int(field)
	return &n
}

// Strings returns a list field as strings. A single string becomes a
// one-element list.
func (r Row) Strings(field string) []string {
	switch v := r.get(field).(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, Row{"v": item}.String("v"))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
