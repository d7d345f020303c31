package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/msa-portal/portal-backend/pkg/enums"
)

// Backend is the remote data service behind every portal resource: named
// collections, named procedures and the identity of the caller.
type Backend interface {
	Query(ctx context.Context, collection string, spec QuerySpec) ([]Row, int, error)
	Call(ctx context.Context, procedure string, args map[string]any) (Payload, error)
	Insert(ctx context.Context, collection string, row Row) (Row, error)
	Update(ctx context.Context, collection, id string, patch Row) (Row, error)
	Delete(ctx context.Context, collection, id string) error
	CurrentUser(ctx context.Context) (*User, error)
}

// User is the authenticated caller as seen by the backend.
type User struct {
	ID    string           `json:"id"`
	Email string           `json:"email"`
	Role  enums.MemberRole `json:"role"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == enums.MemberRoleAdmin
}

type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNeq   FilterOp = "neq"
	OpILike FilterOp = "ilike"
	OpIn    FilterOp = "in"
	OpGte   FilterOp = "gte"
	OpLte   FilterOp = "lte"
)

// Filter narrows a collection query. ILike values are plain substrings; the
// adapters add the wildcards.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// QuerySpec describes a collection read. A zero Limit reads every row.
type QuerySpec struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// In is shorthand for a set-membership filter.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Payload is the raw JSON result of a procedure call.
type Payload json.RawMessage

// Decode unmarshals the payload into out.
func (p Payload) Decode(out any) error {
	if len(p) == 0 || string(p) == "null" {
		return &Error{Kind: KindMalformed, Op: "decode", Err: errors.New("empty procedure payload")}
	}
	if err := json.Unmarshal(p, out); err != nil {
		return &Error{Kind: KindMalformed, Op: "decode", Err: err}
	}
	return nil
}

// CallStatus is the {success, error} envelope some procedures answer with.
type CallStatus struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Status extracts the CallStatus envelope. ok is false when the payload is not
// an object carrying a success flag.
func (p Payload) Status() (CallStatus, bool) {
	trimmed := strings.TrimSpace(string(p))
	if !strings.HasPrefix(trimmed, "{") {
		return CallStatus{}, false
	}
	var status CallStatus
	if err := json.Unmarshal(p, &status); err != nil || status.Success == nil {
		return CallStatus{}, false
	}
	return status, true
}

// NewPayload marshals v into a procedure payload.
func NewPayload(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return Payload(data), nil
}

// RowsEnvelope is the shape collection procedures answer with.
type RowsEnvelope struct {
	Records []Row `json:"records"`
	Total   *int  `json:"total"`
}

// DecodeRows reads a procedure payload that is either a bare array of rows
// or a RowsEnvelope. A missing total falls back to the number of rows.
func (p Payload) DecodeRows() ([]Row, int, error) {
	trimmed := strings.TrimSpace(string(p))
	if strings.HasPrefix(trimmed, "[") {
		var rows []Row
		if err := decodeNumbers(p, &rows); err != nil {
			return nil, 0, err
		}
		return rows, len(rows), nil
	}
	if status, ok := p.Status(); ok && !*status.Success {
		return nil, 0, &Error{Kind: KindRejected, Op: "decode", Err: errors.New(status.Error)}
	}
	var env RowsEnvelope
	if err := decodeNumbers(p, &env); err != nil {
		return nil, 0, err
	}
	if env.Records == nil {
		return nil, 0, &Error{Kind: KindMalformed, Op: "decode", Err: errors.New("payload has no records")}
	}
	total := len(env.Records)
	if env.Total != nil {
		total = *env.Total
	}
	return env.Records, total, nil
}

func decodeNumbers(p Payload, out any) error {
	if len(p) == 0 || string(p) == "null" {
		return &Error{Kind: KindMalformed, Op: "decode", Err: errors.New("empty procedure payload")}
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Kind: KindMalformed, Op: "decode", Err: err}
	}
	return nil
}
