package reconcile

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
)

// Unknown is what a manual join reports for a key with no match.
const Unknown = "Unknown"

// ProcedureFetcher builds the pre-aggregated tier: one procedure call whose
// payload carries the joined rows.
func ProcedureFetcher[T any](b backend.Backend, procedure string, args func(Query) map[string]any, mapRow func(backend.Row) T) Fetcher[T] {
	return func(ctx context.Context, q Query) Result[T] {
		var callArgs map[string]any
		if args != nil {
			callArgs = args(q)
		}
		payload, err := b.Call(ctx, procedure, callArgs)
		if err != nil {
			return FromError[T](err)
		}
		rows, total, err := payload.DecodeRows()
		if err != nil {
			return FromError[T](err)
		}
		return Ok(MapRows(rows, mapRow), total)
	}
}

// MapRows converts backend rows into records.
func MapRows[T any](rows []backend.Row, mapRow func(backend.Row) T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, mapRow(r))
	}
	return out
}

// QuerySpecFor turns a view query into a collection query on the base
// collection. columns maps enum criteria to column names; search becomes an
// ilike on searchColumn when set.
func QuerySpecFor(q Query, columns map[string]string, searchColumn string) backend.QuerySpec {
	spec := backend.QuerySpec{
		Filters: q.Criteria.BackendFilters(columns),
		Limit:   q.Page.Limit,
		Offset:  q.Page.Offset,
	}
	if searchColumn != "" && Trim(q.Search) != "" {
		spec.Filters = append(spec.Filters, backend.Filter{Field: searchColumn, Op: backend.OpILike, Value: Trim(q.Search)})
	}
	sortKey := q.SortKey
	if sortKey == "" {
		sortKey = backend.FieldCreatedAt
		spec.Order = []backend.Order{{Field: sortKey, Desc: true}}
		return spec
	}
	spec.Order = []backend.Order{{Field: sortKey, Desc: q.SortDesc}}
	return spec
}

// QueryArgs renders a view query as procedure arguments.
func QueryArgs(q Query) map[string]any {
	args := map[string]any{}
	if s := Trim(q.Search); s != "" {
		args["search"] = s
	}
	for key, value := range q.Match {
		if !isBypass(value) {
			args[key] = Trim(value)
		}
	}
	if q.Page.Limit > 0 {
		args["limit"] = q.Page.Limit
	}
	if q.Page.Offset > 0 {
		args["offset"] = q.Page.Offset
	}
	return args
}

// IndexBy builds a lookup table over rows for the manual join tier.
func IndexBy(rows []backend.Row, key string) map[string][]backend.Row {
	out := make(map[string][]backend.Row, len(rows))
	for _, r := range rows {
		k := r.String(key)
		out[k] = append(out[k], r)
	}
	return out
}

// Lookup resolves key through index, returning Unknown when nothing matches.
func Lookup(index map[string][]backend.Row, key, field string) string {
	rows := index[key]
	if key == "" || len(rows) == 0 {
		return Unknown
	}
	if v := rows[0].String(field); v != "" {
		return v
	}
	return Unknown
}
