package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcedureFetcherDecodesEnvelope(t *testing.T) {
	fb := newFakeBackend(adminUser)
	var gotArgs map[string]any
	fb.callFn = func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
		gotArgs = args
		return backend.Payload(`{"records":[{"id":"a","name":"Amina","status":"active"}],"total":7}`), nil
	}
	fetch := ProcedureFetcher(fb, "get_items", QueryArgs, rowToItem)

	res := fetch(context.Background(), Query{
		Criteria: Criteria{Search: " ami ", Match: map[string]string{"status": "active", "role": All}},
		Page:     pagination.Params{Limit: 10, Offset: 20},
	})
	page, ok := res.Page()
	require.True(t, ok)
	assert.Equal(t, 7, page.Total)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Amina", page.Records[0].Name)
	assert.Equal(t, map[string]any{"search": "ami", "status": "active", "limit": 10, "offset": 20}, gotArgs)
}

func TestProcedureFetcherClassifiesFailures(t *testing.T) {
	fb := newFakeBackend(adminUser)
	fb.callFn = func(context.Context, string, map[string]any) (backend.Payload, error) {
		return nil, backend.Errorf(backend.KindProcedureMissing, "call get_items", "missing")
	}
	res := ProcedureFetcher(fb, "get_items", nil, rowToItem)(context.Background(), Query{})
	require.False(t, res.IsOk())
	assert.Equal(t, FailureUnavailable, res.Failure().Kind)

	fb.callFn = func(context.Context, string, map[string]any) (backend.Payload, error) {
		return backend.Payload(`"not rows"`), nil
	}
	res = ProcedureFetcher(fb, "get_items", nil, rowToItem)(context.Background(), Query{})
	assert.False(t, res.IsOk())
}

func TestQuerySpecFor(t *testing.T) {
	spec := QuerySpecFor(Query{
		Criteria: Criteria{Search: "ali", Match: map[string]string{"status": "pending"}},
		Page:     pagination.Params{Limit: 5},
	}, map[string]string{"status": "status"}, "name")

	assert.Equal(t, 5, spec.Limit)
	require.Len(t, spec.Filters, 2)
	assert.Equal(t, backend.Eq("status", "pending"), spec.Filters[0])
	assert.Equal(t, backend.OpILike, spec.Filters[1].Op)
	assert.Equal(t, []backend.Order{{Field: backend.FieldCreatedAt, Desc: true}}, spec.Order)

	sorted := QuerySpecFor(Query{SortKey: "name"}, nil, "")
	assert.Empty(t, sorted.Filters)
	assert.Equal(t, []backend.Order{{Field: "name", Desc: false}}, sorted.Order)
}

func TestLookupFallsBackToUnknown(t *testing.T) {
	index := IndexBy([]backend.Row{
		{"id": "u1", "full_name": "Amina"},
		{"id": "u2", "full_name": ""},
	}, "id")

	assert.Equal(t, "Amina", Lookup(index, "u1", "full_name"))
	assert.Equal(t, Unknown, Lookup(index, "u2", "full_name"))
	assert.Equal(t, Unknown, Lookup(index, "missing", "full_name"))
	assert.Equal(t, Unknown, Lookup(index, "", "full_name"))
}

func TestLocalPage(t *testing.T) {
	records := []item{
		{ID: "1", Name: "Amina", Status: "active"},
		{ID: "2", Name: "Bilal", Status: "pending"},
		{ID: "3", Name: "Amir", Status: "active"},
		{ID: "4", Name: "Dana", Status: "active"},
	}

	all := LocalPage(records, Query{}, itemFields)
	assert.Equal(t, 4, all.Total)
	assert.Len(t, all.Records, 4)

	filtered := LocalPage(records, Query{Criteria: Criteria{Match: map[string]string{"status": "active"}}, Page: pagination.Params{Limit: 2}}, itemFields)
	assert.Equal(t, 3, filtered.Total)
	require.Len(t, filtered.Records, 2)
	assert.Equal(t, "1", filtered.Records[0].ID)
	assert.Equal(t, "3", filtered.Records[1].ID)

	offsetOnly := LocalPage(records, Query{Page: pagination.Params{Offset: 3}}, itemFields)
	assert.Equal(t, 4, offsetOnly.Total)
	require.Len(t, offsetOnly.Records, 1)
	assert.Equal(t, "4", offsetOnly.Records[0].ID)

	past := LocalPage(records, Query{Page: pagination.Params{Offset: 9}}, itemFields)
	assert.Empty(t, past.Records)
	assert.NotNil(t, past.Records)

	empty := LocalPage[item](nil, Query{Criteria: Criteria{Search: "x"}}, itemFields)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.Records)
}

func TestCheckStatusEnvelope(t *testing.T) {
	assert.NoError(t, CheckStatus("p", backend.Payload(`{"success":true}`)))
	assert.NoError(t, CheckStatus("p", backend.Payload(`[{"id":"a"}]`)))

	err := CheckStatus("p", backend.Payload(`{"success":false,"error":"Invitation already exists"}`))
	assert.True(t, backend.IsKind(err, backend.KindDuplicate))

	err = CheckStatus("p", backend.Payload(`{"success":false}`))
	require.Error(t, err)
	assert.True(t, backend.IsKind(err, backend.KindRejected))
	var typed *backend.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "procedure reported failure", typed.Err.Error())
}
