package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var errSchemaMissing = backend.Errorf(backend.KindCollectionMissing, "query items", "relation \"items\" does not exist")

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type item struct {
	ID        string
	Name      string
	Email     string
	Status    string
	CreatedAt time.Time
}

type itemStats struct {
	Total       int
	ByStatus    map[string]int
	ActiveRate  int
	NewThisWeek int
}

func deriveItems(records []item, now time.Time) itemStats {
	byStatus := Counts(CountBy(records, func(i item) string { return i.Status }), "active", "pending")
	return itemStats{
		Total:       len(records),
		ByStatus:    byStatus,
		ActiveRate:  Rate(byStatus["active"], len(records)),
		NewThisWeek: WithinWindow(records, func(i item) time.Time { return i.CreatedAt }, now, 7*24*time.Hour),
	}
}

var itemFields = Fields[item]{
	Text: func(i item) []string { return []string{i.Name, i.Email} },
	Enum: map[string]func(item) string{
		"status": func(i item) string { return i.Status },
	},
}

func rowToItem(r backend.Row) item {
	return item{
		ID:        r.ID(),
		Name:      r.String("name"),
		Email:     r.String("email"),
		Status:    r.String("status"),
		CreatedAt: r.Time("created_at"),
	}
}

// fakeBackend keeps one collection in memory and counts every remote call.
type fakeBackend struct {
	mu    sync.Mutex
	user  *backend.User
	rows  []backend.Row
	calls map[string]int

	queryFn  func(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error)
	callFn   func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error)
	insertFn func(ctx context.Context, collection string, row backend.Row) (backend.Row, error)
}

func newFakeBackend(user *backend.User, rows ...backend.Row) *fakeBackend {
	return &fakeBackend{user: user, rows: rows, calls: map[string]int{}}
}

func (f *fakeBackend) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) Network() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeBackend) Query(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
	f.count("query")
	if f.queryFn != nil {
		return f.queryFn(ctx, collection, spec)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Row, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Clone())
	}
	return out, len(out), nil
}

func (f *fakeBackend) Call(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
	f.count("call")
	if f.callFn != nil {
		return f.callFn(ctx, procedure, args)
	}
	return backend.Payload(`{"success":true}`), nil
}

func (f *fakeBackend) Insert(ctx context.Context, collection string, row backend.Row) (backend.Row, error) {
	f.count("insert")
	if f.insertFn != nil {
		return f.insertFn(ctx, collection, row)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := row.Clone()
	f.rows = append(f.rows, stored)
	return stored, nil
}

func (f *fakeBackend) Update(ctx context.Context, collection, id string, patch backend.Row) (backend.Row, error) {
	f.count("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID() == id {
			f.rows[i] = r.Merge(patch)
			return f.rows[i], nil
		}
	}
	return nil, backend.Errorf(backend.KindNotFound, "update "+collection, "missing %s", id)
}

func (f *fakeBackend) Delete(ctx context.Context, collection, id string) error {
	f.count("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID() == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return backend.Errorf(backend.KindNotFound, "delete "+collection, "missing %s", id)
}

func (f *fakeBackend) CurrentUser(context.Context) (*backend.User, error) {
	return f.user, nil
}

func (f *fakeBackend) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.ID() == id {
			f.rows[i] = r.Merge(backend.Row{"status": status})
		}
	}
}

func joinFetcher(b backend.Backend) Fetcher[item] {
	return func(ctx context.Context, q Query) Result[item] {
		rows, total, err := b.Query(ctx, "items", backend.QuerySpec{})
		if err != nil {
			return FromError[item](err)
		}
		out := make([]item, 0, len(rows))
		for _, r := range rows {
			out = append(out, rowToItem(r))
		}
		return Ok(out, total)
	}
}

var (
	adminUser  = &backend.User{ID: "admin-1", Email: "admin@example.org", Role: enums.MemberRoleAdmin}
	memberUser = &backend.User{ID: "member-1", Email: "member@example.org", Role: enums.MemberRoleMember}
)

func itemRow(id, name, status string, created time.Time) backend.Row {
	return backend.Row{
		"id":         id,
		"name":       name,
		"email":      name + "@example.org",
		"status":     status,
		"created_at": created,
	}
}
