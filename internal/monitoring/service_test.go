package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/backendtest"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore/sqlstoretest"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/internal/procedures"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var (
	admin  = &backend.User{ID: "admin-user", Email: "admin@example.org", Role: enums.MemberRoleAdmin}
	member = &backend.User{ID: "member-user", Email: "member@example.org", Role: enums.MemberRoleMember}
)

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() { close(f.stopped) }

func (f *fakeTicker) tick(timeout time.Duration) bool {
	select {
	case f.ch <- testNow:
		return true
	case <-time.After(timeout):
		return false
	}
}

type harness struct {
	store    *sqlstore.Store
	backend  *backendtest.Counting
	svc      Service
	recorder *notifications.Recorder
	ticker   *fakeTicker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, _ := sqlstoretest.New(t, sqlstoretest.Options{Now: func() time.Time { return testNow }})
	procedures.Register(store, func() time.Time { return testNow })
	cb := backendtest.NewCounting(store)
	rec := &notifications.Recorder{}
	ticker := newFakeTicker()
	svc, err := NewService(context.Background(), ServiceParams{
		Deps:      reconcile.Deps{Backend: cb, Sink: rec, Logger: logger.Nop(), Now: func() time.Time { return testNow }},
		NewTicker: func(time.Duration) reconcile.Ticker { return ticker },
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &harness{store: store, backend: cb, svc: svc, recorder: rec, ticker: ticker}
}

func as(user *backend.User) context.Context {
	return backend.WithUser(context.Background(), user)
}

func (h *harness) log(t *testing.T, level enums.LogLevel, message string, resolved bool) string {
	t.Helper()
	row, err := h.store.Insert(context.Background(), collectionLogs, backend.Row{
		"level": string(level), "source": "api", "message": message, "resolved": resolved,
	})
	require.NoError(t, err)
	return row.ID()
}

func (h *harness) sample(t *testing.T, name string, value float64, at time.Time) {
	t.Helper()
	_, err := h.store.Insert(context.Background(), collectionMetrics, backend.Row{
		"name": name, "value": value, "recorded_at": at,
	})
	require.NoError(t, err)
}

func TestRefreshLoadsLogsAndLatestMetrics(t *testing.T) {
	h := newHarness(t)
	h.log(t, enums.LogLevelInfo, "deploy finished", true)
	h.log(t, enums.LogLevelError, "smtp refused connection", false)
	h.sample(t, "cpu_usage", 20, testNow.Add(-time.Hour))
	h.sample(t, "cpu_usage", 35.5, testNow.Add(-time.Minute))
	h.sample(t, "db_connections", 8, testNow.Add(-time.Minute))

	require.NoError(t, h.svc.Refresh(as(admin)))
	snap := h.svc.Snapshot()
	assert.Equal(t, reconcile.TierProcedure, snap.Tier)
	assert.False(t, snap.UsingFallbackData)
	assert.Len(t, snap.Collection, 2)
	assert.Equal(t, 1, snap.Stats.Errors)
	assert.Equal(t, 50, snap.Stats.ErrorRate)
	assert.Equal(t, HealthCritical, snap.Stats.Health)

	metrics := h.svc.Metrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, "cpu_usage", metrics[0].Name)
	assert.Equal(t, "35.5", metrics[0].Value.String())
	assert.Equal(t, "db_connections", metrics[1].Name)
}

func TestRefreshRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	err := h.svc.Refresh(as(member))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, 0, h.backend.Total())

	assert.Error(t, h.svc.StartAutoRefresh(as(member)))
	assert.False(t, h.svc.AutoRefreshing())
}

func TestJoinTierWhenProcedureMissing(t *testing.T) {
	h := newHarness(t)
	id := h.log(t, enums.LogLevelWarning, "slow query", false)
	h.sample(t, "cpu_usage", 10, testNow.Add(-2*time.Hour))
	h.sample(t, "cpu_usage", 12, testNow.Add(-time.Hour))
	h.backend.CallFn = func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
		return nil, backend.Errorf(backend.KindProcedureMissing, "call "+procedure, "missing")
	}

	require.NoError(t, h.svc.Refresh(as(admin)))
	snap := h.svc.Snapshot()
	assert.Equal(t, reconcile.TierJoin, snap.Tier)
	assert.False(t, snap.UsingFallbackData)
	require.Len(t, snap.Collection, 1)
	assert.Equal(t, id, snap.Collection[0].ID)
	assert.Equal(t, enums.LogLevelWarning, snap.Collection[0].Level)
	assert.True(t, snap.Collection[0].CreatedAt.Equal(testNow), "created_at %s", snap.Collection[0].CreatedAt)
	assert.Equal(t, 1, snap.Stats.Last24h)
	require.Len(t, h.svc.Metrics(), 1)
	assert.Equal(t, "12", h.svc.Metrics()[0].Value.String())
}

func TestSeedFallbackServesSeedMetrics(t *testing.T) {
	h := newHarness(t)
	down := errors.New("connection refused")
	h.backend.CallFn = func(context.Context, string, map[string]any) (backend.Payload, error) { return nil, down }
	h.backend.QueryFn = func(context.Context, string, backend.QuerySpec) ([]backend.Row, int, error) { return nil, 0, down }

	require.NoError(t, h.svc.Refresh(as(admin)))
	snap := h.svc.Snapshot()
	assert.Equal(t, reconcile.TierSeed, snap.Tier)
	assert.True(t, snap.UsingFallbackData)
	assert.Len(t, snap.Collection, len(DefaultSeed()))
	assert.Len(t, h.svc.Metrics(), len(DefaultMetrics()))
}

func TestAutoRefreshStopsAfterClose(t *testing.T) {
	h := newHarness(t)
	calls := make(chan string, 8)
	h.backend.CallFn = func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
		calls <- procedure
		return h.store.Call(ctx, procedure, args)
	}

	require.NoError(t, h.svc.StartAutoRefresh(as(admin)))
	require.True(t, h.svc.AutoRefreshing())
	for i := 0; i < 2; i++ {
		require.True(t, h.ticker.tick(time.Second))
		select {
		case got := <-calls:
			assert.Equal(t, procHealth, got)
		case <-time.After(time.Second):
			t.Fatalf("refresh %d never reached the backend", i+1)
		}
	}

	h.svc.Close()
	select {
	case <-h.ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker was not stopped")
	}
	assert.False(t, h.svc.AutoRefreshing())
	assert.False(t, h.ticker.tick(50*time.Millisecond))
	assert.Equal(t, 2, h.backend.Calls("call:"+procHealth))
}

func TestRecordResolveAndDelete(t *testing.T) {
	h := newHarness(t)
	entry, err := h.svc.RecordLog(as(admin), &LogInput{Level: enums.LogLevelError, Source: " jobs ", Message: " nightly export failed "})
	require.NoError(t, err)
	assert.Equal(t, "jobs", entry.Source)
	assert.Equal(t, HealthCritical, h.svc.Snapshot().Stats.Health)

	require.NoError(t, h.svc.Resolve(as(admin), entry.ID))
	snap := h.svc.Snapshot()
	require.Len(t, snap.Collection, 1)
	assert.True(t, snap.Collection[0].Resolved)
	assert.Equal(t, 0, snap.Stats.Unresolved)

	require.NoError(t, h.svc.DeleteLog(as(admin), entry.ID))
	assert.Empty(t, h.svc.Snapshot().Collection)

	last, ok := h.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "Log entry deleted", last.Message)
}

func TestRecordLogValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.RecordLog(as(admin), &LogInput{Level: "loud", Source: "api", Message: "x"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.RecordLog(as(member), &LogInput{Level: enums.LogLevelInfo, Source: "api", Message: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, 0, h.backend.Total())
}

func TestClearResolvedKeepsOpenEntries(t *testing.T) {
	h := newHarness(t)
	h.log(t, enums.LogLevelInfo, "cache warmed", true)
	h.log(t, enums.LogLevelError, "cache miss storm", true)
	h.log(t, enums.LogLevelError, "queue stuck", false)

	n, err := h.svc.ClearResolved(as(admin), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	snap := h.svc.Snapshot()
	require.Len(t, snap.Collection, 1)
	assert.Equal(t, "queue stuck", snap.Collection[0].Message)
	assert.Equal(t, 1, h.backend.Calls("call:"+procPurge))
}

func TestPurgeHonorsCutoff(t *testing.T) {
	h := newHarness(t)
	h.log(t, enums.LogLevelInfo, "old", false)
	before := testNow.Add(-time.Minute)
	n, err := Purge(context.Background(), h.store, false, &before)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	after := testNow.Add(time.Minute)
	n, err = Purge(context.Background(), h.store, false, &after)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeriveHealth(t *testing.T) {
	recent := testNow.Add(-time.Hour)
	old := testNow.Add(-72 * time.Hour)
	infos := func(n int) []LogEntry {
		out := make([]LogEntry, n)
		for i := range out {
			out[i] = LogEntry{Level: enums.LogLevelInfo, CreatedAt: recent}
		}
		return out
	}
	cases := []struct {
		name    string
		records []LogEntry
		want    Health
	}{
		{name: "empty", records: nil, want: HealthHealthy},
		{name: "quiet", records: infos(5), want: HealthHealthy},
		{
			name:    "resolved error at ten percent",
			records: append(infos(9), LogEntry{Level: enums.LogLevelError, Resolved: true, CreatedAt: recent}),
			want:    HealthDegraded,
		},
		{
			name:    "open error",
			records: append(infos(19), LogEntry{Level: enums.LogLevelError, CreatedAt: old}),
			want:    HealthDegraded,
		},
		{
			name:    "open critical today",
			records: append(infos(19), LogEntry{Level: enums.LogLevelCritical, CreatedAt: recent}),
			want:    HealthCritical,
		},
		{
			name:    "resolved critical",
			records: append(infos(19), LogEntry{Level: enums.LogLevelCritical, Resolved: true, CreatedAt: recent}),
			want:    HealthHealthy,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Derive(tc.records, testNow).Health)
		})
	}

	stats := Derive(append(infos(3), LogEntry{Level: enums.LogLevelWarning, CreatedAt: old}), testNow)
	assert.Equal(t, 3, stats.Last24h)
	assert.Equal(t, 1, stats.ByLevel["warning"])
	assert.Equal(t, 0, stats.ByLevel["critical"])
}
