package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItemView(t *testing.T, fb *fakeBackend) *View[item, itemStats] {
	t.Helper()
	resolver, err := NewResolver(ResolverParams[item]{
		Resource: "items",
		Join:     joinFetcher(fb),
		Seed:     StaticSeed[item]{{ID: "seed-1", Status: "active"}},
		Fields:   itemFields,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	view, err := NewView(context.Background(), ViewParams[item, itemStats]{
		Resource: "items",
		Resolver: resolver,
		Derive:   deriveItems,
		Fields:   itemFields,
		Now:      func() time.Time { return fixedNow },
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(view.Close)
	return view
}

func TestStoreDiscardsStaleGenerations(t *testing.T) {
	store := NewStore(deriveItems, func() time.Time { return fixedNow })
	older := store.Begin()
	newer := store.Begin()
	assert.True(t, store.Snapshot().IsLoading)

	applied := store.Commit(newer, Resolution[item]{Page: Page[item]{Records: []item{{ID: "new"}}, Total: 1}, Tier: TierJoin}, "")
	require.True(t, applied)
	applied = store.Commit(older, Resolution[item]{Page: Page[item]{Records: []item{{ID: "old"}, {ID: "old-2"}}, Total: 2}, Tier: TierJoin}, "")
	assert.False(t, applied)

	snap := store.Snapshot()
	assert.False(t, snap.IsLoading)
	require.Len(t, snap.Collection, 1)
	assert.Equal(t, "new", snap.Collection[0].ID)
	assert.Equal(t, 1, snap.Stats.Total)
}

func TestStoreApplyRecomputesStats(t *testing.T) {
	store := NewStore(deriveItems, func() time.Time { return fixedNow })
	assert.Equal(t, 0, store.Stats().Total)

	store.Apply([]item{{ID: "1", Status: "active"}, {ID: "2", Status: "pending"}})
	stats := store.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 50, stats.ActiveRate)

	store.Patch(func(records []item) []item { return records[:1] })
	assert.Equal(t, 1, store.Stats().Total)
	assert.Equal(t, 100, store.Stats().ActiveRate)
}

func TestViewRefreshIsIdempotent(t *testing.T) {
	fb := newFakeBackend(adminUser,
		itemRow("a", "amina", "active", fixedNow.Add(-time.Hour)),
		itemRow("b", "bilal", "pending", fixedNow.Add(-30*24*time.Hour)),
	)
	view := newItemView(t, fb)

	require.NoError(t, view.Refresh(context.Background()))
	first := view.Snapshot()
	require.NoError(t, view.Refresh(context.Background()))
	second := view.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, TierJoin, second.Tier)
	assert.False(t, second.UsingFallbackData)
	assert.Equal(t, len(second.Collection), second.Stats.Total)
	assert.Equal(t, 1, second.Stats.NewThisWeek)
	assert.Equal(t, 2, fb.Calls("query"))
}

func TestViewServesSeedWhenBackendFails(t *testing.T) {
	fb := newFakeBackend(adminUser)
	fb.queryFn = func(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
		return nil, 0, errSchemaMissing
	}
	view := newItemView(t, fb)

	require.NoError(t, view.Refresh(context.Background()))
	snap := view.Snapshot()
	assert.True(t, snap.UsingFallbackData)
	assert.Equal(t, TierSeed, snap.Tier)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Collection, 1)
}

func TestViewClosedDropsResults(t *testing.T) {
	fb := newFakeBackend(adminUser, itemRow("a", "amina", "active", fixedNow))
	view := newItemView(t, fb)

	view.Close()
	err := view.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, fb.Calls("query"))
	assert.Empty(t, view.Collection())
}

func TestViewCloseDuringFetchDiscardsResponse(t *testing.T) {
	fb := newFakeBackend(adminUser)
	var view *View[item, itemStats]
	fb.queryFn = func(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
		view.Close()
		return []backend.Row{itemRow("late", "late", "active", fixedNow)}, 1, nil
	}
	view = newItemView(t, fb)

	err := view.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	snap := view.Snapshot()
	assert.Empty(t, snap.Collection)
	assert.False(t, snap.IsLoading)
}

func TestViewFilterUsesCurrentCollection(t *testing.T) {
	fb := newFakeBackend(adminUser,
		itemRow("a", "amina", "active", fixedNow),
		itemRow("b", "bilal", "pending", fixedNow),
	)
	view := newItemView(t, fb)
	require.NoError(t, view.Refresh(context.Background()))

	got := view.Filter(Criteria{Match: map[string]string{"status": "pending"}})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Len(t, view.Collection(), 2)
}

func TestViewNotifiesOnceWhenEveryTierFails(t *testing.T) {
	fb := newFakeBackend(adminUser)
	fb.queryFn = func(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
		return nil, 0, errSchemaMissing
	}
	seedFails := true
	resolver, err := NewResolver(ResolverParams[item]{
		Resource: "items",
		Join:     joinFetcher(fb),
		Seed: SeedFunc[item](func(context.Context) ([]item, error) {
			if seedFails {
				return nil, errors.New("seed unreadable")
			}
			return []item{{ID: "seed-1"}}, nil
		}),
		Fields: itemFields,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	rec := &notifications.Recorder{}
	view, err := NewView(context.Background(), ViewParams[item, itemStats]{
		Resource: "items",
		Resolver: resolver,
		Derive:   deriveItems,
		Now:      func() time.Time { return fixedNow },
		Logger:   logger.Nop(),
		Sink:     rec,
	})
	require.NoError(t, err)
	t.Cleanup(view.Close)

	require.NoError(t, view.Refresh(context.Background()))
	require.Equal(t, 1, rec.Len())
	n, _ := rec.Last()
	assert.Equal(t, enums.NotificationKindError, n.Kind)
	assert.Equal(t, "Unable to load items", n.Message)
	assert.Equal(t, TierNone, view.Snapshot().Tier)

	seedFails = false
	require.NoError(t, view.Refresh(context.Background()))
	assert.Equal(t, TierSeed, view.Snapshot().Tier)
	assert.Equal(t, 1, rec.Len())
}
