package events

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
	admin = &backend.User{ID: "admin-user", Email: "aisha@example.org", Role: enums.MemberRoleAdmin}
	bilal = &backend.User{ID: "bilal-user", Email: "Bilal@Example.org", Role: enums.MemberRoleMember}
	sara  = &backend.User{ID: "sara-user", Email: "sara@example.org", Role: enums.MemberRoleMember}
)

type harness struct {
	store    *sqlstore.Store
	backend  *backendtest.Counting
	svc      Service
	recorder *notifications.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, _ := sqlstoretest.New(t, sqlstoretest.Options{Now: func() time.Time { return testNow }})
	procedures.Register(store, func() time.Time { return testNow })
	cb := backendtest.NewCounting(store)
	rec := &notifications.Recorder{}
	svc, err := NewService(context.Background(), ServiceParams{
		Deps: reconcile.Deps{Backend: cb, Sink: rec, Logger: logger.Nop(), Now: func() time.Time { return testNow }},
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &harness{store: store, backend: cb, svc: svc, recorder: rec}
}

func as(user *backend.User) context.Context {
	return backend.WithUser(context.Background(), user)
}

func (h *harness) create(t *testing.T, title string, capacity int) *Event {
	t.Helper()
	e, err := h.svc.Create(as(admin), &EventInput{Title: title, Capacity: capacity, StartsAt: testNow.Add(72 * time.Hour)})
	require.NoError(t, err)
	return e
}

func TestCreateAndRegister(t *testing.T) {
	h := newHarness(t)
	e := h.create(t, "Game night", 0)
	assert.Equal(t, "general", e.Category)
	assert.Equal(t, enums.EventStatusUpcoming, e.Status)

	reg, err := h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID, FullName: "Bilal Haddad"})
	require.NoError(t, err)
	assert.Equal(t, "bilal@example.org", reg.Email)
	assert.Equal(t, enums.RegistrationStatusRegistered, reg.Status)

	snap := h.svc.Snapshot()
	require.Len(t, snap.Collection, 1)
	assert.Equal(t, 1, snap.Collection[0].RegisteredCount)
	assert.Equal(t, 1, snap.Stats.Upcoming)
	assert.Equal(t, 1, snap.Stats.Registrations)
	assert.Equal(t, 0, snap.Stats.AttendanceRate)
}

func TestRegisterTwiceIsConflict(t *testing.T) {
	h := newHarness(t)
	e := h.create(t, "Game night", 0)
	_, err := h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID})
	require.NoError(t, err)

	_, err = h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, "Event registration already exists", pkgerrors.UserMessage(err, ""))
	assert.Equal(t, 1, h.svc.Snapshot().Collection[0].RegisteredCount)
}

func TestRegisterRespectsCapacityAndStatus(t *testing.T) {
	h := newHarness(t)
	e := h.create(t, "Workshop", 1)
	_, err := h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID})
	require.NoError(t, err)

	_, err = h.svc.Register(as(sara), &RegisterInput{EventID: e.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, "This event is full", pkgerrors.UserMessage(err, ""))
	assert.True(t, h.svc.Snapshot().Collection[0].Full())

	cancelled := enums.EventStatusCancelled
	_, err = h.svc.Update(as(admin), e.ID, &EventPatch{Status: &cancelled})
	require.NoError(t, err)
	_, err = h.svc.Register(as(sara), &RegisterInput{EventID: e.ID})
	assert.Equal(t, "Registration is closed for this event", pkgerrors.UserMessage(err, ""))

	_, err = h.svc.Register(as(sara), &RegisterInput{EventID: "missing"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkAttendance(t *testing.T) {
	h := newHarness(t)
	e := h.create(t, "Halaqa", 0)
	first, err := h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID})
	require.NoError(t, err)
	second, err := h.svc.Register(as(sara), &RegisterInput{EventID: e.ID})
	require.NoError(t, err)
	_, err = h.store.Update(context.Background(), collectionRegistrations, second.ID, backend.Row{"status": "cancelled"})
	require.NoError(t, err)

	res, err := h.svc.MarkAttendance(as(admin), []string{first.ID, " " + second.ID + " ", ""})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, h.backend.Calls("call:"+procMark))

	snap := h.svc.Snapshot()
	got := snap.Collection[0]
	assert.Equal(t, 1, got.AttendedCount)
	assert.Equal(t, 1, got.CancelledCount)
	assert.Equal(t, 0, got.RegisteredCount)
	assert.Equal(t, 100, snap.Stats.AttendanceRate)

	last, ok := h.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "Marked 1 attended, skipped 1 cancelled", last.Message)
}

func TestMarkAttendanceNeedsSelection(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.MarkAttendance(as(admin), []string{" "})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.MarkAttendance(as(bilal), []string{"r-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, 0, h.backend.Total())
}

func TestCreateValidatesWindow(t *testing.T) {
	h := newHarness(t)
	ends := testNow
	_, err := h.svc.Create(as(admin), &EventInput{Title: "Backwards", StartsAt: testNow.Add(time.Hour), EndsAt: &ends})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.Create(as(admin), &EventInput{Title: "No start"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.Create(as(bilal), &EventInput{Title: "Members only", StartsAt: testNow.Add(time.Hour)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, 0, h.backend.Total())
}

func TestDeleteCascadesRegistrations(t *testing.T) {
	h := newHarness(t)
	e := h.create(t, "Bake sale", 0)
	_, err := h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID})
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(as(admin), e.ID))
	assert.Empty(t, h.svc.Snapshot().Collection)
	_, total, err := h.store.Query(context.Background(), collectionRegistrations, backend.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestJoinTierAndSeedFallback(t *testing.T) {
	h := newHarness(t)
	e := h.create(t, "Open house", 0)
	_, err := h.svc.Register(as(bilal), &RegisterInput{EventID: e.ID})
	require.NoError(t, err)
	h.backend.CallFn = func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
		return nil, backend.Errorf(backend.KindProcedureMissing, "call "+procedure, "missing")
	}

	require.NoError(t, h.svc.Refresh(context.Background()))
	snap := h.svc.Snapshot()
	assert.Equal(t, reconcile.TierJoin, snap.Tier)
	assert.False(t, snap.UsingFallbackData)
	require.Len(t, snap.Collection, 1)
	assert.Equal(t, e.ID, snap.Collection[0].ID)
	assert.Equal(t, 1, snap.Collection[0].RegisteredCount)
	assert.True(t, snap.Collection[0].StartsAt.Equal(testNow.Add(72*time.Hour)), "starts_at %s", snap.Collection[0].StartsAt)
	assert.True(t, snap.Collection[0].CreatedAt.Equal(testNow), "created_at %s", snap.Collection[0].CreatedAt)
	assert.Equal(t, 1, snap.Stats.Upcoming)
	assert.Equal(t, 1, snap.Stats.Registrations)

	h.backend.QueryFn = func(context.Context, string, backend.QuerySpec) ([]backend.Row, int, error) {
		return nil, 0, errors.New("network unreachable")
	}
	require.NoError(t, h.svc.Refresh(context.Background()))
	snap = h.svc.Snapshot()
	assert.Equal(t, reconcile.TierSeed, snap.Tier)
	assert.True(t, snap.UsingFallbackData)
	assert.Len(t, snap.Collection, len(DefaultSeed()))
}

func TestDeriveAttendance(t *testing.T) {
	empty := Derive(nil, testNow)
	assert.Equal(t, 0, empty.AttendanceRate)
	assert.Equal(t, 0, empty.ByStatus["ongoing"])

	stats := Derive([]Event{
		{Status: enums.EventStatusUpcoming, StartsAt: testNow.Add(time.Hour), RegisteredCount: 3},
		{Status: enums.EventStatusUpcoming, StartsAt: testNow.Add(-time.Hour), RegisteredCount: 1},
		{Status: enums.EventStatusCompleted, StartsAt: testNow.Add(-48 * time.Hour), AttendedCount: 4, CancelledCount: 2},
	}, testNow)
	assert.Equal(t, 1, stats.Upcoming)
	assert.Equal(t, 8, stats.Registrations)
	assert.Equal(t, 4, stats.Attended)
	assert.Equal(t, 50, stats.AttendanceRate)
}
