package messages

import (
	"context"
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
	admin  = &backend.User{ID: "admin-user", Email: "aisha@example.org", Role: enums.MemberRoleAdmin}
	member = &backend.User{ID: "member-user", Email: "bilal@example.org", Role: enums.MemberRoleMember}
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
	_, err := store.Insert(context.Background(), collectionMembers, backend.Row{
		"user_id": admin.ID, "full_name": "Aisha Rahman", "email": admin.Email, "role": "admin",
	})
	require.NoError(t, err)

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

func (h *harness) draft(t *testing.T, subject string, recipients ...string) *Message {
	t.Helper()
	msg, err := h.svc.Create(as(admin), &MessageInput{Subject: subject, Body: "Salaam everyone", Recipients: recipients})
	require.NoError(t, err)
	return msg
}

func TestCreateDraftWithRecipients(t *testing.T) {
	h := newHarness(t)
	msg := h.draft(t, " General meeting ", "A@example.org", "a@example.org ", "b@example.org")

	assert.Equal(t, "General meeting", msg.Subject)
	assert.Equal(t, enums.MessageStatusDraft, msg.Status)
	assert.Equal(t, "email", msg.Channel)
	assert.Equal(t, 2, msg.RecipientCount)
	assert.Equal(t, 2, h.backend.Calls("insert:"+collectionRecipients))

	snap := h.svc.Snapshot()
	require.Len(t, snap.Collection, 1)
	got := snap.Collection[0]
	assert.Equal(t, "Aisha Rahman", got.AuthorName)
	assert.Equal(t, 2, got.PendingCount)
	assert.Equal(t, 1, snap.Stats.ByStatus["draft"])
	assert.Equal(t, reconcile.TierProcedure, snap.Tier)
}

func TestCreateScheduledRequiresFutureTime(t *testing.T) {
	h := newHarness(t)
	past := testNow.Add(-time.Hour)
	_, err := h.svc.Create(as(admin), &MessageInput{Subject: "Late", Body: "x", ScheduledAt: &past})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 0, h.backend.Total())

	future := testNow.Add(48 * time.Hour)
	msg, err := h.svc.Create(as(admin), &MessageInput{Subject: "Iftar", Body: "Join us", ScheduledAt: &future})
	require.NoError(t, err)
	assert.Equal(t, enums.MessageStatusScheduled, msg.Status)
	assert.Equal(t, 1, h.svc.Snapshot().Stats.Scheduled)
}

func TestCreateRejectsBadRecipients(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(as(admin), &MessageInput{Subject: "Hi", Body: "x", Recipients: []string{"not-an-email"}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 0, h.backend.Total())
}

func TestSendDeliversAndLocksMessage(t *testing.T) {
	h := newHarness(t)
	msg := h.draft(t, "Welcome", "a@example.org", "b@example.org", "c@example.org")

	delivered, err := h.svc.Send(as(admin), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	snap := h.svc.Snapshot()
	got := snap.Collection[0]
	assert.Equal(t, enums.MessageStatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, 3, got.SentCount)
	assert.Equal(t, 0, got.PendingCount)
	assert.Equal(t, 100, snap.Stats.DeliveryRate)

	last, ok := h.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "Message delivered to 3 recipients", last.Message)

	_, err = h.svc.Send(as(admin), msg.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, "Message has already been sent", pkgerrors.UserMessage(err, ""))

	subject := "Edited"
	_, err = h.svc.Update(as(admin), msg.ID, &MessagePatch{Subject: &subject})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 0, h.backend.Calls("update:"+collectionMessages))
}

func TestSendWithoutRecipients(t *testing.T) {
	h := newHarness(t)
	msg := h.draft(t, "Empty")
	_, err := h.svc.Send(as(admin), msg.ID)
	require.Error(t, err)
	assert.Equal(t, "Message has no recipients", pkgerrors.UserMessage(err, ""))
	assert.Equal(t, enums.MessageStatusDraft, h.svc.Snapshot().Collection[0].Status)
}

func TestUpdateScheduleAndUnschedule(t *testing.T) {
	h := newHarness(t)
	msg := h.draft(t, "Reminder", "a@example.org")
	at := testNow.Add(24 * time.Hour)

	got, err := h.svc.Update(as(admin), msg.ID, &MessagePatch{ScheduledAt: &at})
	require.NoError(t, err)
	assert.Equal(t, enums.MessageStatusScheduled, got.Status)

	got, err = h.svc.Update(as(admin), msg.ID, &MessagePatch{Unschedule: true})
	require.NoError(t, err)
	assert.Equal(t, enums.MessageStatusDraft, got.Status)
	assert.Nil(t, got.ScheduledAt)

	_, err = h.svc.Update(as(admin), msg.ID, &MessagePatch{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeleteRemovesRecipients(t *testing.T) {
	h := newHarness(t)
	msg := h.draft(t, "Oops", "a@example.org")
	require.NoError(t, h.svc.Delete(as(admin), msg.ID))
	assert.Empty(t, h.svc.Snapshot().Collection)

	_, total, err := h.store.Query(context.Background(), collectionRecipients, backend.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestMembersCannotCompose(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(as(member), &MessageInput{Subject: "Hi", Body: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.svc.Send(as(member), "m-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.True(t, pkgerrors.IsCode(h.svc.Delete(as(member), "m-1"), pkgerrors.CodeForbidden))
	assert.Equal(t, 0, h.backend.Total())
}

func TestJoinTierCountsRecipients(t *testing.T) {
	h := newHarness(t)
	msg := h.draft(t, "Mixed", "a@example.org", "b@example.org")
	_, err := h.store.Insert(context.Background(), collectionRecipients, backend.Row{
		"message_id": msg.ID, "email": "c@example.org", "status": recipientFailed,
	})
	require.NoError(t, err)
	orphan, err := h.store.Insert(context.Background(), collectionMessages, backend.Row{
		"subject": "Imported", "body": "x", "status": "draft", "created_by": "ghost-user",
	})
	require.NoError(t, err)
	h.backend.CallFn = func(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
		return nil, backend.Errorf(backend.KindProcedureMissing, "call "+procedure, "missing")
	}

	require.NoError(t, h.svc.Refresh(context.Background()))
	snap := h.svc.Snapshot()
	assert.Equal(t, reconcile.TierJoin, snap.Tier)
	require.Len(t, snap.Collection, 2)
	byID := map[string]Message{}
	for _, m := range snap.Collection {
		byID[m.ID] = m
	}
	require.Contains(t, byID, msg.ID)
	require.Contains(t, byID, orphan.ID())
	assert.True(t, byID[msg.ID].CreatedAt.Equal(testNow), "created_at %s", byID[msg.ID].CreatedAt)
	assert.Equal(t, 3, byID[msg.ID].RecipientCount)
	assert.Equal(t, 1, byID[msg.ID].FailedCount)
	assert.Equal(t, 2, byID[msg.ID].PendingCount)
	assert.Equal(t, "Aisha Rahman", byID[msg.ID].AuthorName)
	assert.Equal(t, reconcile.Unknown, byID[orphan.ID()].AuthorName)
	assert.Equal(t, 0, snap.Stats.DeliveryRate)
}

func TestDeriveDeliveryRate(t *testing.T) {
	empty := Derive(nil, testNow)
	assert.Equal(t, 0, empty.DeliveryRate)
	assert.Equal(t, 0, empty.ByStatus["failed"])

	stats := Derive([]Message{
		{Status: enums.MessageStatusSent, RecipientCount: 10, SentCount: 9, FailedCount: 1},
		{Status: enums.MessageStatusSent, RecipientCount: 10, SentCount: 6, FailedCount: 0, PendingCount: 4},
	}, testNow)
	assert.Equal(t, 20, stats.Recipients)
	assert.Equal(t, 15, stats.Delivered)
	assert.Equal(t, 94, stats.DeliveryRate)
}
