package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

// Resource is the name communications views are registered under.
const Resource = "messages"

// Service is the communications outbox.
type Service interface {
	Refresh(ctx context.Context) error
	Snapshot() reconcile.Snapshot[Message, Stats]
	Filter(c reconcile.Criteria) []Message
	SetQuery(q reconcile.Query)
	Create(ctx context.Context, in *MessageInput) (*Message, error)
	Update(ctx context.Context, id string, in *MessagePatch) (*Message, error)
	Delete(ctx context.Context, id string) error
	// Send delivers the message to its pending recipients and returns how
	// many were delivered.
	Send(ctx context.Context, id string) (int, error)
	Close()
}

type ServiceParams struct {
	Deps  reconcile.Deps
	Query reconcile.Query
	Seed  []Message
}

type service struct {
	backend backend.Backend
	mounted *reconcile.Mounted[Message, Stats]
	now     func() time.Time
}

// NewService mounts a communications view bound to ctx.
func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	if params.Deps.Backend == nil {
		return nil, errors.New("backend required")
	}
	seed := params.Seed
	if seed == nil {
		seed = DefaultSeed()
	}
	now := params.Deps.Now
	if now == nil {
		now = time.Now
	}
	mounted, err := reconcile.Mount(ctx, params.Deps, reconcile.MountSpec[Message, Stats]{
		Resource:  Resource,
		Procedure: procedureTier(params.Deps.Backend),
		Join:      joinTier(params.Deps.Backend),
		Seed:      seed,
		Derive:    Derive,
		Fields:    fields,
		Query:     params.Query,
		Export:    Export,
	})
	if err != nil {
		return nil, err
	}
	return &service{backend: params.Deps.Backend, mounted: mounted, now: now}, nil
}

func (s *service) Refresh(ctx context.Context) error { return s.mounted.View.Refresh(ctx) }

func (s *service) Snapshot() reconcile.Snapshot[Message, Stats] { return s.mounted.View.Snapshot() }

func (s *service) Filter(c reconcile.Criteria) []Message { return s.mounted.View.Filter(c) }

func (s *service) SetQuery(q reconcile.Query) { s.mounted.View.SetQuery(q) }

func (s *service) Close() { s.mounted.Close() }

// MessageInput composes a message. A ScheduledAt makes it scheduled instead
// of a draft.
type MessageInput struct {
	Subject     string     `json:"subject" validate:"required,max=200"`
	Body        string     `json:"body" validate:"required,max=10000"`
	Channel     string     `json:"channel" validate:"omitempty,oneof=email sms announcement"`
	Audience    string     `json:"audience" validate:"omitempty,max=60"`
	Recipients  []string   `json:"recipients" validate:"omitempty,max=5000,dive,email"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

func (in *MessageInput) Normalize() {
	in.Subject = reconcile.Trim(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	in.Channel = strings.ToLower(reconcile.Trim(in.Channel))
	if in.Channel == "" {
		in.Channel = "email"
	}
	in.Audience = strings.ToLower(reconcile.Trim(in.Audience))
	if in.Audience == "" {
		in.Audience = "all"
	}
	in.Recipients = uniqueEmails(in.Recipients)
}

func uniqueEmails(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		email := reconcile.NormalizeEmail(raw)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

func (s *service) checkSchedule(at *time.Time) error {
	if at != nil && !at.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "scheduled_at must be in the future").
			WithDetails(map[string]string{"scheduled_at": "must be in the future"})
	}
	return nil
}

func (s *service) Create(ctx context.Context, in *MessageInput) (*Message, error) {
	if in == nil {
		in = &MessageInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Message]{
		Action:   "create",
		Subject:  "Message",
		Require:  reconcile.AdminOnly,
		Input:    in,
		Validate: func() error { return s.checkSchedule(in.ScheduledAt) },
		Run: func(ctx context.Context, actor *backend.User) (*Message, error) {
			status := enums.MessageStatusDraft
			row := backend.Row{
				"subject":    in.Subject,
				"body":       in.Body,
				"channel":    in.Channel,
				"audience":   in.Audience,
				"created_by": actor.ID,
			}
			if in.ScheduledAt != nil {
				status = enums.MessageStatusScheduled
				row["scheduled_at"] = in.ScheduledAt.UTC()
			}
			row["status"] = string(status)
			out, err := s.backend.Insert(ctx, collectionMessages, row)
			if err != nil {
				return nil, err
			}
			msg := fromRow(out)
			for _, email := range in.Recipients {
				if _, err := s.backend.Insert(ctx, collectionRecipients, backend.Row{
					"message_id": msg.ID,
					"email":      email,
					"status":     recipientPending,
				}); err != nil {
					if cleanup := s.backend.Delete(ctx, collectionMessages, msg.ID); cleanup != nil {
						err = errors.Join(err, cleanup)
					}
					return nil, err
				}
			}
			msg.RecipientCount = len(in.Recipients)
			msg.PendingCount = len(in.Recipients)
			return &msg, nil
		},
		Done: func(m *Message) string {
			if m.Status == enums.MessageStatusScheduled {
				return fmt.Sprintf("%q scheduled for %s", m.Subject, m.ScheduledAt.Format(time.RFC1123))
			}
			return fmt.Sprintf("%q saved as draft", m.Subject)
		},
	})
}

// MessagePatch edits a message that has not gone out yet.
type MessagePatch struct {
	Subject     *string    `json:"subject,omitempty" validate:"omitempty,min=1,max=200"`
	Body        *string    `json:"body,omitempty" validate:"omitempty,min=1,max=10000"`
	Audience    *string    `json:"audience,omitempty" validate:"omitempty,max=60"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	// Unschedule turns a scheduled message back into a draft.
	Unschedule bool `json:"unschedule,omitempty"`
}

func (in *MessagePatch) Normalize() {
	in.Subject = reconcile.TrimPtr(in.Subject)
	in.Body = reconcile.TrimPtr(in.Body)
	if in.Audience != nil {
		v := strings.ToLower(reconcile.Trim(*in.Audience))
		in.Audience = &v
	}
}

func (in *MessagePatch) row() backend.Row {
	row := backend.Row{}
	if in.Subject != nil {
		row["subject"] = *in.Subject
	}
	if in.Body != nil {
		row["body"] = *in.Body
	}
	if in.Audience != nil {
		row["audience"] = *in.Audience
	}
	switch {
	case in.Unschedule:
		row["scheduled_at"] = nil
		row["status"] = string(enums.MessageStatusDraft)
	case in.ScheduledAt != nil:
		row["scheduled_at"] = in.ScheduledAt.UTC()
		row["status"] = string(enums.MessageStatusScheduled)
	}
	return row
}

func (s *service) Update(ctx context.Context, id string, in *MessagePatch) (*Message, error) {
	if in == nil {
		in = &MessagePatch{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*Message]{
		Action:  "update",
		Subject: "Message",
		Require: reconcile.AdminOnly,
		Input:   in,
		Validate: func() error {
			if err := reconcile.RequireID("id", id); err != nil {
				return err
			}
			if in.Unschedule && in.ScheduledAt != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "scheduled_at and unschedule are mutually exclusive")
			}
			if len(in.row()) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
			}
			return s.checkSchedule(in.ScheduledAt)
		},
		Run: func(ctx context.Context, _ *backend.User) (*Message, error) {
			target := reconcile.Trim(id)
			current, err := s.load(ctx, target)
			if err != nil {
				return nil, err
			}
			if !current.Editable() {
				return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "A %s message can no longer be edited", current.Status)
			}
			out, err := s.backend.Update(ctx, collectionMessages, target, in.row())
			if err != nil {
				return nil, err
			}
			m := fromRow(out)
			return &m, nil
		},
		Done: func(m *Message) string { return fmt.Sprintf("%q was updated", m.Subject) },
	})
}

func (s *service) load(ctx context.Context, id string) (Message, error) {
	rows, _, err := s.backend.Query(ctx, collectionMessages, backend.QuerySpec{
		Filters: []backend.Filter{backend.Eq(backend.FieldID, id)},
		Limit:   1,
	})
	if err != nil {
		return Message{}, err
	}
	if len(rows) == 0 {
		return Message{}, pkgerrors.New(pkgerrors.CodeNotFound, "Message not found")
	}
	return fromRow(rows[0]), nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "delete",
		Subject:  "Message",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Optimistic: func() {
			target := reconcile.Trim(id)
			s.mounted.View.Patch(func(records []Message) []Message {
				out := records[:0]
				for _, m := range records {
					if m.ID != target {
						out = append(out, m)
					}
				}
				return out
			})
		},
		Run: func(ctx context.Context, _ *backend.User) (struct{}, error) {
			return struct{}{}, s.backend.Delete(ctx, collectionMessages, reconcile.Trim(id))
		},
		Done: func(struct{}) string { return "Message deleted" },
	})
	return err
}

func (s *service) Send(ctx context.Context, id string) (int, error) {
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[int]{
		Action:   "send",
		Subject:  "Message",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Run: func(ctx context.Context, actor *backend.User) (int, error) {
			payload, err := s.backend.Call(ctx, procSend, map[string]any{
				"message_id": reconcile.Trim(id),
				"actor_id":   actor.ID,
			})
			if err != nil {
				return 0, err
			}
			if err := reconcile.CheckStatus(procSend, payload); err != nil {
				return 0, err
			}
			var out struct {
				Delivered int `json:"delivered"`
			}
			if err := payload.Decode(&out); err != nil {
				return 0, err
			}
			return out.Delivered, nil
		},
		Done: func(n int) string {
			if n == 1 {
				return "Message delivered to 1 recipient"
			}
			return fmt.Sprintf("Message delivered to %d recipients", n)
		},
	})
}
