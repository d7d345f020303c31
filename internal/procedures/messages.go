package procedures

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var messageListing = listing{
	enums:  []string{"status", "channel", "audience"},
	search: []string{"subject", "body"},
}

const (
	recipientPending = "pending"
	recipientSent    = "sent"
	recipientFailed  = "failed"
)

func (p *set) messagesWithDelivery(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	messages, err := all(ctx, tx, "messages")
	if err != nil {
		return nil, err
	}
	recipients, err := all(ctx, tx, "message_recipients")
	if err != nil {
		return nil, err
	}
	members, err := all(ctx, tx, "members")
	if err != nil {
		return nil, err
	}
	authors := memberNames(members)
	counts := countBy(recipients, "message_id", "status")
	rows := make([]backend.Row, 0, len(messages))
	for _, m := range messages {
		c := counts[m.ID()]
		rows = append(rows, m.Merge(backend.Row{
			"author_name":     displayName(authors, m.String("created_by")),
			"recipient_count": c[recipientPending] + c[recipientSent] + c[recipientFailed],
			"sent_count":      c[recipientSent],
			"failed_count":    c[recipientFailed],
			"pending_count":   c[recipientPending],
		}))
	}
	return messageListing.envelope(rows, backend.Row(args)), nil
}

// sendMessage delivers a draft or scheduled message to its pending recipients.
func (p *set) sendMessage(ctx context.Context, tx *sqlstore.Tx, args map[string]any) (any, error) {
	a := backend.Row(args)
	msg, err := tx.Get(ctx, "messages", a.String("message_id"))
	if err != nil {
		return nil, err
	}
	status := msg.String("status")
	if status != string(enums.MessageStatusDraft) && status != string(enums.MessageStatusScheduled) {
		return rejected("Message has already been sent"), nil
	}
	recipients, err := all(ctx, tx, "message_recipients", backend.Eq("message_id", msg.ID()))
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return rejected("Message has no recipients"), nil
	}

	now := p.now().UTC()
	delivered := 0
	for _, r := range recipients {
		if r.String("status") != recipientPending {
			continue
		}
		if _, err := tx.Update(ctx, "message_recipients", r.ID(), backend.Row{
			"status":       recipientSent,
			"delivered_at": now,
		}); err != nil {
			return nil, err
		}
		delivered++
	}
	if _, err := tx.Update(ctx, "messages", msg.ID(), backend.Row{
		"status":  string(enums.MessageStatusSent),
		"sent_at": now,
	}); err != nil {
		return nil, err
	}
	return ok(map[string]any{"delivered": delivered}), nil
}
