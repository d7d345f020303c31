package messages

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
)

func procedureTier(b backend.Backend) reconcile.Fetcher[Message] {
	return reconcile.ProcedureFetcher(b, procDelivery, reconcile.QueryArgs, fromRow)
}

// joinTier pages messages, then counts recipients by status and resolves
// author names for that page only.
func joinTier(b backend.Backend) reconcile.Fetcher[Message] {
	return func(ctx context.Context, q reconcile.Query) reconcile.Result[Message] {
		rows, total, err := b.Query(ctx, collectionMessages, reconcile.QuerySpecFor(q, columns, "subject"))
		if err != nil {
			return reconcile.FromError[Message](err)
		}
		if len(rows) == 0 {
			return reconcile.Ok([]Message{}, total)
		}
		ids := make([]any, 0, len(rows))
		authorIDs := make([]any, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID())
			if id := r.String("created_by"); id != "" {
				authorIDs = append(authorIDs, id)
			}
		}
		recipients, _, err := b.Query(ctx, collectionRecipients, backend.QuerySpec{
			Filters: []backend.Filter{backend.In("message_id", ids...)},
		})
		if err != nil {
			return reconcile.FromError[Message](err)
		}
		var authors []backend.Row
		if len(authorIDs) > 0 {
			authors, _, err = b.Query(ctx, collectionMembers, backend.QuerySpec{
				Filters: []backend.Filter{backend.In("user_id", authorIDs...)},
			})
			if err != nil {
				return reconcile.FromError[Message](err)
			}
		}

		byMessage := reconcile.IndexBy(recipients, "message_id")
		byUser := reconcile.IndexBy(authors, "user_id")
		out := make([]Message, 0, len(rows))
		for _, r := range rows {
			m := fromRow(r)
			m.AuthorName = reconcile.Lookup(byUser, r.String("created_by"), "full_name")
			for _, rec := range byMessage[m.ID] {
				switch rec.String("status") {
				case recipientSent:
					m.SentCount++
				case recipientFailed:
					m.FailedCount++
				default:
					m.PendingCount++
				}
			}
			m.RecipientCount = len(byMessage[m.ID])
			out = append(out, m)
		}
		return reconcile.Ok(out, total)
	}
}
