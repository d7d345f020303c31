// Package procedures implements the server-side routines the portal calls
// through backend.Call when it runs against the SQL backend. Each routine
// runs inside one transaction.
package procedures

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
)

// Registrar is the part of the SQL backend procedures are installed on.
type Registrar interface {
	Register(name string, proc sqlstore.Procedure)
}

// Register installs every portal procedure. now stamps decision and delivery
// times; nil means time.Now.
func Register(r Registrar, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	p := &set{now: now}
	r.Register("get_members_overview", p.membersOverview)
	r.Register("approve_member_request", p.approveMemberRequest)
	r.Register("reject_member_request", p.rejectMemberRequest)
	r.Register("get_volunteer_board", p.volunteerBoard)
	r.Register("approve_volunteer_application", p.approveVolunteerApplication)
	r.Register("reject_volunteer_application", p.rejectVolunteerApplication)
	r.Register("get_system_health", p.systemHealth)
	r.Register("purge_system_logs", p.purgeSystemLogs)
	r.Register("get_messages_with_delivery", p.messagesWithDelivery)
	r.Register("send_message", p.sendMessage)
	r.Register("get_events_with_attendance", p.eventsWithAttendance)
	r.Register("mark_event_attendance", p.markEventAttendance)
}

type set struct {
	now func() time.Time
}

func ok(extra map[string]any) map[string]any {
	out := map[string]any{"success": true}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func rejected(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

// listing narrows rows the way collection procedures do: exact match on the
// enum args that are present, substring search over text columns, newest
// first, then limit/offset.
type listing struct {
	enums  []string
	search []string
}

func (l listing) envelope(rows []backend.Row, args backend.Row) map[string]any {
	needle := strings.ToLower(strings.TrimSpace(args.String("search")))
	out := make([]backend.Row, 0, len(rows))
	for _, row := range rows {
		if !l.matches(row, args, needle) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time(backend.FieldCreatedAt).After(out[j].Time(backend.FieldCreatedAt))
	})
	total := len(out)
	offset := args.Int("offset")
	if offset > len(out) {
		offset = len(out)
	}
	if offset > 0 {
		out = out[offset:]
	}
	if limit := args.Int("limit"); limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return map[string]any{"records": out, "total": total}
}

func (l listing) matches(row, args backend.Row, needle string) bool {
	for _, field := range l.enums {
		want := strings.TrimSpace(args.String(field))
		if want == "" || want == "all" {
			continue
		}
		if row.String(field) != want {
			return false
		}
	}
	if needle == "" {
		return true
	}
	for _, field := range l.search {
		if strings.Contains(strings.ToLower(row.String(field)), needle) {
			return true
		}
	}
	return false
}

func all(ctx context.Context, tx *sqlstore.Tx, collection string, filters ...backend.Filter) ([]backend.Row, error) {
	rows, _, err := tx.Query(ctx, collection, backend.QuerySpec{Filters: filters})
	return rows, err
}

func countBy(rows []backend.Row, key, field string) map[string]map[string]int {
	out := map[string]map[string]int{}
	for _, row := range rows {
		k := row.String(key)
		if out[k] == nil {
			out[k] = map[string]int{}
		}
		out[k][row.String(field)]++
	}
	return out
}
