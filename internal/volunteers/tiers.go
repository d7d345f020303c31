package volunteers

import (
	"context"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
)

var taskColumns = map[string]string{
	"status":   "status",
	"category": "category",
}

func procedureTier(b backend.Backend) reconcile.Fetcher[Task] {
	return reconcile.ProcedureFetcher(b, procBoard, reconcile.QueryArgs, taskFromRow)
}

// joinTier pages the tasks collection, then attaches the applications of the
// page and recomputes the slot counters.
func joinTier(b backend.Backend) reconcile.Fetcher[Task] {
	return func(ctx context.Context, q reconcile.Query) reconcile.Result[Task] {
		taskRows, total, err := b.Query(ctx, collectionTasks, reconcile.QuerySpecFor(q, taskColumns, "title"))
		if err != nil {
			return reconcile.FromError[Task](err)
		}
		if len(taskRows) == 0 {
			return reconcile.Ok([]Task{}, total)
		}
		ids := make([]any, 0, len(taskRows))
		for _, r := range taskRows {
			ids = append(ids, r.ID())
		}
		appRows, _, err := b.Query(ctx, collectionApplications, backend.QuerySpec{
			Filters: []backend.Filter{backend.In("task_id", ids...)},
			Order:   []backend.Order{{Field: backend.FieldCreatedAt}},
		})
		if err != nil {
			return reconcile.FromError[Task](err)
		}
		byTask := reconcile.IndexBy(appRows, "task_id")

		tasks := make([]Task, 0, len(taskRows))
		for _, r := range taskRows {
			t := taskFromRow(r)
			t.Applications = reconcile.MapRows(byTask[t.ID], applicationFromRow)
			t.FilledSlots, t.PendingApplications = 0, 0
			for _, app := range t.Applications {
				switch app.Status {
				case enums.ApplicationStatusApproved:
					t.FilledSlots++
				case enums.ApplicationStatusPending:
					t.PendingApplications++
				}
			}
			tasks = append(tasks, t)
		}
		return reconcile.Ok(tasks, total)
	}
}
