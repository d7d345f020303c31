package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/reconcile"
	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/msa-portal/portal-backend/pkg/pagination"
)

// Resource is the name monitoring views are registered under.
const Resource = "system_logs"

// Service is the admin-only system monitoring view.
type Service interface {
	Refresh(ctx context.Context) error
	Snapshot() reconcile.Snapshot[LogEntry, Stats]
	Metrics() []Metric
	Filter(c reconcile.Criteria) []LogEntry
	SetQuery(q reconcile.Query)
	// StartAutoRefresh reloads the view every interval for as long as ctx
	// lives and its caller stays an admin.
	StartAutoRefresh(ctx context.Context) error
	StopAutoRefresh()
	AutoRefreshing() bool
	RecordLog(ctx context.Context, in *LogInput) (*LogEntry, error)
	Resolve(ctx context.Context, id string) error
	DeleteLog(ctx context.Context, id string) error
	ClearResolved(ctx context.Context, olderThan *time.Time) (int, error)
	Close()
}

type ServiceParams struct {
	Deps  reconcile.Deps
	Query reconcile.Query
	Seed  []LogEntry
	// SeedMetrics are served whenever Seed is.
	SeedMetrics []Metric
	Interval    time.Duration
	NewTicker   func(time.Duration) reconcile.Ticker
}

type service struct {
	backend     backend.Backend
	auth        reconcile.Authorizer
	mounted     *reconcile.Mounted[LogEntry, Stats]
	refresher   *reconcile.Refresher
	cache       *metricCache
	seedMetrics []Metric
}

// NewService mounts a monitoring view bound to ctx. The view pages the
// newest logs, DefaultRefreshLimit at a time unless Query says otherwise.
func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	deps := params.Deps
	if deps.Backend == nil {
		return nil, errors.New("backend required")
	}
	if deps.Authorizer == nil {
		auth, err := reconcile.NewRoleAuthorizer(deps.Backend)
		if err != nil {
			return nil, err
		}
		deps.Authorizer = auth
	}
	seed := params.Seed
	if seed == nil {
		seed = DefaultSeed()
	}
	seedMetrics := params.SeedMetrics
	if seedMetrics == nil {
		seedMetrics = DefaultMetrics()
	}
	query := params.Query
	if query.Page.Limit == 0 {
		query.Page = pagination.Params{Limit: reconcile.DefaultRefreshLimit, Offset: query.Page.Offset}
	}

	cache := &metricCache{}
	mounted, err := reconcile.Mount(ctx, deps, reconcile.MountSpec[LogEntry, Stats]{
		Resource:  Resource,
		Procedure: procedureTier(deps.Backend, cache),
		Join:      joinTier(deps.Backend, cache),
		Seed:      seed,
		Derive:    Derive,
		Fields:    fields,
		Query:     query,
		Export:    Export,
	})
	if err != nil {
		return nil, err
	}
	s := &service{
		backend:     deps.Backend,
		auth:        deps.Authorizer,
		mounted:     mounted,
		cache:       cache,
		seedMetrics: seedMetrics,
	}
	s.refresher, err = reconcile.NewRefresher(reconcile.RefresherParams{
		Resource: Resource,
		Target:   s,
		Interval: params.Interval,
		Authorized: func(ctx context.Context) bool {
			return reconcile.Allowed(ctx, s.auth, reconcile.AdminOnly)
		},
		NewTicker: params.NewTicker,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
	})
	if err != nil {
		mounted.Close()
		return nil, err
	}
	return s, nil
}

// Refresh reloads logs and metrics. Non-admin callers are refused before
// any backend call.
func (s *service) Refresh(ctx context.Context) error {
	if _, err := s.auth.Authorize(ctx, reconcile.AdminOnly); err != nil {
		return err
	}
	if err := s.mounted.View.Refresh(ctx); err != nil {
		return err
	}
	if s.mounted.View.Snapshot().Tier == reconcile.TierSeed {
		s.cache.set(s.seedMetrics)
	}
	return nil
}

func (s *service) Snapshot() reconcile.Snapshot[LogEntry, Stats] { return s.mounted.View.Snapshot() }

func (s *service) Metrics() []Metric { return s.cache.get() }

func (s *service) Filter(c reconcile.Criteria) []LogEntry { return s.mounted.View.Filter(c) }

func (s *service) SetQuery(q reconcile.Query) { s.mounted.View.SetQuery(q) }

func (s *service) StartAutoRefresh(ctx context.Context) error { return s.refresher.Start(ctx) }

func (s *service) StopAutoRefresh() { s.refresher.Stop() }

func (s *service) AutoRefreshing() bool { return s.refresher.Running() }

func (s *service) Close() {
	s.refresher.Stop()
	s.mounted.Close()
}

// LogInput records a log entry by hand.
type LogInput struct {
	Level   enums.LogLevel `json:"level" validate:"required,oneof=debug info warning error critical"`
	Source  string         `json:"source" validate:"required,max=80"`
	Message string         `json:"message" validate:"required,max=2000"`
}

func (in *LogInput) Normalize() {
	in.Level = enums.LogLevel(reconcile.Trim(string(in.Level)))
	in.Source = reconcile.Trim(in.Source)
	in.Message = reconcile.Trim(in.Message)
}

func (s *service) RecordLog(ctx context.Context, in *LogInput) (*LogEntry, error) {
	if in == nil {
		in = &LogInput{}
	}
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[*LogEntry]{
		Action:  "record",
		Subject: "System log",
		Require: reconcile.AdminOnly,
		Input:   in,
		Run: func(ctx context.Context, _ *backend.User) (*LogEntry, error) {
			out, err := s.backend.Insert(ctx, collectionLogs, backend.Row{
				"level":    string(in.Level),
				"source":   in.Source,
				"message":  in.Message,
				"resolved": false,
			})
			if err != nil {
				return nil, err
			}
			entry := logFromRow(out)
			return &entry, nil
		},
		Done: func(l *LogEntry) string { return fmt.Sprintf("Logged %s from %s", l.Level, l.Source) },
	})
}

func (s *service) Resolve(ctx context.Context, id string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "resolve",
		Subject:  "System log",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Optimistic: func() {
			target := reconcile.Trim(id)
			s.mounted.View.Patch(func(records []LogEntry) []LogEntry {
				for i := range records {
					if records[i].ID == target {
						records[i].Resolved = true
					}
				}
				return records
			})
		},
		Run: func(ctx context.Context, _ *backend.User) (struct{}, error) {
			_, err := s.backend.Update(ctx, collectionLogs, reconcile.Trim(id), backend.Row{"resolved": true})
			return struct{}{}, err
		},
		Done: func(struct{}) string { return "Log entry marked resolved" },
	})
	return err
}

func (s *service) DeleteLog(ctx context.Context, id string) error {
	_, err := reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[struct{}]{
		Action:   "delete",
		Subject:  "System log",
		Require:  reconcile.AdminOnly,
		Validate: func() error { return reconcile.RequireID("id", id) },
		Optimistic: func() {
			target := reconcile.Trim(id)
			s.mounted.View.Patch(func(records []LogEntry) []LogEntry {
				out := records[:0]
				for _, l := range records {
					if l.ID != target {
						out = append(out, l)
					}
				}
				return out
			})
		},
		Run: func(ctx context.Context, _ *backend.User) (struct{}, error) {
			return struct{}{}, s.backend.Delete(ctx, collectionLogs, reconcile.Trim(id))
		},
		Done: func(struct{}) string { return "Log entry deleted" },
	})
	return err
}

// ClearResolved purges resolved entries, optionally only those created
// before olderThan, and returns how many went.
func (s *service) ClearResolved(ctx context.Context, olderThan *time.Time) (int, error) {
	return reconcile.Execute(ctx, s.mounted.Orchestrator, reconcile.Mutation[int]{
		Action:  "clear",
		Subject: "Resolved logs",
		Require: reconcile.AdminOnly,
		Run: func(ctx context.Context, _ *backend.User) (int, error) {
			return Purge(ctx, s.backend, true, olderThan)
		},
		Done: func(n int) string {
			if n == 1 {
				return "Cleared 1 resolved log"
			}
			return fmt.Sprintf("Cleared %d resolved logs", n)
		},
	})
}

// Purge calls the purge procedure directly. Callers outside a view, such as
// the retention job, use it without an orchestrator.
func Purge(ctx context.Context, b backend.Backend, resolvedOnly bool, olderThan *time.Time) (int, error) {
	args := map[string]any{"resolved_only": resolvedOnly}
	if olderThan != nil {
		args["older_than"] = olderThan.UTC().Format(time.RFC3339Nano)
	}
	payload, err := b.Call(ctx, procPurge, args)
	if err != nil {
		return 0, err
	}
	if err := reconcile.CheckStatus(procPurge, payload); err != nil {
		return 0, err
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := payload.Decode(&out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}
