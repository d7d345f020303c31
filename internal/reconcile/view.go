package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

// ErrClosed is returned by operations on a view after Close.
var ErrClosed = errors.New("view closed")

// ViewParams configure a View.
type ViewParams[T any, S any] struct {
	Resource string
	Resolver *Resolver[T]
	Derive   Deriver[T, S]
	Fields   Fields[T]
	Query    Query
	Now      func() time.Time
	Logger   *logger.Logger
	Metrics  *metrics.ResourceMetrics
	// Export flattens statistics into gauges; nil disables stat export.
	Export func(S) map[string]float64
	// Sink hears about reloads where every tier, seed included, failed.
	Sink notifications.Sink
	// OnApplied runs after a reload has been applied to the store.
	OnApplied func(ctx context.Context, res Resolution[T])
}

// View is the per-consumer handle on one resource: it owns a store, knows
// how to reload it, and is bound to a lifetime context.
type View[T any, S any] struct {
	resource string
	resolver *Resolver[T]
	store    *Store[T, S]
	fields   Fields[T]
	logg     *logger.Logger
	metrics  *metrics.ResourceMetrics
	export   func(S) map[string]float64
	sink     notifications.Sink
	applied  func(ctx context.Context, res Resolution[T])

	lifetime context.Context
	cancel   context.CancelFunc

	mu    sync.RWMutex
	query Query
}

// NewView binds a view to parent. Canceling parent has the same effect as Close.
func NewView[T any, S any](parent context.Context, params ViewParams[T, S]) (*View[T, S], error) {
	if params.Resource == "" {
		return nil, errors.New("resource name required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("%s: resolver required", params.Resource)
	}
	if params.Derive == nil {
		return nil, fmt.Errorf("%s: stats deriver required", params.Resource)
	}
	if parent == nil {
		parent = context.Background()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	sink := params.Sink
	if sink == nil {
		sink = notifications.Fanout{}
	}
	lifetime, cancel := context.WithCancel(parent)
	return &View[T, S]{
		resource: params.Resource,
		resolver: params.Resolver,
		store:    NewStore(params.Derive, params.Now),
		fields:   params.Fields,
		logg:     logg,
		metrics:  params.Metrics,
		export:   params.Export,
		sink:     sink,
		applied:  params.OnApplied,
		lifetime: lifetime,
		cancel:   cancel,
		query:    params.Query,
	}, nil
}

// Resource returns the resource name.
func (v *View[T, S]) Resource() string {
	return v.resource
}

// Query returns the parameters the next reload will use.
func (v *View[T, S]) Query() Query {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.query
}

// SetQuery replaces the reload parameters. It does not reload.
func (v *View[T, S]) SetQuery(q Query) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = q
}

// Refresh reloads the collection through the resolver. Only the newest
// reload is applied, and nothing is applied once the view is closed.
func (v *View[T, S]) Refresh(ctx context.Context) error {
	if v.lifetime.Err() != nil {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = v.logg.WithResource(ctx, v.resource)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.lifetime, cancel)
	defer stop()

	gen := v.store.Begin()
	start := time.Now()
	res := v.resolver.Resolve(fetchCtx, v.Query())
	v.metrics.ObserveRefresh(v.resource, time.Since(start))

	if v.lifetime.Err() != nil {
		v.store.Abandon(gen)
		return ErrClosed
	}
	if res.Tier == TierNone && fetchCtx.Err() != nil {
		v.store.Abandon(gen)
		return fetchCtx.Err()
	}

	errMsg := ""
	if res.Tier == TierNone {
		errMsg = fmt.Sprintf("Unable to load %s", v.resource)
		v.metrics.IncRefreshFailure(v.resource)
		v.logg.Error(ctx, "every tier failed", res.Err)
	}
	if !v.store.Commit(gen, res, errMsg) {
		v.logg.Debug(v.logg.WithField(ctx, "generation", gen), "discarded stale reload")
		return nil
	}
	if errMsg != "" {
		v.sink.Notify(ctx, notifications.Failure("Refresh failed", errMsg))
	}
	if v.export != nil {
		v.metrics.SetStats(v.resource, v.export(v.store.Stats()))
	}
	if v.applied != nil {
		v.applied(ctx, res)
	}
	return nil
}

// Snapshot returns the current collection, statistics and flags.
func (v *View[T, S]) Snapshot() Snapshot[T, S] {
	return v.store.Snapshot()
}

// Collection returns a copy of the current records.
func (v *View[T, S]) Collection() []T {
	return v.store.Records()
}

// Stats returns the statistics of the current records.
func (v *View[T, S]) Stats() S {
	return v.store.Stats()
}

// Filter narrows the current records without changing them.
func (v *View[T, S]) Filter(c Criteria) []T {
	return Filter(v.store.Records(), c, v.fields)
}

// Patch edits the local collection; used by optimistic mutations.
func (v *View[T, S]) Patch(fn func([]T) []T) {
	if v.lifetime.Err() != nil {
		return
	}
	v.store.Patch(fn)
}

// Context is the view's lifetime.
func (v *View[T, S]) Context() context.Context {
	return v.lifetime
}

// Close ends the view's lifetime, canceling in-flight reloads.
func (v *View[T, S]) Close() {
	v.cancel()
}
