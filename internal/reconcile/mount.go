package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/notifications"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

// Deps are the collaborators shared by every feature-area service.
type Deps struct {
	Backend    backend.Backend
	Authorizer Authorizer
	Sink       notifications.Sink
	Logger     *logger.Logger
	Metrics    *metrics.ResourceMetrics
	// Snapshots, when set, keeps the last live collection of each resource so
	// the seed tier can serve it before falling back to static data.
	Snapshots   SnapshotStore
	SnapshotTTL time.Duration
	// KeyFor names the snapshot key of a resource.
	KeyFor     func(resource string) string
	Optimistic bool
	Now        func() time.Time
}

func (d Deps) validate() error {
	if d.Backend == nil {
		return errors.New("backend required")
	}
	return nil
}

// MountSpec describes one resource view.
type MountSpec[T any, S any] struct {
	Resource  string
	Procedure Fetcher[T]
	Join      Fetcher[T]
	Seed      []T
	Derive    Deriver[T, S]
	Fields    Fields[T]
	Query     Query
	Export    func(S) map[string]float64
}

// Mounted is a view together with the orchestrator that mutates it.
type Mounted[T any, S any] struct {
	View         *View[T, S]
	Orchestrator *Orchestrator
}

// Mount wires resolver, view and orchestrator for one resource, bound to ctx.
func Mount[T any, S any](ctx context.Context, deps Deps, spec MountSpec[T, S]) (*Mounted[T, S], error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Resource, err)
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	var seed SeedProvider[T] = StaticSeed[T](spec.Seed)
	var onApplied func(context.Context, Resolution[T])
	if deps.Snapshots != nil {
		key := spec.Resource
		if deps.KeyFor != nil {
			key = deps.KeyFor(spec.Resource)
		}
		snap, err := NewSnapshotSeed[T](deps.Snapshots, key, deps.SnapshotTTL, seed, logg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Resource, err)
		}
		seed = snap
		onApplied = snap.Remember()
	}

	resolver, err := NewResolver(ResolverParams[T]{
		Resource:  spec.Resource,
		Procedure: spec.Procedure,
		Join:      spec.Join,
		Seed:      seed,
		Fields:    spec.Fields,
		Logger:    logg,
		Metrics:   deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	view, err := NewView(ctx, ViewParams[T, S]{
		Resource:  spec.Resource,
		Resolver:  resolver,
		Derive:    spec.Derive,
		Fields:    spec.Fields,
		Query:     spec.Query,
		Now:       deps.Now,
		Logger:    logg,
		Metrics:   deps.Metrics,
		Export:    spec.Export,
		Sink:      deps.Sink,
		OnApplied: onApplied,
	})
	if err != nil {
		return nil, err
	}

	auth := deps.Authorizer
	if auth == nil {
		auth, err = NewRoleAuthorizer(deps.Backend)
		if err != nil {
			view.Close()
			return nil, err
		}
	}
	orch, err := NewOrchestrator(OrchestratorParams{
		Resource:   spec.Resource,
		Authorizer: auth,
		Reloader:   view,
		Sink:       deps.Sink,
		Logger:     logg,
		Optimistic: deps.Optimistic,
		Now:        deps.Now,
	})
	if err != nil {
		view.Close()
		return nil, err
	}
	return &Mounted[T, S]{View: view, Orchestrator: orch}, nil
}

// Close ends the view's lifetime and waits for background reloads.
func (m *Mounted[T, S]) Close() {
	m.View.Close()
	m.Orchestrator.Wait()
}
