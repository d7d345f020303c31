package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// TierName identifies which strategy produced a collection.
type TierName string

const (
	TierProcedure TierName = "procedure"
	TierJoin      TierName = "join"
	TierSeed      TierName = "seed"
	TierNone      TierName = "none"
)

// Fetcher is one data-source strategy. It reports failures through the
// Result instead of panicking or returning a bare error.
type Fetcher[T any] func(ctx context.Context, q Query) Result[T]

// SeedProvider supplies the static collection served when every live tier fails.
type SeedProvider[T any] interface {
	Seed(ctx context.Context) ([]T, error)
}

// SeedFunc adapts a function into a SeedProvider.
type SeedFunc[T any] func(ctx context.Context) ([]T, error)

func (f SeedFunc[T]) Seed(ctx context.Context) ([]T, error) {
	return f(ctx)
}

// StaticSeed serves a fixed dataset.
type StaticSeed[T any] []T

func (s StaticSeed[T]) Seed(context.Context) ([]T, error) {
	out := make([]T, len(s))
	copy(out, s)
	return out, nil
}

// Resolution is what the resolver hands to the store.
type Resolution[T any] struct {
	Page[T]
	Tier TierName
	// Query is the request the records answer.
	Query Query
	// UsingFallbackData is set only when the records came from the seed tier.
	UsingFallbackData bool
	// FailedTiers lists the tiers that were tried and failed, in order.
	FailedTiers []TierName
	// Err aggregates every tier failure. It is informational: the resolver
	// always returns a usable collection.
	Err error
}

// Whole reports whether the records are the entire unfiltered collection
// rather than a filtered or paged slice of it.
func (r Resolution[T]) Whole() bool {
	q := r.Query
	if q.Criteria.Active() || q.Page.Offset > 0 {
		return false
	}
	if q.Page.Limit <= 0 || len(r.Records) < q.Page.Limit {
		return true
	}
	return r.Total > 0 && len(r.Records) >= r.Total
}

// Degraded reports whether any preferred tier failed.
func (r Resolution[T]) Degraded() bool {
	return len(r.FailedTiers) > 0
}

// ResolverParams configure a Resolver.
type ResolverParams[T any] struct {
	Resource  string
	Procedure Fetcher[T]
	Join      Fetcher[T]
	Seed      SeedProvider[T]
	// Fields lets the seed tier honor the query criteria locally.
	Fields  Fields[T]
	Logger  *logger.Logger
	Metrics *metrics.ResourceMetrics
}

// Resolver walks the tiers from richest to most degraded.
type Resolver[T any] struct {
	resource  string
	procedure Fetcher[T]
	join      Fetcher[T]
	seed      SeedProvider[T]
	fields    Fields[T]
	logg      *logger.Logger
	metrics   *metrics.ResourceMetrics
}

// NewResolver builds a resolver. At least one tier is required.
func NewResolver[T any](params ResolverParams[T]) (*Resolver[T], error) {
	if params.Resource == "" {
		return nil, errors.New("resource name required")
	}
	if params.Procedure == nil && params.Join == nil && params.Seed == nil {
		return nil, fmt.Errorf("%s: at least one tier required", params.Resource)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver[T]{
		resource:  params.Resource,
		procedure: params.Procedure,
		join:      params.Join,
		seed:      params.Seed,
		fields:    params.Fields,
		logg:      logg,
		metrics:   params.Metrics,
	}, nil
}

// Resolve runs each tier at most once and stops at the first success.
// Cancellation of ctx ends the walk early with TierNone.
func (r *Resolver[T]) Resolve(ctx context.Context, q Query) Resolution[T] {
	ctx = r.logg.WithResource(ctx, r.resource)
	res := Resolution[T]{Query: q}

	live := []struct {
		name  TierName
		fetch Fetcher[T]
	}{
		{TierProcedure, r.procedure},
		{TierJoin, r.join},
	}
	for _, tier := range live {
		if tier.fetch == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r.abandon(res, err)
		}
		result := tier.fetch(ctx, q)
		if page, ok := result.Page(); ok {
			res.Page = page
			res.Tier = tier.name
			r.record(res)
			return res
		}
		failure := result.Failure()
		if failure.Kind == FailureCanceled {
			return r.abandon(res, failure)
		}
		r.fail(ctx, &res, tier.name, failure)
	}

	if r.seed != nil {
		if err := ctx.Err(); err != nil {
			return r.abandon(res, err)
		}
		records, err := r.seed.Seed(ctx)
		if err == nil {
			res.Page = r.seedPage(records, q)
			res.Tier = TierSeed
			res.UsingFallbackData = true
			r.logg.Warn(r.logg.WithField(ctx, "tier", string(TierSeed)), "serving seed data")
			r.record(res)
			return res
		}
		r.fail(ctx, &res, TierSeed, &Failure{Kind: FailureUnavailable, Cause: err})
	}

	res.Page = Page[T]{Records: []T{}}
	res.Tier = TierNone
	r.record(res)
	return res
}

func (r *Resolver[T]) fail(ctx context.Context, res *Resolution[T], tier TierName, failure *Failure) {
	res.FailedTiers = append(res.FailedTiers, tier)
	res.Err = multierr.Append(res.Err, fmt.Errorf("%s tier: %w", tier, failure))
	ctx = r.logg.WithFields(ctx, map[string]any{
		"tier":         string(tier),
		"failure_kind": string(failure.Kind),
	})
	r.logg.WarnErr(ctx, "tier failed; falling back", failure)
}

func (r *Resolver[T]) abandon(res Resolution[T], err error) Resolution[T] {
	res.Tier = TierNone
	res.Page = Page[T]{Records: []T{}}
	res.Err = multierr.Append(res.Err, err)
	return res
}

func (r *Resolver[T]) seedPage(records []T, q Query) Page[T] {
	return LocalPage(records, q, r.fields)
}

func (r *Resolver[T]) record(res Resolution[T]) {
	r.metrics.IncResolution(r.resource, string(res.Tier))
	r.metrics.SetFallback(r.resource, res.UsingFallbackData)
}
