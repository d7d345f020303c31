package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/msa-portal/portal-backend/pkg/logger"
)

const defaultSnapshotTTL = 24 * time.Hour

// SnapshotStore is the key/value surface used to keep the last good
// collection of a resource.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// SnapshotSeed serves the last collection a live tier produced and falls
// back to a static seed when no snapshot exists.
type SnapshotSeed[T any] struct {
	store    SnapshotStore
	key      string
	ttl      time.Duration
	fallback SeedProvider[T]
	logg     *logger.Logger
}

// NewSnapshotSeed builds a snapshot-backed seed provider.
func NewSnapshotSeed[T any](store SnapshotStore, key string, ttl time.Duration, fallback SeedProvider[T], logg *logger.Logger) (*SnapshotSeed[T], error) {
	if store == nil {
		return nil, errors.New("snapshot store required")
	}
	if key == "" {
		return nil, errors.New("snapshot key required")
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &SnapshotSeed[T]{store: store, key: key, ttl: ttl, fallback: fallback, logg: logg}, nil
}

func (s *SnapshotSeed[T]) Seed(ctx context.Context) ([]T, error) {
	raw, err := s.store.Get(ctx, s.key)
	if err == nil && raw != "" {
		var records []T
		decodeErr := json.Unmarshal([]byte(raw), &records)
		if decodeErr == nil {
			return records, nil
		}
		s.logg.WarnErr(ctx, "discarding unreadable snapshot", decodeErr)
	}
	if s.fallback == nil {
		if err == nil {
			err = errors.New("empty snapshot")
		}
		return nil, err
	}
	return s.fallback.Seed(ctx)
}

// Save stores records as the latest snapshot.
func (s *SnapshotSeed[T]) Save(ctx context.Context, records []T) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.key, string(data), s.ttl)
}

// Remember returns a hook for ViewParams.OnApplied that snapshots live
// resolutions covering the whole collection. Filtered or paged reloads are
// skipped so the fallback never narrows to one caller's view.
func (s *SnapshotSeed[T]) Remember() func(ctx context.Context, res Resolution[T]) {
	return func(ctx context.Context, res Resolution[T]) {
		if res.Tier != TierProcedure && res.Tier != TierJoin {
			return
		}
		if !res.Whole() {
			s.logg.Debug(ctx, "skipping snapshot of partial collection")
			return
		}
		if err := s.Save(ctx, res.Records); err != nil {
			s.logg.WarnErr(ctx, "failed to save snapshot", err)
		}
	}
}
