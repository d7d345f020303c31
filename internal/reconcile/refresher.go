package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultRefreshLimit    = 100
)

// Ticker is the slice of time.Ticker the refresher needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// NewTicker returns a Ticker backed by time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// RefresherParams configure a Refresher.
type RefresherParams struct {
	Resource string
	Target   Reloader
	Interval time.Duration
	// Authorized is checked before every cycle; a false result stops the loop.
	Authorized func(ctx context.Context) bool
	NewTicker  func(time.Duration) Ticker
	Logger     *logger.Logger
	Metrics    *metrics.ResourceMetrics
}

// Refresher reloads a view on a fixed interval for as long as its context
// lives and the caller stays authorized.
type Refresher struct {
	resource   string
	target     Reloader
	interval   time.Duration
	authorized func(ctx context.Context) bool
	newTicker  func(time.Duration) Ticker
	logg       *logger.Logger
	metrics    *metrics.ResourceMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher builds a refresher; it does nothing until Start.
func NewRefresher(params RefresherParams) (*Refresher, error) {
	if params.Target == nil {
		return nil, errors.New("refresh target required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	newTicker := params.NewTicker
	if newTicker == nil {
		newTicker = NewTicker
	}
	authorized := params.Authorized
	if authorized == nil {
		authorized = func(context.Context) bool { return true }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Refresher{
		resource:   params.Resource,
		target:     params.Target,
		interval:   interval,
		authorized: authorized,
		newTicker:  newTicker,
		logg:       logg,
		metrics:    params.Metrics,
	}, nil
}

// Start launches the refresh loop bound to ctx. Calling Start on a running
// refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
			r.cancel()
		default:
			return nil
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.authorized(ctx) {
		return fmt.Errorf("%s: not authorized to refresh", r.resource)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ticker := r.newTicker(r.interval)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	go r.loop(loopCtx, ticker, done)
	return nil
}

// Stop tears the loop down and waits for it to exit. After Stop returns no
// further reloads happen.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (r *Refresher) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	ctx = r.logg.WithFields(ctx, map[string]any{
		"resource": r.resource,
		"event":    "auto_refresh",
	})
	r.logg.Debug(ctx, "auto refresh started")

	for {
		select {
		case <-ctx.Done():
			r.logg.Debug(ctx, "auto refresh stopped")
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			if !r.authorized(ctx) {
				r.logg.Warn(ctx, "auto refresh stopped: caller no longer authorized")
				return
			}
			if err := r.target.Refresh(ctx); err != nil {
				if errors.Is(err, ErrClosed) || ctx.Err() != nil {
					return
				}
				r.metrics.IncRefreshFailure(r.resource)
				r.logg.Error(ctx, "auto refresh failed", err)
			}
		}
	}
}
