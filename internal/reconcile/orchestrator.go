package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/internal/notifications"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

// Reloader re-runs the read path of a resource.
type Reloader interface {
	Refresh(ctx context.Context) error
}

// OrchestratorParams configure an Orchestrator.
type OrchestratorParams struct {
	Resource   string
	Authorizer Authorizer
	Reloader   Reloader
	Sink       notifications.Sink
	Logger     *logger.Logger
	// Optimistic applies local patches before the remote call and reconciles
	// with a background reload.
	Optimistic bool
	Now        func() time.Time
}

// Orchestrator runs authorized, validated mutations and converges the
// owning view afterwards.
type Orchestrator struct {
	resource   string
	auth       Authorizer
	reloader   Reloader
	sink       notifications.Sink
	logg       *logger.Logger
	optimistic bool
	now        func() time.Time

	background sync.WaitGroup
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.Resource == "" {
		return nil, errors.New("resource name required")
	}
	if params.Authorizer == nil {
		return nil, fmt.Errorf("%s: authorizer required", params.Resource)
	}
	if params.Reloader == nil {
		return nil, fmt.Errorf("%s: reloader required", params.Resource)
	}
	sink := params.Sink
	if sink == nil {
		sink = notifications.Fanout{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		resource:   params.Resource,
		auth:       params.Authorizer,
		reloader:   params.Reloader,
		sink:       sink,
		logg:       logg,
		optimistic: params.Optimistic,
		now:        now,
	}, nil
}

// Mutation describes one state-changing operation.
type Mutation[R any] struct {
	// Action is the verb shown to users ("invite", "approve").
	Action string
	// Subject names what changes ("Member", "Volunteer application").
	Subject string
	Require Requirement
	// Input is normalized and validated before Run when non-nil.
	Input any
	// Validate runs extra precondition checks after Input validation.
	Validate func() error
	Run      func(ctx context.Context, actor *backend.User) (R, error)
	// Done renders the success message; nil uses a generic one.
	Done func(R) string
	// Optimistic is the local patch applied in optimistic mode.
	Optimistic func()
}

// Execute performs m: authorize, validate, call the backend, reload, and
// emit exactly one notification. Failures are returned after translation.
func Execute[R any](ctx context.Context, o *Orchestrator, m Mutation[R]) (R, error) {
	var zero R
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = o.logg.WithFields(ctx, map[string]any{
		"resource": o.resource,
		"action":   m.Action,
	})

	actor, err := o.auth.Authorize(ctx, m.Require)
	if err != nil {
		o.logg.WarnErr(ctx, "mutation rejected", err)
		o.fail(ctx, m.Subject, m.Action, nil, err)
		return zero, err
	}
	if actor != nil {
		ctx = o.logg.WithUserID(ctx, actor.ID)
		ctx = o.logg.WithActorRole(ctx, actor.Role.String())
	}

	if err := precheck(m); err != nil {
		o.fail(ctx, m.Subject, m.Action, actor, err)
		return zero, err
	}

	optimistic := o.optimistic && m.Optimistic != nil
	if optimistic {
		m.Optimistic()
	}

	out, err := m.Run(ctx, actor)
	if err != nil {
		translated := Translate(m.Subject, m.Action, err)
		o.logg.Error(ctx, "mutation failed", err)
		if optimistic {
			o.reloadAsync(ctx)
		}
		o.fail(ctx, m.Subject, m.Action, actor, translated)
		return zero, translated
	}

	if optimistic {
		o.reloadAsync(ctx)
	} else {
		o.reload(ctx)
	}

	msg := fmt.Sprintf("%s %s completed", m.Subject, m.Action)
	if m.Done != nil {
		msg = m.Done(out)
	}
	o.emit(ctx, notifications.Success(title(m.Subject, m.Action, true), msg), m.Action, actor)
	return out, nil
}

func precheck[R any](m Mutation[R]) error {
	if m.Run == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "mutation has no remote call")
	}
	if m.Input != nil {
		if err := Validate(m.Input); err != nil {
			return err
		}
	}
	if m.Validate != nil {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) reload(ctx context.Context) {
	if err := o.reloader.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		o.logg.WarnErr(ctx, "reload after mutation failed", err)
	}
}

func (o *Orchestrator) reloadAsync(ctx context.Context) {
	bg := context.WithoutCancel(ctx)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		o.reload(bg)
	}()
}

// Wait blocks until background reloads started by optimistic mutations finish.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) fail(ctx context.Context, subject, action string, actor *backend.User, err error) {
	msg := pkgerrors.UserMessage(err, fmt.Sprintf("Failed to %s %s", action, lower(subject)))
	o.emit(ctx, notifications.Failure(title(subject, action, false), msg), action, actor)
}

func (o *Orchestrator) emit(ctx context.Context, n notifications.Notification, action string, actor *backend.User) {
	n.Resource = o.resource
	n.Action = action
	if actor != nil {
		n.ActorID = actor.ID
	}
	n.At = o.now().UTC()
	o.sink.Notify(ctx, n)
}

func title(subject, action string, ok bool) string {
	if ok {
		return fmt.Sprintf("%s %s succeeded", subject, action)
	}
	return fmt.Sprintf("Could not %s %s", action, lower(subject))
}
