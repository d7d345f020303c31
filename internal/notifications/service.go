package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msa-portal/portal-backend/pkg/enums"
)

// Notification is the user-facing outcome of a mutation.
type Notification struct {
	Kind     enums.NotificationKind `json:"kind"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Resource string                 `json:"resource,omitempty"`
	Action   string                 `json:"action,omitempty"`
	ActorID  string                 `json:"actor_id,omitempty"`
	At       time.Time              `json:"at"`
}

// Success builds a success notification.
func Success(title, message string) Notification {
	return Notification{Kind: enums.NotificationKindSuccess, Title: title, Message: message}
}

// Failure builds an error notification.
func Failure(title, message string) Notification {
	return Notification{Kind: enums.NotificationKindError, Title: title, Message: message}
}

// Sink receives notifications. Delivery problems are the sink's own concern
// and never fail the mutation that produced the notification.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Fanout delivers each notification to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notification) {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		sink.Notify(ctx, n)
	}
}

// Recorder keeps every notification in memory. API handlers use it to echo the
// notification back to the caller; tests use it to count emissions.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Len reports how many notifications were recorded.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (n Notification) String() string {
	return fmt.Sprintf("[%s] %s: %s", n.Kind, n.Title, n.Message)
}
