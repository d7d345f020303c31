package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/msa-portal/portal-backend/pkg/logger"
	pspkg "github.com/msa-portal/portal-backend/pkg/pubsub"
)

const defaultPublishTimeout = 5 * time.Second

// LogSink writes notifications to the structured logger.
type LogSink struct {
	logg *logger.Logger
}

// NewLogSink builds a log-backed sink.
func NewLogSink(logg *logger.Logger) *LogSink {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogSink{logg: logg}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event":             "notification",
		"notification_kind": n.Kind.String(),
		"resource":          n.Resource,
		"action":            n.Action,
		"title":             n.Title,
	})
	if n.Kind == enums.NotificationKindError {
		s.logg.Warn(ctx, n.Message)
		return
	}
	s.logg.Info(ctx, n.Message)
}

// PubSubSink publishes notifications as JSON messages so other services
// (mailers, dashboards) can fan them out.
type PubSubSink struct {
	publisher pspkg.Publisher
	logg      *logger.Logger
	timeout   time.Duration
}

// NewPubSubSink builds a Pub/Sub backed sink.
func NewPubSubSink(publisher pspkg.Publisher, logg *logger.Logger) (*PubSubSink, error) {
	if publisher == nil {
		return nil, errors.New("notification publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &PubSubSink{publisher: publisher, logg: logg, timeout: defaultPublishTimeout}, nil
}

func (s *PubSubSink) Notify(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		s.logg.Error(ctx, "failed to encode notification", err)
		return
	}
	msg := &pubsub.Message{
		Data:        payload,
		OrderingKey: n.Resource,
		Attributes: map[string]string{
			"kind":     n.Kind.String(),
			"resource": n.Resource,
			"action":   n.Action,
		},
	}

	result := s.publisher.Publish(ctx, msg)
	if result == nil {
		s.logg.Warn(ctx, "notification publisher returned no result")
		return
	}
	getCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := result.Get(getCtx)
	if err != nil {
		s.logg.Error(ctx, "failed to publish notification", err)
		return
	}
	s.logg.Debug(s.logg.WithField(ctx, "message_id", id), "notification published")
}

// FromConfig assembles the sinks enabled in cfg. A nil publisher disables
// the pubsub sink even when configured.
func FromConfig(cfg config.NotifyConfig, publisher pspkg.Publisher, logg *logger.Logger) Sink {
	var fan Fanout
	if cfg.Has(config.NotifySinkLog) || len(cfg.Sinks) == 0 {
		fan = append(fan, NewLogSink(logg))
	}
	if cfg.Has(config.NotifySinkPubSub) && publisher != nil {
		sink, err := NewPubSubSink(publisher, logg)
		if err == nil {
			fan = append(fan, sink)
		}
	}
	return fan
}
