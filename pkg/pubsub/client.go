package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client owns the Pub/Sub connection used for outbound notifications.
type Client struct {
	client    *pubsub.Client
	projectID string
	topic     string
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub topic name is required")
)

// Publisher is the narrow publish surface used by notification sinks.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) PublishResult
	Stop()
}

// PublishResult resolves to the server-assigned message id.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// NewClient connects to Pub/Sub and checks the notification topic. A
// missing topic is created when cfg.CreateTopic is set and is an error
// otherwise.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.NotifyConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.PubSubTopic) == "" {
		return nil, errTopicRequired
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: gcp.ProjectID, topic: cfg.PubSubTopic}
	created, err := c.ensureTopic(ctx, cfg.CreateTopic)
	if err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"topic": c.topic, "created": created})
		logg.Info(ctx, "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) ensureTopic(ctx context.Context, create bool) (bool, error) {
	fullName := TopicResourceName(c.projectID, c.topic)
	if fullName == "" {
		return false, fmt.Errorf("topic %q not configured", c.topic)
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	switch {
	case err == nil:
		return false, nil
	case status.Code(err) != codes.NotFound:
		return false, fmt.Errorf("checking topic %q: %w", c.topic, err)
	case !create:
		return false, fmt.Errorf("topic %q does not exist", c.topic)
	}
	_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{
		Name:   fullName,
		Labels: map[string]string{"app": "portal"},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return false, fmt.Errorf("creating topic %q: %w", c.topic, err)
	}
	return true, nil
}

// NotificationPublisher returns an ordered publisher for the notification
// topic. Messages sharing an ordering key are delivered in publish order.
func (c *Client) NotificationPublisher() Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicResourceName(c.projectID, c.topic)
	if fullName == "" {
		return nil
	}
	p := c.client.Publisher(fullName)
	p.EnableMessageOrdering = true
	return &orderedPublisher{
		publish: func(ctx context.Context, msg *pubsub.Message) PublishResult { return p.Publish(ctx, msg) },
		resume:  p.ResumePublish,
		stop:    p.Stop,
	}
}

// Ping checks that the notification topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	_, err := c.ensureTopic(ctx, false)
	return err
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicResourceName expands a topic id into its full resource name.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}

type orderedPublisher struct {
	publish func(ctx context.Context, msg *pubsub.Message) PublishResult
	resume  func(orderingKey string)
	stop    func()
}

func (p *orderedPublisher) Publish(ctx context.Context, msg *pubsub.Message) PublishResult {
	if p == nil || p.publish == nil || msg == nil {
		return nil
	}
	return &resumingResult{
		result:      p.publish(ctx, msg),
		orderingKey: msg.OrderingKey,
		resume:      p.resume,
	}
}

func (p *orderedPublisher) Stop() {
	if p != nil && p.stop != nil {
		p.stop()
	}
}

// resumingResult unpauses the ordering key after a failed publish. The
// client pauses a key on failure and rejects later messages until resumed.
type resumingResult struct {
	result      PublishResult
	orderingKey string
	resume      func(string)
}

func (r *resumingResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.result == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.result.Get(ctx)
	if err != nil && r.orderingKey != "" && r.resume != nil {
		r.resume(r.orderingKey)
	}
	return id, err
}
