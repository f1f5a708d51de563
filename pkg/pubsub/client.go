package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

// lookup reports whether a fully qualified topic or subscription exists.
type lookup func(ctx context.Context, kind resourceKind, fullName string) error

// Client wraps the Pub/Sub v2 client for the table events topic and its
// analytics subscription. Publisher handles are shared per topic and stopped
// on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	exists    lookup

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails when the configured topic or
// subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     raw,
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	c.exists = c.adminLookup
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.TableEventsTopic,
			"subscription": cfg.TableEventsSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) adminLookup(ctx context.Context, kind resourceKind, fullName string) error {
	var err error
	switch kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
	default:
		err = fmt.Errorf("unknown resource kind %q", kind)
	}
	return err
}

// Ping checks that every configured resource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.exists == nil {
		return errNotInitialized
	}
	checks := []struct {
		kind resourceKind
		name string
	}{
		{kindTopic, c.cfg.TableEventsTopic},
		{kindSubscription, c.cfg.TableEventsSubscription},
	}
	for _, check := range checks {
		full := c.resourceName(check.kind, check.name)
		if full == "" {
			continue
		}
		err := c.exists(ctx, check.kind, full)
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(string(check.kind), "s"), check.name)
		default:
			return fmt.Errorf("checking pubsub %s %q: %w", check.kind, check.name, err)
		}
	}
	return nil
}

// Subscription returns a subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(kindSubscription, name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// TableEventsSubscription returns the subscriber the analytics worker drains.
func (c *Client) TableEventsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.TableEventsSubscription)
}

// Publisher returns the shared publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(kindTopic, name)
	if full == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.client.Publisher(full)
	c.publishers[full] = pub
	return pub
}

// Close flushes outstanding publishes and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for full, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, full)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName qualifies a bare ID with the project. Names that are already
// fully qualified for the same kind pass through.
func (c *Client) resourceName(kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + string(kind) + "/" + n
}
