package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
)

const (
	kindTopics        = "topics"
	kindSubscriptions = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
)

// Client publishes domain events to the experience and booking topics.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects to Pub/Sub and fails unless every configured topic
// and subscription already exists. Resources are provisioned out of band.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, cfg: cfg}
	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "gcp_project", projectID), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if strings.TrimSpace(gcp.CredentialsJSON) == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
}

// verify checks every configured resource and reports all that are missing.
func (c *Client) verify(ctx context.Context) error {
	topics := nonEmpty(c.cfg.ExperiencesTopic, c.cfg.BookingsTopic)
	if len(topics) == 0 {
		return errNoTopics
	}
	var errs error
	for _, name := range topics {
		errs = multierr.Append(errs, c.exists(ctx, kindTopics, name))
	}
	// Subscriptions belong to downstream consumers; only named ones are checked.
	for _, name := range subscriptionNames(c.cfg) {
		errs = multierr.Append(errs, c.exists(ctx, kindSubscriptions, name))
	}
	return errs
}

func (c *Client) exists(ctx context.Context, kind, name string) error {
	full := resourceName(c, name, kind)
	if full == "" {
		return fmt.Errorf("%s %q not configured", kind, name)
	}
	var err error
	switch kind {
	case kindTopics:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	default:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, full)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, full, err)
	}
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	return nonEmpty(cfg.ExperiencesSubscription, cfg.BookingsSubscription)
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Publisher returns a handle for a topic id or full resource name. Callers
// own the handle and must Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.topicResourceName(name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping re-runs the resource checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return resourceName(c, name, kindSubscriptions)
}

func (c *Client) topicResourceName(name string) string {
	return resourceName(c, name, kindTopics)
}

// resourceName expands a short id to projects/<p>/<kind>/<id>. Full names
// of the same kind pass through.
func resourceName(c *Client, name, kind string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}
