package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	goretry "github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/registry"
	"github.com/angelmondragon/experiences-backend/pkg/retry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	guardConsumer         = "outbox-publisher"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// publishGuard remembers event ids already handed to Pub/Sub.
type publishGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	// ResumePublish unblocks an ordering key after a failed publish.
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Guard            publishGuard
	Metrics          *metrics.OutboxMetrics
}

// Service relays committed outbox rows to Pub/Sub topics.
type Service struct {
	logg     *logger.Logger
	db       dbClient
	repo     outboxRepository
	pubsub   pubSubClient
	registry registryResolver
	dlq      dlqRepository
	guard    publishGuard
	metrics  *metrics.OutboxMetrics

	newPublisher publisherFactory
	mu           sync.Mutex
	publishers   map[string]publisher

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	sleepFn      func(context.Context, time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		guard:        params.Guard,
		metrics:      params.Metrics,
		newPublisher: factory,
		publishers:   map[string]publisher{},
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
		sleepFn:      retry.Sleep,
	}
	if cfg.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run relays batches until ctx is canceled. An empty outbox is polled at a
// steady jittered interval; failing batches back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	defer s.Close()

	idle := s.idleBackoff(s.pollInterval)
	onError := s.errorBackoff(s.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait goretry.Backoff
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = onError
		case processed:
			onError = s.errorBackoff(s.pollInterval)
			continue
		default:
			onError = s.errorBackoff(s.pollInterval)
			wait = idle
		}
		delay, _ := wait.Next()
		if err := s.sleepFn(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Service) idleBackoff(interval time.Duration) goretry.Backoff {
	return goretry.WithJitter(jitterWindow, goretry.NewConstant(interval))
}

// errorBackoff doubles from 2*interval up to maxBackoff.
func (s *Service) errorBackoff(interval time.Duration) goretry.Backoff {
	return goretry.WithJitter(jitterWindow, goretry.WithCappedDuration(maxBackoff, goretry.NewExponential(2*interval)))
}

// processBatch relays one locked batch inside a transaction. It reports
// whether any row was fetched.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveBatch(time.Since(started)) }()

	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.relay(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// publisherFor returns the cached publisher for topic, creating it once.
// Reusing one publisher per topic is what keeps ordering keys meaningful.
func (s *Service) publisherFor(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.newPublisher(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

// Close flushes and stops every cached publisher.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.publishers {
		if stopper, ok := pub.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(s.publishers, topic)
	}
}
