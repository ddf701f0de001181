package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskagent/pkg/metrics"
	"taskagent/pkg/models"
	"taskagent/pkg/resilience"
)

// DefaultChannel is the Pub/Sub channel outcome events go to.
const DefaultChannel = "taskagent:executions"

// client is the slice of go-redis the publisher needs.
type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Event is the message body published for every finished execution.
type Event struct {
	AgentID     string                  `json:"agent_id"`
	PublishedAt time.Time               `json:"published_at"`
	Outcome     models.ExecutionOutcome `json:"outcome"`
}

// OutcomePublisherConfig holds Redis connection configuration
type OutcomePublisherConfig struct {
	Addr         string
	Password     string
	DB           int
	Channel      string
	AgentID      string
	PoolSize     int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultOutcomePublisherConfig returns defaults sized for a single agent.
func DefaultOutcomePublisherConfig(addr string) OutcomePublisherConfig {
	return OutcomePublisherConfig{
		Addr:         addr,
		Channel:      DefaultChannel,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// OutcomePublisher announces outcomes on a Redis Pub/Sub channel. Nothing is
// retained: subscribers that are not listening miss the event.
type OutcomePublisher struct {
	client  client
	channel string
	agentID string
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time
}

// NewOutcomePublisher connects to Redis and verifies the connection.
func NewOutcomePublisher(cfg OutcomePublisherConfig, logger *zap.Logger) (*OutcomePublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newOutcomePublisher(rdb, cfg, logger), nil
}

func newOutcomePublisher(c client, cfg OutcomePublisherConfig, logger *zap.Logger) *OutcomePublisher {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		logger.Warn("publisher circuit changed state",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return &OutcomePublisher{
		client:  c,
		channel: cfg.Channel,
		agentID: cfg.AgentID,
		breaker: resilience.NewCircuitBreaker("redis-publish", breakerCfg),
		logger:  logger,
		now:     time.Now,
	}
}

// Publish sends one outcome event. While Redis is failing the circuit opens
// and events are dropped without a network round trip.
func (p *OutcomePublisher) Publish(ctx context.Context, outcome models.ExecutionOutcome) error {
	payload, err := json.Marshal(Event{
		AgentID:     p.agentID,
		PublishedAt: p.now().UTC(),
		Outcome:     outcome,
	})
	if err != nil {
		metrics.OutcomesPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.client.Publish(ctx, p.channel, payload).Err()
	})
	switch {
	case err == nil:
		metrics.OutcomesPublished.WithLabelValues("ok").Inc()
		return nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.OutcomesPublished.WithLabelValues("dropped").Inc()
		return err
	default:
		metrics.OutcomesPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
}

// Breaker exposes the circuit breaker for status reporting.
func (p *OutcomePublisher) Breaker() *resilience.CircuitBreaker {
	return p.breaker
}

func (p *OutcomePublisher) Close() error {
	return p.client.Close()
}
