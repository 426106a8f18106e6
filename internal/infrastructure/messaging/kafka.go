// Package messaging publishes outbox events to Kafka behind a circuit breaker.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"storeledger/internal/infrastructure/storage/postgres"
	"storeledger/pkg/logger"
)

// ErrBreakerOpen is returned while the breaker rejects writes.
var ErrBreakerOpen = errors.New("kafka circuit breaker is open")

// Config holds Kafka producer settings.
type Config struct {
	Brokers      []string
	TopicPrefix  string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int

	// Breaker trips after FailureThreshold consecutive failures and probes
	// again after OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultConfig returns producer defaults for brokers.
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:          brokers,
		TopicPrefix:      "storeledger",
		BatchTimeout:     10 * time.Millisecond,
		WriteTimeout:     10 * time.Second,
		RequiredAcks:     int(kafka.RequireAll),
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements postgres.OutboxHandler: every outbox row becomes one
// message on "<prefix>.<aggregate>" keyed by the aggregate id, so the events
// of one ledger stay ordered within a partition.
type Publisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	prefix  string
}

// BreakerObserver is told about breaker state changes.
type BreakerObserver func(from, to gobreaker.State)

// NewPublisher creates a Kafka publisher.
func NewPublisher(cfg Config, observe BreakerObserver) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		// Topics are created by the platform, not by the relay.
		AllowAutoTopicCreation: false,
	}
	return newPublisher(writer, cfg, observe)
}

func newPublisher(writer messageWriter, cfg Config, observe BreakerObserver) *Publisher {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "kafka",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if observe != nil {
				observe(from, to)
			}
		},
	}

	return &Publisher{
		writer:  writer,
		breaker: gobreaker.NewCircuitBreaker(settings),
		prefix:  cfg.TopicPrefix,
	}
}

// Topic returns the topic of an aggregate type.
func (p *Publisher) Topic(aggregateType string) string {
	if p.prefix == "" {
		return aggregateType
	}
	return p.prefix + "." + aggregateType
}

// Handle publishes one outbox message.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	m := kafka.Message{
		Topic: p.Topic(msg.AggregateType),
		Key:   []byte(msg.AggregateID.String()),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(msg.ID.String())},
			{Key: "event-type", Value: []byte(msg.EventType)},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: msg.CreatedAt,
	}

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.writer.WriteMessages(ctx, m)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.EventType, m.Topic, err)
	}
	return nil
}

// State returns the breaker state.
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ postgres.OutboxHandler = (*Publisher)(nil)
