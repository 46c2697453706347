package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-summaryview/internal/audit"
)

// ConsumerConfig holds configuration for the Redpanda consumer
type ConsumerConfig struct {
	Brokers []string
	// GroupID is the consumer group; empty reads without a group or commits
	GroupID string
	Topics  []string
	// StartOffset is "earliest" or "latest"
	StartOffset string
}

// DefaultConsumerConfig returns a config that replays the audit trail
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:     []string{"localhost:9092"},
		Topics:      []string{TopicAuditTrail},
		StartOffset: "earliest",
	}
}

// AccessEventHandler is called for each consumed access event
type AccessEventHandler func(ctx context.Context, ev *audit.AccessEvent) error

// Consumer reads access events from Redpanda
type Consumer struct {
	client  *kgo.Client
	config  ConsumerConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	handler AccessEventHandler

	mu           sync.RWMutex
	messagesRead int64
	errorCount   int64
}

// NewConsumer creates a new Redpanda consumer
func NewConsumer(cfg ConsumerConfig, handler AccessEventHandler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		return nil, errors.New("message handler is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topics...),
	}
	if cfg.GroupID != "" {
		opts = append(opts, kgo.ConsumerGroup(cfg.GroupID))
	}

	switch cfg.StartOffset {
	case "latest":
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	default:
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		client:  client,
		config:  cfg,
		logger:  logger,
		tracer:  otel.Tracer("redpanda-consumer"),
		handler: handler,
	}, nil
}

// Run consumes until ctx is cancelled or the handler returns an error.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}

		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return nil
			}
			c.incrementErrorCount()
			c.logger.Error("fetch error",
				zap.String("topic", fe.Topic),
				zap.Int32("partition", fe.Partition),
				zap.Error(fe.Err))
		}

		var handlerErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handlerErr == nil {
				handlerErr = c.processRecord(ctx, record)
			}
		})
		if handlerErr != nil {
			return handlerErr
		}
	}
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	ctx = extractTraceContext(ctx, record)
	ctx, span := c.tracer.Start(ctx, "process_access_event",
		trace.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.Int64("partition", int64(record.Partition)),
			attribute.Int64("offset", record.Offset),
		))
	defer span.End()

	ev, err := DecodeAccessEvent(record.Value)
	if err != nil {
		c.incrementErrorCount()
		c.logger.Warn("skipping malformed access event",
			zap.Int32("partition", record.Partition),
			zap.Int64("offset", record.Offset),
			zap.Error(err))
		return nil
	}

	c.mu.Lock()
	c.messagesRead++
	c.mu.Unlock()

	if err := c.handler(ctx, ev); err != nil {
		span.RecordError(err)
		return fmt.Errorf("handle access event %s: %w", ev.ID, err)
	}
	return nil
}

// ConsumerStats holds consumer statistics
type ConsumerStats struct {
	MessagesRead int64
	ErrorCount   int64
}

// Stats returns current consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConsumerStats{
		MessagesRead: c.messagesRead,
		ErrorCount:   c.errorCount,
	}
}

func (c *Consumer) incrementErrorCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}
