// Package kafka publishes and consumes domain events on a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"fintrack/internal/events"
	"fintrack/internal/log"
)

// Publisher writes every event to one topic, keyed by event type.
type Publisher struct {
	writer *kafka.Writer
	logger *log.Logger
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, logger *log.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 5 * time.Second,
		},
		logger: logger.WithComponent(log.ComponentEvents),
	}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Type),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}

	p.logger.DebugContext(ctx, "Published event",
		log.FieldEventID, e.ID,
		log.FieldEventType, string(e.Type),
		"topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consumer reads the topic as part of a consumer group. Offsets are committed
// only after the handler succeeds.
type Consumer struct {
	reader *kafka.Reader
	logger *log.Logger
}

var _ events.Subscriber = (*Consumer)(nil)

func NewConsumer(brokers []string, topic, groupID string, logger *log.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger: logger.WithComponent(log.ComponentEvents),
	}
}

func (c *Consumer) Consume(ctx context.Context, h events.Handler) error {
	c.logger.InfoContext(ctx, "Started consuming events", "topic", c.reader.Config().Topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.InfoContext(ctx, "Stopping message consumption", "reason", err)
				return ctx.Err()
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		e, err := events.FromJSON(msg.Value)
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err, "offset", msg.Offset)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("commit kafka message: %w", err)
			}
			continue
		}

		if err := h(ctx, e); err != nil {
			// Leave the offset uncommitted; the group redelivers after a restart
			// or rebalance.
			c.logger.ErrorContext(ctx, "Failed to handle event",
				log.FieldError, err,
				log.FieldEventID, e.ID,
				log.FieldEventType, string(e.Type))
			return fmt.Errorf("handle event %s: %w", e.ID, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit kafka message: %w", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
