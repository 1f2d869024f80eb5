package ingest

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"PriceSentinel/internal/model"
)

// Publisher sends outbound commands to downstream systems.
type Publisher interface {
	PublishPriceChange(ctx context.Context, c *model.PriceChange) error
	PublishReorder(ctx context.Context, r *model.ReorderRecommendation) error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes enveloped records to the outbound topic.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) PublishPriceChange(ctx context.Context, c *model.PriceChange) error {
	return p.publish(ctx, TypePriceChange, c.ProductID, c)
}

func (p *KafkaPublisher) PublishReorder(ctx context.Context, r *model.ReorderRecommendation) error {
	return p.publish(ctx, TypeReorder, r.ProductID, r)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType, productID string, payload any) error {
	value, err := encode(eventType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	msg := kafka.Message{
		Key:   []byte(productID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s: %w", eventType, productID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops outbound commands. Used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishPriceChange(context.Context, *model.PriceChange) error       { return nil }
func (NoopPublisher) PublishReorder(context.Context, *model.ReorderRecommendation) error { return nil }
