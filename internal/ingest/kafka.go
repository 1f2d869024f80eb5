package ingest

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig selects brokers and topics.
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	EventsTopic   string
	OutboundTopic string
}

// NewKafkaReader creates a consumer-group reader for the inbound events topic.
// Offsets are committed explicitly after each event is handled.
func NewKafkaReader(cfg KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.EventsTopic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: 0,
	})
}

// NewKafkaWriter creates a writer for the outbound topic. Messages are keyed by product id.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.OutboundTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}
