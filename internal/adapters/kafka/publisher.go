// Package kafka relays checkout events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/config"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.MessageWriter. Messages are keyed by tempOrderId
// so events of one checkout land on one partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		topic:  cfg.Topic,
		logger: logger,
	}
}

func (p *Publisher) Write(ctx context.Context, key string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", p.topic, err)
	}
	p.logger.Debug("event published", "topic", p.topic, "key", key)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
