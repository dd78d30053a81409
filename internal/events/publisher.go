package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/sjawhar/interview-ai/internal/logging"
	"github.com/sjawhar/interview-ai/internal/metrics"
)

// Publisher delivers one event keyed by session id.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic. Without brokers it only logs.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New returns a Kafka-backed publisher, or a log-only one when no brokers
// are configured. m may be nil.
func New(cfg Config, m *metrics.Metrics) *KafkaPublisher {
	p := &KafkaPublisher{
		topic:   cfg.Topic,
		metrics: m,
		logger:  logging.WithComponent("events"),
	}
	if len(cfg.Brokers) == 0 {
		p.logger.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	p.logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("Kafka publisher initialized")
	return p
}

func (p *KafkaPublisher) Enabled() bool {
	return p.writer != nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.logger.Debug().Str("topic", p.topic).Str("key", key).RawJSON("payload", payload).Msg("publishing event")
	if p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType(event))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.BackendError("kafka")
		return fmt.Errorf("write event to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func eventType(event any) string {
	if typed, ok := event.(interface{ EventType() string }); ok {
		return typed.EventType()
	}
	return "unknown"
}

// EventType lets embedding structs report their type without reflection.
func (e Event) EventType() string {
	return e.Type
}
