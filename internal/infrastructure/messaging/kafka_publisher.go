package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/order"
)

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes order lifecycle events as JSON, keyed by order
// number so every event of one order lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger logrus.FieldLogger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic
func NewKafkaPublisher(cfg config.KafkaConfig, logger logrus.FieldLogger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewPublisherWithWriter(writer, logger)
}

// NewPublisherWithWriter wraps an existing writer
func NewPublisherWithWriter(w MessageWriter, logger logrus.FieldLogger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger.WithField("component", "kafka_publisher")}
}

var _ order.Publisher = (*KafkaPublisher)(nil)

// Publish writes events in one batch. Trace context travels in the headers.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...order.Event) error {
	if len(events) == 0 {
		return nil
	}

	carrier := headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", e.Type, err)
		}
		headers := carrier.headers()
		headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(e.Type)})
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.OrderNumber),
			Value:   data,
			Headers: headers,
			Time:    e.OccurredAt,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write order events: %w", err)
	}
	p.logger.WithField("count", len(msgs)).Debug("order events published")
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type headerCarrier map[string]string

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string { return c[key] }
func (c headerCarrier) Set(key, value string) { c[key] = value }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func (c headerCarrier) headers() []kafka.Header {
	out := make([]kafka.Header, 0, len(c)+1)
	for k, v := range c {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
