package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/domain/order"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByOrderNumber(t *testing.T) {
	w := &recordingWriter{}
	pub := NewPublisherWithWriter(w, logrus.New())

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	err := pub.Publish(context.Background(),
		order.Event{Type: order.EventOrderCreated, OrderNumber: "WEB-1-000001", GrandTotal: decimal.NewFromInt(1000), OccurredAt: at},
		order.Event{Type: order.EventOrderPaid, OrderNumber: "WEB-1-000001", OccurredAt: at},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "WEB-1-000001", string(w.msgs[0].Key))
	assert.Equal(t, at, w.msgs[0].Time)

	var decoded order.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, order.EventOrderCreated, decoded.Type)
	assert.True(t, decoded.GrandTotal.Equal(decimal.NewFromInt(1000)))

	var eventType string
	for _, h := range w.msgs[1].Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}
	assert.Equal(t, order.EventOrderPaid, eventType)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	pub := NewPublisherWithWriter(&recordingWriter{err: errors.New("broker down")}, logrus.New())
	err := pub.Publish(context.Background(), order.Event{Type: order.EventOrderPaid, OrderNumber: "WEB-1-000002"})
	assert.ErrorContains(t, err, "broker down")
}

func TestKafkaPublisher_NoEvents(t *testing.T) {
	w := &recordingWriter{err: errors.New("should not be called")}
	require.NoError(t, NewPublisherWithWriter(w, logrus.New()).Publish(context.Background()))
}
