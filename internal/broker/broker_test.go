package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeChannel struct {
	exchange string
	msgs     []amqp.Publishing
	err      error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange = exchange
	c.msgs = append(c.msgs, msg)
	return nil
}

func createdEvent() *models.OrderCreatedEvent {
	return &models.OrderCreatedEvent{
		BaseEvent:   models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeOrderCreated},
		OrderID:     42,
		OrderNumber: "ORDER012024030500001",
		ShopID:      1,
		TotalPrice:  decimal.RequireFromString("220"),
	}
}

func TestEventPublisherKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	p := &EventPublisher{producer: &Producer{writer: w, logger: util.Named("test")}}

	require.NoError(t, p.PublishOrderCreated(context.Background(), createdEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-42", string(w.msgs[0].Key))

	var decoded models.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "ORDER012024030500001", decoded.OrderNumber)
	assert.True(t, decoded.TotalPrice.Equal(decimal.RequireFromString("220")))
}

func TestEventPublisherReportsWriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &EventPublisher{producer: &Producer{writer: w, logger: util.Named("test")}}

	err := p.PublishOrderStatusUpdated(context.Background(), &models.OrderStatusUpdatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeOrderStatusUpdated},
		OrderID:   42,
	})
	assert.Error(t, err)
}

func TestRabbitPublisherUsesExchange(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitPublisher{channel: ch, exchange: "notifications_fanout", logger: util.Named("test")}

	require.NoError(t, p.PublishOrderCreated(context.Background(), createdEvent()))
	assert.Equal(t, "notifications_fanout", ch.exchange)
	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "evt-1", ch.msgs[0].MessageId)
	assert.Equal(t, amqp.Persistent, ch.msgs[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.msgs[0].ContentType)

	ch.err = errors.New("channel closed")
	assert.Error(t, p.PublishOrderCreated(context.Background(), createdEvent()))
}

func TestEventHandlerRoutesByType(t *testing.T) {
	h := NewEventHandler()
	var created *models.OrderCreatedEvent
	var updated *models.OrderStatusUpdatedEvent
	h.OnOrderCreated(func(_ context.Context, e *models.OrderCreatedEvent) error {
		created = e
		return nil
	})
	h.OnOrderStatusUpdated(func(_ context.Context, e *models.OrderStatusUpdatedEvent) error {
		updated = e
		return nil
	})
	ctx := context.Background()

	payload, err := json.Marshal(createdEvent())
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, payload))
	require.NotNil(t, created)
	assert.Equal(t, int64(42), created.OrderID)

	payload, err = json.Marshal(&models.OrderStatusUpdatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeOrderStatusUpdated},
		OrderID:   42,
		Status:    models.OrderStatusProcess,
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, payload))
	require.NotNil(t, updated)
	assert.Equal(t, models.OrderStatusProcess, updated.Status)

	assert.NoError(t, h.HandleMessage(ctx, []byte(`{"event_type":"SOMETHING_ELSE"}`)))
	assert.Error(t, h.HandleMessage(ctx, []byte(`not json`)))
}
