package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/config"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	transportRabbit   = "rabbitmq"
	notificationQueue = "order_notifications"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitPublisher fans order events out to every queue bound to the
// notifications exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  amqpPublisher
	exchange string
	logger   *zap.Logger
}

// dialExchange opens a channel and declares the fanout exchange.
func dialExchange(cfg config.RabbitMQConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	return conn, channel, nil
}

// NewRabbitPublisher connects and declares the fanout exchange.
func NewRabbitPublisher(cfg config.RabbitMQConfig) (*RabbitPublisher, error) {
	conn, channel, err := dialExchange(cfg)
	if err != nil {
		return nil, err
	}
	return &RabbitPublisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
		logger:   util.Named("rabbitmq"),
	}, nil
}

func (p *RabbitPublisher) publish(ctx context.Context, eventID string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    eventID,
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.exchange, err)
	}

	p.logger.Debug("Published event", zap.String("event_id", eventID))
	return nil
}

// PublishOrderCreated publishes OrderCreated event
func (p *RabbitPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return record(transportRabbit, event.EventType, p.publish(ctx, event.EventID, event))
}

// PublishOrderStatusUpdated publishes OrderStatusUpdated event
func (p *RabbitPublisher) PublishOrderStatusUpdated(ctx context.Context, event *models.OrderStatusUpdatedEvent) error {
	return record(transportRabbit, event.EventType, p.publish(ctx, event.EventID, event))
}

// Close closes the connection
func (p *RabbitPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// RabbitConsumer reads order events from a durable queue bound to the
// notifications exchange.
type RabbitConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewRabbitConsumer connects, declares the queue and binds it to the exchange.
func NewRabbitConsumer(cfg config.RabbitMQConfig) (*RabbitConsumer, error) {
	conn, channel, err := dialExchange(cfg)
	if err != nil {
		return nil, err
	}

	_, err = channel.QueueDeclare(
		notificationQueue, // name
		true,              // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(notificationQueue, "", cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &RabbitConsumer{conn: conn, channel: channel, logger: util.Named("rabbitmq")}, nil
}

// StartConsuming delivers messages to handler until ctx is done. Handled
// messages are acked; failures are requeued once, then dropped.
func (c *RabbitConsumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	msgs, err := c.channel.Consume(
		notificationQueue,   // queue
		"checkout-notifier", // consumer
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,                 // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Starting RabbitMQ consumer", zap.String("queue", notificationQueue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer context cancelled, stopping")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if err := handler(ctx, msg.Body); err != nil {
				c.logger.Error("Error handling message",
					zap.String("message_id", msg.MessageId),
					zap.Bool("redelivered", msg.Redelivered),
					zap.Error(err))
				msg.Nack(false, !msg.Redelivered)
				continue
			}
			msg.Ack(false)
		}
	}
}

// Close closes the connection
func (c *RabbitConsumer) Close() error {
	return c.conn.Close()
}
