// Package amqp publishes and consumes the ledger's domain events over
// RabbitMQ: sheet.recomputed and settlement.executed.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"contas/internal/core"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Both event streams land in the same queue.
	for _, key := range []string{RouteSheetRecomputed, RouteSettlementExecuted} {
		if err := c.channel.QueueBind(c.queueName, key, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue to %s: %w", key, err)
		}
	}

	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// PublishSheetRecomputed publishes a sheet.recomputed event.
func (c *Client) PublishSheetRecomputed(ctx context.Context, sheet *core.Sheet) error {
	msg := NewSheetRecomputedMessage(sheet)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RouteSheetRecomputed, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published sheet.recomputed",
		"sheet_id", msg.SheetID,
		"period", fmt.Sprintf("%04d-%02d", msg.Year, msg.Month),
		"exchange", c.exchangeName)
	return nil
}

// PublishSettlementExecuted publishes a settlement.executed event.
func (c *Client) PublishSettlementExecuted(ctx context.Context, result *core.SettlementResult) error {
	msg := NewSettlementMessage(result)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, RouteSettlementExecuted, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published settlement.executed",
		"account_id", msg.AccountID,
		"net_cents", msg.NetCents,
		"exchange", c.exchangeName)
	return nil
}

// Handler processes one delivery, dispatched by routing key. A non-nil
// error requeues the delivery.
type Handler struct {
	SheetRecomputed    func(*SheetRecomputedMessage) error
	SettlementExecuted func(*SettlementMessage) error
}

// Consume reads the queue until the context is done, acking deliveries
// the handler accepted and requeueing the ones it failed on. Malformed
// payloads are rejected without requeue.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming ledger events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, delivery, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, delivery amqp091.Delivery, handler Handler) {
	var err error
	switch delivery.RoutingKey {
	case RouteSheetRecomputed:
		var msg *SheetRecomputedMessage
		if msg, err = SheetRecomputedMessageFromJSON(delivery.Body); err == nil && handler.SheetRecomputed != nil {
			if err = handler.SheetRecomputed(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle sheet.recomputed",
					"error", err, "sheet_id", msg.SheetID)
				delivery.Nack(false, true) // requeue
				return
			}
		}
	case RouteSettlementExecuted:
		var msg *SettlementMessage
		if msg, err = SettlementMessageFromJSON(delivery.Body); err == nil && handler.SettlementExecuted != nil {
			if err = handler.SettlementExecuted(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle settlement.executed",
					"error", err, "account_id", msg.AccountID)
				delivery.Nack(false, true) // requeue
				return
			}
		}
	default:
		slog.WarnContext(ctx, "Unknown routing key", "routing_key", delivery.RoutingKey)
		delivery.Nack(false, false)
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal message",
			"error", err, "routing_key", delivery.RoutingKey)
		delivery.Nack(false, false) // reject and don't requeue
		return
	}

	delivery.Ack(false)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
