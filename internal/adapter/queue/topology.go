package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JHPush/cart-service/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchange, queue and binding used for sweep commands.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// Declare creates the durable topic exchange and queue and binds them. Safe to
// call from every process that touches the queue.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		t.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	q, err := ch.QueueDeclare(
		t.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}

	if err := ch.QueueBind(q.Name, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s -> %s: %w", q.Name, t.Exchange, err)
	}
	return nil
}

// SweepPublisher enqueues expiry sweep commands.
type SweepPublisher struct {
	ch  *amqp.Channel
	top Topology
}

func NewSweepPublisher(ch *amqp.Channel, top Topology) (*SweepPublisher, error) {
	if err := top.Declare(ch); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &SweepPublisher{ch: ch, top: top}, nil
}

// Publish sends cmd and waits for the broker confirm.
func (p *SweepPublisher) Publish(ctx context.Context, cmd usecase.SweepCmd) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal sweep cmd: %w", err)
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.top.Exchange,
		p.top.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    cmd.RequestedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !ok {
		return fmt.Errorf("broker nacked sweep command")
	}
	return nil
}
