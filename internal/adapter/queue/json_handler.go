package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes a single delivery. It should be idempotent.
// Return nil => ACK; return error => NACK (requeued unless the error is ErrMalformed).
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}

// ErrMalformed marks a delivery that can never succeed; the router drops it
// instead of requeueing.
var ErrMalformed = errors.New("malformed message")

// JSONHandler adapts a typed function into a raw Delivery handler.
type JSONHandler[T any] struct {
	HandleFunc func(ctx context.Context, msg T) error
}

func (h JSONHandler[T]) Handle(ctx context.Context, d amqp.Delivery) error {
	var v T
	if err := json.Unmarshal(d.Body, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return h.HandleFunc(ctx, v)
}
