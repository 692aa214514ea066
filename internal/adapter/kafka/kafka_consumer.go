package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/cenkalti/backoff/v5"
)

// HandlerFunc processes a decoded event.
type HandlerFunc func(ctx context.Context, ev usecase.OrderStatusChangedMsg) error

// Consumer consumes a topic with a single handler.
type Consumer struct {
	Group    sarama.ConsumerGroup
	Topics   []string
	Handle   HandlerFunc
	MaxTries uint
	Logger   *slog.Logger
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc) *Consumer {
	return &Consumer{
		Group:    group,
		Topics:   topics,
		Handle:   h,
		MaxTries: 3,
		Logger:   logging.New("kafka"),
	}
}

// Start blocks until ctx is cancelled or the group fails.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &cgHandler{handle: c.Handle, maxTries: c.MaxTries, log: c.Logger}
	for {
		if err := c.Group.Consume(ctx, c.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		// Consume returns on rebalance or cancellation.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type cgHandler struct {
	handle   HandlerFunc
	maxTries uint
	log      *slog.Logger
}

func (h *cgHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *cgHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *cgHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		l := h.log.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

		var ev usecase.OrderStatusChangedMsg
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			l.Error("kafka decode error", "err", err)
			// mark to avoid reprocessing poison
			sess.MarkMessage(msg, "decode-error")
			continue
		}

		ctx := logging.WithCtx(sess.Context(), l.With("order_id", ev.OrderID))
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, h.handle(ctx, ev)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(max(1, h.maxTries)))
		if err != nil {
			if sess.Context().Err() != nil {
				// leave unmarked; the next owner of the partition picks it up
				return nil
			}
			l.Error("order event dropped after retries", "err", err, "user_id", ev.UserID)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
