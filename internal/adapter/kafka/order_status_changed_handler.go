package kafka

import (
	"context"
	"strings"

	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
)

// CartClearer is the slice of the cart engine this handler needs.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// OrderStatusChangedHandler empties a user's cart once their order is placed.
type OrderStatusChangedHandler struct {
	Cart CartClearer
}

func NewOrderStatusChangedHandler(cart CartClearer) *OrderStatusChangedHandler {
	return &OrderStatusChangedHandler{Cart: cart}
}

func (h *OrderStatusChangedHandler) Handle(ctx context.Context, ev usecase.OrderStatusChangedMsg) error {
	log := logging.FromCtx(ctx)

	switch strings.ToUpper(ev.Status) {
	case "SUCCESS", "CONFIRMED":
	default:
		log.Debug("order status ignored", "status", ev.Status)
		return nil
	}

	if ev.UserID == "" {
		log.Warn("order event without user id", "order_id", ev.OrderID)
		return nil
	}

	return h.Cart.ClearCart(ctx, ev.UserID)
}
