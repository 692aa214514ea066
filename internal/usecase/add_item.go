package usecase

import (
	"context"

	domain "github.com/JHPush/cart-service/internal/entity"
	"github.com/JHPush/cart-service/internal/logging"
)

type AddItemInput struct {
	UserID, IdempotencyKey string
	ProductID              int64
	Quantity               int
}

// AddItem puts an idempotency guard in front of CartService.AddToCart, since a
// replayed add would otherwise merge one more unit.
type AddItem struct {
	cart *CartService
	idem IdempotencyStore
}

func NewAddItem(cart *CartService, idem IdempotencyStore) *AddItem {
	return &AddItem{cart: cart, idem: idem}
}

func (uc *AddItem) Execute(ctx context.Context, in AddItemInput) (domain.CartItem, error) {
	if in.IdempotencyKey == "" || uc.idem == nil {
		return uc.cart.AddToCart(ctx, in.UserID, in.ProductID, in.Quantity)
	}

	// Fast path: idempotency recall
	if id, ok, err := uc.idem.Recall(ctx, in.UserID, in.IdempotencyKey); err != nil {
		return domain.CartItem{}, err
	} else if ok {
		return uc.cart.GetItem(ctx, id)
	}

	ok, err := uc.idem.TryLock(ctx, in.UserID, in.IdempotencyKey)
	if err != nil {
		return domain.CartItem{}, err
	}
	if !ok {
		return domain.CartItem{}, ErrDuplicateRequest
	}

	item, err := uc.cart.AddToCart(ctx, in.UserID, in.ProductID, in.Quantity)
	if err != nil {
		// let the client retry with the same key
		if rerr := uc.idem.Release(context.WithoutCancel(ctx), in.UserID, in.IdempotencyKey); rerr != nil {
			logging.FromCtx(ctx).Warn("idempotency release failed", "err", rerr)
		}
		return domain.CartItem{}, err
	}

	if err := uc.idem.Remember(ctx, in.UserID, in.IdempotencyKey, item.Entry.ID); err != nil {
		// nothing to replay, so free the key for retries
		logging.FromCtx(ctx).Warn("idempotency remember failed", "cart_id", item.Entry.ID, "err", err)
		if rerr := uc.idem.Release(context.WithoutCancel(ctx), in.UserID, in.IdempotencyKey); rerr != nil {
			logging.FromCtx(ctx).Warn("idempotency release failed", "err", rerr)
		}
	}
	return item, nil
}
