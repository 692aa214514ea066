package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/JHPush/cart-service/internal/entity"
	"github.com/JHPush/cart-service/internal/logging"
)

const sweepLockName = "cart:expiry-sweep"

var ErrSweepInProgress = errors.New("expiry sweep already running")

// ExpirySweeper runs DeleteExpiredEntries under a cross-replica lock.
type ExpirySweeper struct {
	cart    *CartService
	lock    Locker
	lockTTL time.Duration
}

func NewExpirySweeper(cart *CartService, lock Locker, lockTTL time.Duration) *ExpirySweeper {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &ExpirySweeper{cart: cart, lock: lock, lockTTL: lockTTL}
}

func (s *ExpirySweeper) Run(ctx context.Context) (int, error) {
	log := logging.FromCtx(ctx).With("job", "expiry-sweep")

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, sweepLockName, s.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			return 0, ErrSweepInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("sweep lock release failed", "err", err)
			}
		}()
	}

	now := s.cart.now()
	n, err := s.cart.DeleteExpiredEntries(ctx, now)
	if err != nil {
		return 0, err
	}
	log.Info("expired cart entries deleted", "deleted", n, "cutoff", domain.ExpiryCutoff(now))
	return n, nil
}
