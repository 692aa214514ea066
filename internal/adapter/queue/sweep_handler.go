package queue

import (
	"context"
	"errors"

	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
)

type Sweeper interface {
	Run(ctx context.Context) (int, error)
}

// SweepHandler runs the expiry sweep for each command on the sweep queue.
type SweepHandler struct {
	sweeper Sweeper
}

func NewSweepHandler(s Sweeper) *SweepHandler {
	return &SweepHandler{sweeper: s}
}

// HandleSweep is intended to be used with queue.JSONHandler[usecase.SweepCmd].
func (h *SweepHandler) HandleSweep(ctx context.Context, cmd usecase.SweepCmd) error {
	log := logging.FromCtx(ctx).With("requested_by", cmd.RequestedBy)

	n, err := h.sweeper.Run(ctx)
	if errors.Is(err, usecase.ErrSweepInProgress) {
		// another replica is already on it
		log.Info("sweep skipped, lock held elsewhere")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("sweep finished", "deleted", n)
	return nil
}
