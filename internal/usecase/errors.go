package usecase

import (
	"errors"

	domain "github.com/JHPush/cart-service/internal/entity"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrProductNotAvailable = errors.New("product is not on sale")
	ErrInvalidQuantity     = domain.ErrInvalidQuantity
	ErrCartEntryNotFound   = errors.New("cart entry not found")
	ErrUpstreamUnavailable = errors.New("product catalog unavailable")
	ErrStoreConflict       = errors.New("cart entry conflict")
	ErrDuplicateRequest    = errors.New("duplicate idempotency key")

	// ErrDuplicateEntry is returned by CartRepo.Insert on a (user, product) collision.
	// The engine resolves it; it never reaches callers.
	ErrDuplicateEntry = errors.New("duplicate cart entry")
)
