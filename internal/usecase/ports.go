package usecase

import (
	"context"
	"time"

	domain "github.com/JHPush/cart-service/internal/entity"
)

// CartRepo is the cart store. Lookups return ErrCartEntryNotFound on a miss and
// Insert returns ErrDuplicateEntry when the (user, product) pair already exists.
type CartRepo interface {
	FindByID(ctx context.Context, id string) (*domain.CartEntry, error)
	FindByUserAndProduct(ctx context.Context, userID string, productID int64) (*domain.CartEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CartEntry, error)
	Insert(ctx context.Context, e *domain.CartEntry) error
	// IncrementQuantity adds delta in the store, never in memory.
	IncrementQuantity(ctx context.Context, id string, delta int, now time.Time) (*domain.CartEntry, error)
	SetQuantity(ctx context.Context, id string, quantity int, now time.Time) (*domain.CartEntry, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// CartUpserter is implemented by stores offering an atomic insert-or-increment.
// The candidate's quantity is used on insert; an existing row gets +1.
type CartUpserter interface {
	UpsertIncrement(ctx context.Context, candidate *domain.CartEntry) (entry *domain.CartEntry, created bool, err error)
}

// ProductCatalog is the external product authority.
type ProductCatalog interface {
	Exists(ctx context.Context, productID int64) (bool, error)
	Fetch(ctx context.Context, productID int64) (domain.ProductSnapshot, error)
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
	Release(ctx context.Context, scope, key string) error
}

// Locker guards work that must run on a single replica at a time.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type CartMetrics interface {
	ItemAdded(created bool)
	MergeRetried()
	ExpiredDeleted(n int)
}

type nopMetrics struct{}

func (nopMetrics) ItemAdded(bool)     {}
func (nopMetrics) MergeRetried()      {}
func (nopMetrics) ExpiredDeleted(int) {}
