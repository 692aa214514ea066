package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/JHPush/cart-service/internal/entity"
	"github.com/JHPush/cart-service/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxMergeAttempts = 3
	defaultListConcurrency  = 8
)

// CartService owns every cart mutation. It keeps no state between calls;
// the store is the only shared resource.
type CartService struct {
	repo    CartRepo
	catalog ProductCatalog
	metrics CartMetrics

	now              func() time.Time
	newID            func() string
	maxMergeAttempts int
	listConcurrency  int
}

type Option func(*CartService)

func WithMetrics(m CartMetrics) Option {
	return func(s *CartService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *CartService) { s.now = now } }

func WithIDGenerator(f func() string) Option { return func(s *CartService) { s.newID = f } }

func WithMaxMergeAttempts(n int) Option {
	return func(s *CartService) {
		if n > 0 {
			s.maxMergeAttempts = n
		}
	}
}

func WithListConcurrency(n int) Option {
	return func(s *CartService) {
		if n > 0 {
			s.listConcurrency = n
		}
	}
}

func NewCartService(repo CartRepo, catalog ProductCatalog, opts ...Option) *CartService {
	s := &CartService{
		repo:             repo,
		catalog:          catalog,
		metrics:          nopMetrics{},
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
		maxMergeAttempts: defaultMaxMergeAttempts,
		listConcurrency:  defaultListConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddToCart admits an on-sale product into the user's cart. A new line gets
// max(1, quantity); an existing line grows by exactly one unit and the
// requested quantity is ignored.
func (s *CartService) AddToCart(ctx context.Context, userID string, productID int64, quantity int) (domain.CartItem, error) {
	log := logging.FromCtx(ctx).With("user_id", userID, "product_id", productID)

	product, err := s.validateProduct(ctx, productID)
	if err != nil {
		log.Warn("cart add rejected", "err", err)
		return domain.CartItem{}, err
	}

	entry, created, err := s.mergeOrCreate(ctx, userID, productID, quantity)
	if err != nil {
		log.Error("cart add failed", "err", err)
		return domain.CartItem{}, err
	}
	s.metrics.ItemAdded(created)

	log.Info("cart item saved", "cart_id", entry.ID, "quantity", entry.Quantity, "created", created)
	return domain.CartItem{Entry: *entry, Product: &product}, nil
}

func (s *CartService) validateProduct(ctx context.Context, productID int64) (domain.ProductSnapshot, error) {
	ok, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return domain.ProductSnapshot{}, catalogErr(err)
	}
	if !ok {
		return domain.ProductSnapshot{}, fmt.Errorf("%w: id=%d", ErrProductNotFound, productID)
	}

	product, err := s.catalog.Fetch(ctx, productID)
	if err != nil {
		return domain.ProductSnapshot{}, catalogErr(err)
	}
	if !product.OnSale() {
		return domain.ProductSnapshot{}, fmt.Errorf("%w: id=%d status=%q", ErrProductNotAvailable, productID, product.Status)
	}
	return product, nil
}

func (s *CartService) mergeOrCreate(ctx context.Context, userID string, productID int64, quantity int) (*domain.CartEntry, bool, error) {
	candidate := domain.NewCartEntry(s.newID(), userID, productID, quantity, s.now())

	// Prefer the store's atomic primitive when it has one.
	if u, ok := s.repo.(CartUpserter); ok {
		return u.UpsertIncrement(ctx, &candidate)
	}

	for attempt := 1; attempt <= s.maxMergeAttempts; attempt++ {
		if attempt > 1 {
			s.metrics.MergeRetried()
		}

		existing, err := s.repo.FindByUserAndProduct(ctx, userID, productID)
		switch {
		case err == nil:
			updated, err := s.repo.IncrementQuantity(ctx, existing.ID, 1, s.now())
			if errors.Is(err, ErrCartEntryNotFound) {
				// removed between read and increment
				continue
			}
			if err != nil {
				return nil, false, err
			}
			return updated, false, nil

		case errors.Is(err, ErrCartEntryNotFound):
			err := s.repo.Insert(ctx, &candidate)
			if errors.Is(err, ErrDuplicateEntry) {
				// lost the insert race, merge on the next pass
				continue
			}
			if err != nil {
				return nil, false, err
			}
			return &candidate, true, nil

		default:
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("%w: user=%s product=%d after %d attempts",
		ErrStoreConflict, userID, productID, s.maxMergeAttempts)
}

// GetCart lists the user's entries with fresh product snapshots, in store
// order. A single failed snapshot fails the whole call.
func (s *CartService) GetCart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)

	for i := range entries {
		g.Go(func() error {
			product, err := s.catalog.Fetch(gctx, entries[i].ProductID)
			if err != nil {
				return fmt.Errorf("fetch product %d: %w", entries[i].ProductID, catalogErr(err))
			}
			items[i] = domain.CartItem{Entry: entries[i], Product: &product}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem returns a single entry with its product snapshot.
func (s *CartService) GetItem(ctx context.Context, cartID string) (domain.CartItem, error) {
	entry, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		return domain.CartItem{}, err
	}
	product, err := s.catalog.Fetch(ctx, entry.ProductID)
	if err != nil {
		return domain.CartItem{}, catalogErr(err)
	}
	return domain.CartItem{Entry: *entry, Product: &product}, nil
}

// UpdateQuantity sets the quantity to exactly quantity.
func (s *CartService) UpdateQuantity(ctx context.Context, cartID string, quantity int) (domain.CartEntry, error) {
	if quantity < 1 {
		return domain.CartEntry{}, ErrInvalidQuantity
	}

	entry, err := s.repo.SetQuantity(ctx, cartID, quantity, s.now())
	if err != nil {
		return domain.CartEntry{}, err
	}

	logging.FromCtx(ctx).Info("cart quantity updated", "cart_id", cartID, "quantity", quantity)
	return *entry, nil
}

func (s *CartService) RemoveItem(ctx context.Context, cartID string) error {
	if err := s.repo.Delete(ctx, cartID); err != nil {
		return err
	}
	logging.FromCtx(ctx).Info("cart item removed", "cart_id", cartID)
	return nil
}

// ClearCart is idempotent: an empty cart is not an error.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	logging.FromCtx(ctx).Info("cart cleared", "user_id", userID, "deleted", n)
	return nil
}

// DeleteExpiredEntries removes every entry created before now minus the
// retention window and returns how many went.
func (s *CartService) DeleteExpiredEntries(ctx context.Context, now time.Time) (int, error) {
	n, err := s.repo.DeleteCreatedBefore(ctx, domain.ExpiryCutoff(now))
	if err != nil {
		return 0, err
	}
	s.metrics.ExpiredDeleted(n)
	return n, nil
}

func catalogErr(err error) error {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
