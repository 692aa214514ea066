package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/JHPush/cart-service/internal/entity"
)

// memRepo is a mutex-guarded CartRepo with the same uniqueness rules as the
// MySQL table. It deliberately lacks UpsertIncrement so the retry path runs.
type memRepo struct {
	mu      sync.Mutex
	byID    map[string]domain.CartEntry
	inserts atomic.Int32
	dupes   atomic.Int32

	// findHook runs after a lookup, outside the lock, to widen race windows.
	findHook func()
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]domain.CartEntry{}}
}

func (r *memRepo) FindByID(_ context.Context, id string) (*domain.CartEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, ErrCartEntryNotFound
	}
	return &e, nil
}

func (r *memRepo) FindByUserAndProduct(_ context.Context, userID string, productID int64) (*domain.CartEntry, error) {
	r.mu.Lock()
	var found *domain.CartEntry
	for _, e := range r.byID {
		if e.UserID == userID && e.ProductID == productID {
			e := e
			found = &e
			break
		}
	}
	r.mu.Unlock()

	if r.findHook != nil {
		r.findHook()
	}
	if found == nil {
		return nil, ErrCartEntryNotFound
	}
	return found, nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string) ([]domain.CartEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CartEntry
	for _, e := range r.byID {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memRepo) Insert(_ context.Context, e *domain.CartEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.byID {
		if cur.UserID == e.UserID && cur.ProductID == e.ProductID {
			r.dupes.Add(1)
			return ErrDuplicateEntry
		}
	}
	r.byID[e.ID] = *e
	r.inserts.Add(1)
	return nil
}

func (r *memRepo) IncrementQuantity(_ context.Context, id string, delta int, now time.Time) (*domain.CartEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, ErrCartEntryNotFound
	}
	e.Quantity += delta
	e.UpdatedAt = now
	r.byID[id] = e
	return &e, nil
}

func (r *memRepo) SetQuantity(_ context.Context, id string, quantity int, now time.Time) (*domain.CartEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, ErrCartEntryNotFound
	}
	if err := e.ChangeQuantity(quantity, now); err != nil {
		return nil, err
	}
	r.byID[id] = e
	return &e, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrCartEntryNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memRepo) DeleteByUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.byID {
		if e.UserID == userID {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.byID {
		if e.CreatedAt.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) put(e domain.CartEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.ID] = e
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// upsertRepo adds the atomic primitive on top of memRepo.
type upsertRepo struct {
	*memRepo
	upserts atomic.Int32
}

func (r *upsertRepo) UpsertIncrement(_ context.Context, c *domain.CartEntry) (*domain.CartEntry, bool, error) {
	r.upserts.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.byID {
		if e.UserID == c.UserID && e.ProductID == c.ProductID {
			e.Quantity++
			e.UpdatedAt = c.UpdatedAt
			r.byID[id] = e
			return &e, false, nil
		}
	}
	r.byID[c.ID] = *c
	out := *c
	return &out, true, nil
}

// conflictRepo always loses the insert race and never sees the winner.
type conflictRepo struct {
	*memRepo
}

func (r *conflictRepo) Insert(context.Context, *domain.CartEntry) error {
	r.dupes.Add(1)
	return ErrDuplicateEntry
}

type stubCatalog struct {
	mu       sync.Mutex
	products map[int64]domain.ProductSnapshot
	existErr error
	fetchErr map[int64]error

	existsCalls atomic.Int32
	fetchCalls  atomic.Int32
}

func newStubCatalog(products ...domain.ProductSnapshot) *stubCatalog {
	c := &stubCatalog{products: map[int64]domain.ProductSnapshot{}, fetchErr: map[int64]error{}}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *stubCatalog) Exists(_ context.Context, id int64) (bool, error) {
	c.existsCalls.Add(1)
	if c.existErr != nil {
		return false, c.existErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.products[id]
	return ok, nil
}

func (c *stubCatalog) Fetch(_ context.Context, id int64) (domain.ProductSnapshot, error) {
	c.fetchCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetchErr[id]; err != nil {
		return domain.ProductSnapshot{}, err
	}
	p, ok := c.products[id]
	if !ok {
		return domain.ProductSnapshot{}, ErrProductNotFound
	}
	return p, nil
}

func onSale(id int64, name string) domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: id, Name: name, Status: domain.ProductStatusOnSale, Price: 12000}
}

type countingMetrics struct {
	created, merged, retries, expired atomic.Int32
}

func (m *countingMetrics) ItemAdded(created bool) {
	if created {
		m.created.Add(1)
		return
	}
	m.merged.Add(1)
}
func (m *countingMetrics) MergeRetried()        { m.retries.Add(1) }
func (m *countingMetrics) ExpiredDeleted(n int) { m.expired.Add(int32(n)) }

type memIdem struct {
	mu          sync.Mutex
	locks       map[string]bool
	values      map[string]string
	rememberErr error
}

func newMemIdem() *memIdem {
	return &memIdem{locks: map[string]bool{}, values: map[string]string{}}
}

func (m *memIdem) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	if m.locks[k] {
		return false, nil
	}
	m.locks[k] = true
	return true, nil
}

func (m *memIdem) Remember(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rememberErr != nil {
		return m.rememberErr
	}
	m.values[scope+":"+key] = value
	return nil
}

func (m *memIdem) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[scope+":"+key]
	return v, ok, nil
}

func (m *memIdem) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, scope+":"+key)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *memLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		return nil
	}, true, nil
}

var errBoom = errors.New("boom")
