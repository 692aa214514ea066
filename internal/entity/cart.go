package domain

import (
	"errors"
	"time"
)

// ProductStatusOnSale is the only catalog status admitted into a cart.
const ProductStatusOnSale = "ON_SALE"

// RetentionWindow is how long an entry may live, measured from CreatedAt.
const RetentionWindow = 7 * 24 * time.Hour

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

type CartEntry struct {
	ID        string
	UserID    string
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCartEntry builds a fresh line item; quantities below 1 are raised to 1.
func NewCartEntry(id, userID string, productID int64, quantity int, now time.Time) CartEntry {
	return CartEntry{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		Quantity:  max(1, quantity),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e *CartEntry) ChangeQuantity(quantity int, now time.Time) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	e.Quantity = quantity
	e.UpdatedAt = now
	return nil
}

// ExpiryCutoff returns the instant before which entries are considered expired.
func ExpiryCutoff(now time.Time) time.Time {
	return now.Add(-RetentionWindow)
}

// ProductSnapshot is the catalog view of a product at request time. Never persisted.
type ProductSnapshot struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Image     string `json:"image"`
	Price     int    `json:"price"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
}

func (p ProductSnapshot) OnSale() bool {
	return p.Status == ProductStatusOnSale
}

// CartItem is a stored entry joined with its current product snapshot.
type CartItem struct {
	Entry   CartEntry
	Product *ProductSnapshot
}
