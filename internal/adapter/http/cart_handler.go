package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/JHPush/cart-service/internal/adapter/http/middleware"
	domain "github.com/JHPush/cart-service/internal/entity"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const idempotencyHeader = "X-Idempotency-Key"

type ItemAdder interface {
	Execute(ctx context.Context, in usecase.AddItemInput) (domain.CartItem, error)
}

type CartService interface {
	GetCart(ctx context.Context, userID string) ([]domain.CartItem, error)
	UpdateQuantity(ctx context.Context, cartID string, quantity int) (domain.CartEntry, error)
	RemoveItem(ctx context.Context, cartID string) error
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	add     ItemAdder
	cart    CartService
	timeout time.Duration
}

func NewCartHandler(add ItemAdder, cart CartService, timeout time.Duration) *CartHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CartHandler{add: add, cart: cart, timeout: timeout}
}

type addToCartReq struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

type cartResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	ProductID        int64     `json:"productId"`
	Quantity         int       `json:"quantity"`
	ProductStatus    string    `json:"productStatus,omitempty"`
	ProductName      string    `json:"productName,omitempty"`
	ProductImage     string    `json:"productImage,omitempty"`
	ProductPrice     *int      `json:"productPrice,omitempty"`
	ProductAuthor    string    `json:"productAuthor,omitempty"`
	ProductPublisher string    `json:"productPublisher,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toResponse(e domain.CartEntry, p *domain.ProductSnapshot) cartResponse {
	r := cartResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		ProductID: e.ProductID,
		Quantity:  e.Quantity,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if p != nil {
		price := p.Price
		r.ProductStatus = p.Status
		r.ProductName = p.Name
		r.ProductImage = p.Image
		r.ProductPrice = &price
		r.ProductAuthor = p.Author
		r.ProductPublisher = p.Publisher
	}
	return r
}

// AddToCart handles POST /api/v1/carts
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req addToCartReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "productId is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	item, err := h.add.Execute(ctx, usecase.AddItemInput{
		UserID:         middleware.UserID(c),
		IdempotencyKey: c.GetHeader(idempotencyHeader),
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(item.Entry, item.Product))
}

// GetCart handles GET /api/v1/carts
func (h *CartHandler) GetCart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	items, err := h.cart.GetCart(ctx, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]cartResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toResponse(it.Entry, it.Product))
	}
	c.JSON(http.StatusOK, out)
}

// UpdateQuantity handles PUT /api/v1/carts/:cartId?quantity=N
func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "quantity must be an integer")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	entry, err := h.cart.UpdateQuantity(ctx, cartID, quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(entry, nil))
}

// RemoveItem handles DELETE /api/v1/carts/:cartId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.cart.RemoveItem(ctx, cartID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearCart handles DELETE /api/v1/carts
func (h *CartHandler) ClearCart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.cart.ClearCart(ctx, middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func cartIDParam(c *gin.Context) (string, bool) {
	id := c.Param("cartId")
	if _, err := uuid.Parse(id); err != nil {
		respondError(c, http.StatusBadRequest, "cartId must be a UUID")
		return "", false
	}
	return id, true
}
