package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JHPush/cart-service/internal/adapter/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

func NewRouter(h *CartHandler, authz *middleware.Authz, log *slog.Logger, checks map[string]HealthCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Logging(log))

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}
		c.JSON(status, gin.H{"ok": status == http.StatusOK, "deps": deps})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	carts := r.Group("/api/v1/carts", authz.RequireUser())
	{
		carts.POST("", h.AddToCart)
		carts.GET("", h.GetCart)
		carts.DELETE("", h.ClearCart)
		carts.PUT("/:cartId", h.UpdateQuantity)
		carts.DELETE("/:cartId", h.RemoveItem)
	}

	return r
}
