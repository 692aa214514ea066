package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

var errorStatus = []struct {
	err    error
	status int
}{
	{usecase.ErrProductNotFound, http.StatusNotFound},
	{usecase.ErrCartEntryNotFound, http.StatusNotFound},
	{usecase.ErrProductNotAvailable, http.StatusBadRequest},
	{usecase.ErrInvalidQuantity, http.StatusBadRequest},
	{usecase.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable},
	{usecase.ErrStoreConflict, http.StatusConflict},
	{usecase.ErrDuplicateRequest, http.StatusConflict},
}

// writeError maps use case errors onto HTTP statuses. Unknown errors become
// a 500 with a generic message; the detail only goes to the log.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			respondError(c, m.status, m.err.Error())
			return
		}
	}
	logging.From(c).Error("unhandled error", "err", err)
	respondError(c, http.StatusInternalServerError, "internal server error")
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Status:    status,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}
