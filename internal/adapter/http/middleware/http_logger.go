package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JHPush/cart-service/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	reqBodyLimit    = 4 * 1024 // logged prefix
	maxBodyBytes    = 1 << 20  // whole request
)

var redactedKeys = map[string]bool{"authorization": true, "token": true, "password": true}

// Logging tags every request with a request id, stores a request-scoped logger
// in the context and writes one access line when the handler returns.
func Logging(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		l := base.With("req_id", reqID, "method", c.Request.Method, "route", c.FullPath())
		logging.With(c, l)

		var body string
		if strings.Contains(c.GetHeader("Content-Type"), "application/json") && c.Request.Body != nil {
			limited := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
			head, truncated := peekCapped(limited, reqBodyLimit)
			// the handler still sees the whole body: the peeked prefix, then the rest
			c.Request.Body = bodyReader{Reader: io.MultiReader(bytes.NewReader(head), limited), Closer: limited}
			if truncated {
				body = string(redact(head[:reqBodyLimit])) + "...truncated..."
			} else {
				body = string(redact(head))
			}
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"dur_ms", time.Since(start).Milliseconds(),
			"resp_bytes", c.Writer.Size(),
			"remote", c.ClientIP(),
		}
		if uid := UserID(c); uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		if body != "" {
			attrs = append(attrs, "req_body", body)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("http_request", attrs...)
		case status >= http.StatusBadRequest:
			l.Warn("http_request", attrs...)
		default:
			l.Info("http_request", attrs...)
		}
	}
}

type bodyReader struct {
	io.Reader
	io.Closer
}

// peekCapped reads at most n+1 bytes and reports whether the body is longer than n.
func peekCapped(r io.Reader, n int) ([]byte, bool) {
	var buf bytes.Buffer
	_, _ = io.CopyN(&buf, r, int64(n+1))
	b := buf.Bytes()
	return b, len(b) > n
}

func redact(raw []byte) []byte {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	for k := range m {
		if redactedKeys[strings.ToLower(k)] {
			m[k] = "***redacted***"
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}
