package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/JHPush/cart-service/internal/entity"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPProductClient reads products from the catalog service at
// GET {baseURL}/{productId}. Transport errors, 429 and 5xx are retried.
type HTTPProductClient struct {
	baseURL       string
	hc            *http.Client
	maxTries      uint
	retryInterval time.Duration
	userAgent     string
}

type Option func(*HTTPProductClient)

func WithHTTPClient(hc *http.Client) Option { return func(c *HTTPProductClient) { c.hc = hc } }

func WithRetryInterval(d time.Duration) Option {
	return func(c *HTTPProductClient) { c.retryInterval = d }
}

func WithUserAgent(ua string) Option { return func(c *HTTPProductClient) { c.userAgent = ua } }

func NewHTTPProductClient(baseURL string, timeout time.Duration, maxTries uint, opts ...Option) *HTTPProductClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if maxTries == 0 {
		maxTries = 1
	}
	c := &HTTPProductClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxTries:      maxTries,
		retryInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPProductClient) Exists(ctx context.Context, productID int64) (bool, error) {
	_, err := c.get(ctx, productID, false)
	if errors.Is(err, usecase.ErrProductNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *HTTPProductClient) Fetch(ctx context.Context, productID int64) (domain.ProductSnapshot, error) {
	return c.get(ctx, productID, true)
}

func (c *HTTPProductClient) get(ctx context.Context, productID int64, decode bool) (domain.ProductSnapshot, error) {
	url := fmt.Sprintf("%s/%d", c.baseURL, productID)

	op := func() (domain.ProductSnapshot, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.ProductSnapshot{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return domain.ProductSnapshot{}, backoff.Permanent(ctx.Err())
			}
			return domain.ProductSnapshot{}, err
		}
		defer resp.Body.Close()

		switch code := resp.StatusCode; {
		case code == http.StatusNotFound:
			return domain.ProductSnapshot{}, backoff.Permanent(fmt.Errorf("%w: id=%d", usecase.ErrProductNotFound, productID))
		case code == http.StatusTooManyRequests || code >= 500:
			return domain.ProductSnapshot{}, fmt.Errorf("catalog returned %d", code)
		case code < 200 || code >= 300:
			return domain.ProductSnapshot{}, backoff.Permanent(fmt.Errorf("%w: catalog returned %d", usecase.ErrUpstreamUnavailable, code))
		}

		if !decode {
			_, _ = io.Copy(io.Discard, resp.Body)
			return domain.ProductSnapshot{}, nil
		}

		var p domain.ProductSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return domain.ProductSnapshot{}, backoff.Permanent(fmt.Errorf("%w: decode product %d: %v", usecase.ErrUpstreamUnavailable, productID, err))
		}
		return p, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 20 * c.retryInterval

	p, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries))
	if err == nil {
		return p, nil
	}

	switch {
	case errors.Is(err, usecase.ErrProductNotFound),
		errors.Is(err, usecase.ErrUpstreamUnavailable),
		errors.Is(err, context.Canceled):
		return domain.ProductSnapshot{}, err
	case ctx.Err() != nil:
		return domain.ProductSnapshot{}, ctx.Err()
	}
	return domain.ProductSnapshot{}, fmt.Errorf("%w: product %d: %v", usecase.ErrUpstreamUnavailable, productID, err)
}

var _ usecase.ProductCatalog = (*HTTPProductClient)(nil)
