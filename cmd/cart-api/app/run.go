package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JHPush/cart-service/configs"
	"github.com/JHPush/cart-service/internal/adapter/cache"
	httpadapter "github.com/JHPush/cart-service/internal/adapter/http"
	"github.com/JHPush/cart-service/internal/adapter/http/middleware"
	"github.com/JHPush/cart-service/internal/adapter/kafka"
	"github.com/JHPush/cart-service/internal/adapter/queue"
	"github.com/JHPush/cart-service/internal/bootstrap"
	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Server          *http.Server
	shutdownTimeout time.Duration
	background      []func(ctx context.Context) error
}

func InitWithConfig(ctx context.Context, cfg configs.Config) (*App, func(), error) {
	gin.SetMode(gin.ReleaseMode)

	core, err := bootstrap.NewCore(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, err
	}
	cleanups := []func(){core.Close}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	a := &App{shutdownTimeout: cfg.HTTP.ShutdownTimeout}

	// rabbitmq sweep consumer (optional)
	if cfg.Rabbit.URL != "" {
		conn, ch, err := bootstrap.OpenRabbit(cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })

		top := queue.Topology{Exchange: cfg.Rabbit.Exchange, Queue: cfg.Rabbit.SweepQueue, RoutingKey: cfg.Rabbit.RoutingKey}
		if err := top.Declare(ch); err != nil {
			cleanup()
			return nil, nil, err
		}

		router := queue.NewRouter(ch, queue.WithPrefetch(cfg.Rabbit.Prefetch))
		router.Register(top.Queue, queue.JSONHandler[usecase.SweepCmd]{HandleFunc: queue.NewSweepHandler(core.Sweeper).HandleSweep})
		a.background = append(a.background, func(ctx context.Context) error {
			if err := router.Start(ctx); err != nil {
				return fmt.Errorf("rabbitmq router: %w", err)
			}
			<-ctx.Done()
			return nil
		})
	}

	// kafka order events (optional)
	if len(cfg.Kafka.Brokers) > 0 {
		grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.App.Name)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = grp.Close() })

		h := kafka.NewOrderStatusChangedHandler(core.Cart)
		consumer := kafka.NewConsumer(grp, []string{cfg.Kafka.TopicOrderEvents}, h.Handle)
		a.background = append(a.background, func(ctx context.Context) error {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	}

	idem := cache.NewRedisIdempotencyStore(core.Redis, cfg.Idempotency.TTL)
	handler := httpadapter.NewCartHandler(usecase.NewAddItem(core.Cart, idem), core.Cart, cfg.HTTP.RequestTimeout)
	router := httpadapter.NewRouter(handler, middleware.NewAuthz(cfg), logging.New("http"), map[string]httpadapter.HealthCheck{
		"mysql": core.DB.PingContext,
		"redis": func(ctx context.Context) error { return core.Redis.Ping(ctx).Err() },
	})

	a.Server = &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return a, cleanup, nil
}

// Run serves HTTP and the background consumers until ctx is cancelled or one
// of them fails, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := a.shutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		return a.Server.Shutdown(sctx)
	})

	for _, run := range a.background {
		g.Go(func() error { return run(gctx) })
	}

	return g.Wait()
}
