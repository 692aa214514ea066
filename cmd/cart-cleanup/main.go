// Command cart-cleanup removes cart entries older than the retention window.
// Run it from cron, or pass -enqueue to hand the sweep to the cart-api
// replicas through RabbitMQ.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JHPush/cart-service/configs"
	"github.com/JHPush/cart-service/internal/adapter/queue"
	"github.com/JHPush/cart-service/internal/bootstrap"
	"github.com/JHPush/cart-service/internal/logging"
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	enqueue := flag.Bool("enqueue", false, "publish a sweep command instead of sweeping in-process")
	flag.Parse()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg, err := configs.Load("configs", env)
	if err != nil {
		logging.Base().Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.Init(logging.Options{Component: "cart-cleanup", Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *enqueue {
		if err := publishSweep(ctx, cfg); err != nil {
			log.Error("enqueue sweep", "err", err)
			os.Exit(1)
		}
		log.Info("sweep enqueued", "exchange", cfg.Rabbit.Exchange, "routing_key", cfg.Rabbit.RoutingKey)
		return
	}

	core, err := bootstrap.NewCore(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		log.Error("init", "err", err)
		os.Exit(1)
	}
	defer core.Close()

	n, err := core.Sweeper.Run(ctx)
	switch {
	case errors.Is(err, usecase.ErrSweepInProgress):
		log.Info("another sweep holds the lock, nothing to do")
	case err != nil:
		log.Error("sweep failed", "err", err)
		core.Close()
		os.Exit(1)
	default:
		log.Info("expired cart entries deleted", "count", n)
	}
}

func publishSweep(ctx context.Context, cfg configs.Config) error {
	if cfg.Rabbit.URL == "" {
		return errors.New("rabbitmq.url is not configured")
	}
	conn, ch, err := bootstrap.OpenRabbit(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	pub, err := queue.NewSweepPublisher(ch, queue.Topology{
		Exchange:   cfg.Rabbit.Exchange,
		Queue:      cfg.Rabbit.SweepQueue,
		RoutingKey: cfg.Rabbit.RoutingKey,
	})
	if err != nil {
		return err
	}

	host, _ := os.Hostname()
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return pub.Publish(pctx, usecase.SweepCmd{RequestedBy: "cart-cleanup@" + host, RequestedAt: time.Now().UTC()})
}
