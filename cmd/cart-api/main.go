package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/JHPush/cart-service/cmd/cart-api/app"
	"github.com/JHPush/cart-service/configs"
	"github.com/JHPush/cart-service/internal/logging"
)

func main() {
	env := os.Getenv("APP_ENV") // dev | staging | prod
	if env == "" {
		env = "dev"
	}

	cfg, err := configs.Load("configs", env)
	if err != nil {
		logging.Base().Error("load config", "err", err)
		os.Exit(1)
	}

	log := logging.Init(logging.Options{Component: cfg.App.Name, FilePath: cfg.App.LogFile, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := app.InitWithConfig(ctx, cfg)
	if err != nil {
		log.Error("init", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	log.Info("cart-api listening", "env", env, "addr", cfg.App.HTTPAddr)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("cart-api stopped", "err", err)
		os.Exit(1)
	}
	log.Info("cart-api shut down")
}
