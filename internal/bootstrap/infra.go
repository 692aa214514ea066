package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JHPush/cart-service/configs"
	"github.com/JHPush/cart-service/internal/adapter/cache"
	"github.com/JHPush/cart-service/internal/adapter/catalog"
	"github.com/JHPush/cart-service/internal/adapter/observ"
	"github.com/JHPush/cart-service/internal/adapter/repo"
	"github.com/JHPush/cart-service/internal/usecase"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Core is the cart engine plus the stores it runs on, shared by every binary.
type Core struct {
	DB      *sql.DB
	Redis   *redis.Client
	Cart    *usecase.CartService
	Sweeper *usecase.ExpirySweeper
}

func (c *Core) Close() {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

// NewCore opens MySQL and Redis and builds the cart engine on top of them.
func NewCore(ctx context.Context, cfg configs.Config, reg prometheus.Registerer) (*Core, error) {
	db, err := OpenMySQL(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := OpenRedis(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	products := catalog.NewHTTPProductClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, cfg.Catalog.MaxTries,
		catalog.WithUserAgent(cfg.App.Name))

	svc := usecase.NewCartService(repo.NewMySQLCartRepo(db), products,
		usecase.WithMetrics(observ.NewCartMetrics(reg)),
		usecase.WithMaxMergeAttempts(cfg.Cart.MaxMergeAttempts),
		usecase.WithListConcurrency(cfg.Cart.ListConcurrency),
	)

	return &Core{
		DB:      db,
		Redis:   rdb,
		Cart:    svc,
		Sweeper: usecase.NewExpirySweeper(svc, cache.NewRedisLocker(rdb), cfg.Sweep.LockTTL),
	}, nil
}

func OpenMySQL(ctx context.Context, cfg configs.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(orDefault(cfg.MySQL.ConnMaxLifetime, 30*time.Minute))
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return db, nil
}

func OpenRedis(ctx context.Context, cfg configs.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// OpenRabbit dials the broker and opens one channel. Closing the connection
// closes the channel too.
func OpenRabbit(cfg configs.Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return conn, ch, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
