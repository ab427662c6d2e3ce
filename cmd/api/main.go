// cmd/api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/xwell/ptgen/internal/cache"
	"github.com/xwell/ptgen/internal/config"
	"github.com/xwell/ptgen/internal/http/routes"
	"github.com/xwell/ptgen/internal/providers"
	"github.com/xwell/ptgen/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("port", cfg.Port).Msg("starting gateway")

	// Cache tiers, both optional
	var objects cache.ObjectStore
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		objects = cache.NewRedisStore(rdb, cfg.Cache.ObjectTTL)
	}
	var rows cache.RowStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		store := cache.NewPostgresStore(pool)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("db schema error: %v", err)
		}
		rows = store
	}
	var cacheOpts []cache.Option
	if cfg.Cache.SingleFlight {
		cacheOpts = append(cacheOpts, cache.WithSingleFlight())
	}
	twoTier := cache.New(objects, rows, cfg.CacheBypassed, logger, cacheOpts...)

	// Background refresh needs both redis (queue) and postgres (staleness)
	var queue routes.Enqueuer
	if cfg.RedisAddr != "" && rows != nil {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer client.Close()
		queue = client
	}

	s := routes.New(routes.ServerOptions{
		Cfg:      cfg,
		Registry: providers.BuildRegistry(cfg, logger),
		Cache:    twoTier,
		Limiter:  ratelimit.NewDefault(),
		Queue:    queue,
		Log:      logger,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h}
	log.Fatal(srv.ListenAndServe())
}
