package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/internal/cache"
	"github.com/xwell/ptgen/internal/config"
	"github.com/xwell/ptgen/internal/jobs"
	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/providers"
)

const refreshTimeout = 60 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

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
		rows = cache.NewPostgresStore(pool)
	}
	twoTier := cache.New(objects, rows, cfg.CacheBypassed, logger)
	registry := providers.BuildRegistry(cfg, logger)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			"refresh": 10,
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskRefreshRecord, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.RefreshPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad refresh payload, dropping")
			return nil
		}

		d, ok := registry.Get(p.Source)
		if !ok {
			// source no longer configured, nothing to refresh
			logger.Warn().Str("source", p.Source).Msg("unknown source in refresh task")
			return nil
		}

		fetchSID := p.SID
		if p.Namespace != "" {
			fetchSID = p.Namespace + "/" + p.SID
		}

		fctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()

		start := time.Now()
		rec, err := d.Provider.Fetch(fctx, fetchSID)
		if err != nil {
			switch mediainfo.KindOf(err) {
			case mediainfo.KindUpstream, mediainfo.KindRateLimited:
				logger.Warn().Err(err).Str("source", p.Source).Str("sid", p.SID).
					Msg("refresh failed, will retry")
				return err
			}
			// validation and not-found never improve on retry
			logger.Info().Err(err).Str("source", p.Source).Str("sid", p.SID).
				Msg("refresh dropped")
			return nil
		}

		twoTier.Put(ctx, cache.Key{Source: p.Source, Namespace: p.Namespace, SID: p.SID}, rec)
		logger.Info().Str("source", p.Source).Str("sid", p.SID).
			Dur("duration", time.Since(start)).Msg("record refreshed")
		return nil
	})

	logger.Info().Msg("worker running")
	log.Fatal(srv.Run(mux))
}
