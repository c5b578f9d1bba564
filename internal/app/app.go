// Package app wires the collector's stores, caches and pipeline from
// process configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bsforge/collector/internal/cache"
	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/collector/sources"
	"github.com/bsforge/collector/internal/config"
	"github.com/bsforge/collector/internal/repository"
	"github.com/bsforge/collector/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Cache    cache.JSONCache
	RunStats cache.RunStats
	Sources  *sources.Registry
	Pool     *collector.RedisGlobalPool
	Channels *repository.ChannelRepo
	Topics   *repository.TopicRepo
	Pipeline *collector.Pipeline
	Collect  *service.CollectService
	Worker   *service.WorkerClient
	Log      zerolog.Logger
}

// Build opens Postgres and, when configured, Redis. Without Redis the
// pipeline dedups in memory and runs without the global pool and scoped
// cache. Events may be nil.
func Build(ctx context.Context, cfg *config.Config, events collector.EventPublisher, log zerolog.Logger) (*App, error) {
	db, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a := &App{
		DB:       db,
		Channels: repository.NewChannelRepo(db),
		Topics:   repository.NewTopicRepo(db),
		Worker:   service.NewWorkerClient(cfg.WorkerURL),
		Log:      log,
	}

	rdb, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	a.Cache = cache.New(rdb, cfg.RedisPrefix)
	a.RunStats = cache.NewRunStats(rdb, cfg.RedisPrefix, cache.DefaultRunStatsTTL)
	a.Sources = sources.NewDefaultRegistry(sources.Deps{Logger: log, YouTubeAPIKey: cfg.YouTubeAPIKey})

	scorer, err := collector.NewScorer(collector.DefaultScorerConfig())
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := collector.Deps{
		Sources:    a.Sources,
		Normalizer: collector.NewNormalizer(a.Worker, a.Worker, log),
		Scorer:     scorer,
		Store:      a.Topics,
		Logger:     log,
		Events:     events,
		TopN:       cfg.TopN,
	}
	if rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed, continuing; per-item errors will fall back")
		}
		deps.Deduplicator = collector.NewRedisDeduplicator(rdb, cfg.RedisPrefix, cfg.DedupTTL, cfg.DedupGlobal)
		a.Pool = collector.NewRedisGlobalPool(rdb, cfg.RedisPrefix, cfg.GlobalPoolTTL, log)
		deps.Pool = a.Pool
		deps.ScopedCache = collector.NewJSONScopedCache(a.Cache, collector.DefaultScopedCacheTTL)
		deps.Metrics = a.RunStats
	} else {
		log.Warn().Msg("REDIS_URL not set, using in-memory dedup")
		deps.Deduplicator = collector.NewMemoryDeduplicator(cfg.DedupTTL)
	}

	p, err := collector.NewPipeline(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pipeline = p
	a.Collect = service.NewCollectService(a.Channels, p, log)
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
