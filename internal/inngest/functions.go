package inngest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/bsforge/collector/internal/service"
	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"github.com/rs/zerolog"
)

const (
	refreshPoolCron  = "0 * * * *"
	expireTopicsCron = "15 * * * *"
)

type ChannelGetter interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
}

type TopicExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type PoolRefresher interface {
	RefreshGlobalPool(ctx context.Context) (map[string]int, error)
}

// Deps wires the functions. Pool is optional; without it the refresh
// function is not registered.
type Deps struct {
	Collect     *service.CollectService
	Channels    ChannelGetter
	Topics      TopicExpirer
	Pool        PoolRefresher
	CollectCron string
	Logger      zerolog.Logger
	Now         func() time.Time
}

type CollectRequestedData struct {
	ChannelID string `json:"channel_id"`
	DryRun    bool   `json:"dry_run"`
}

// NewHandler registers all Inngest functions and returns the HTTP handler.
func NewHandler(client inngestgo.Client, deps Deps) (http.Handler, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.CollectCron == "" {
		deps.CollectCron = "0 */3 * * *"
	}

	fns := []func(inngestgo.Client, Deps) (inngestgo.ServableFunction, error){
		collectTopicsFn,
		collectChannelFn,
		expireTopicsFn,
	}
	if deps.Pool != nil {
		fns = append(fns, refreshGlobalPoolFn)
	}
	for _, fn := range fns {
		if _, err := fn(client, deps); err != nil {
			return nil, fmt.Errorf("register function: %w", err)
		}
	}
	return client.Serve(), nil
}

// cron/collect-topics runs every enabled channel. A failing channel is
// counted, not fatal.
func collectTopicsFn(client inngestgo.Client, deps Deps) (inngestgo.ServableFunction, error) {
	log := deps.Logger.With().Str("fn", "collect-topics").Logger()
	return inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{ID: "collect-topics", Name: "Collect Topics"},
		inngestgo.CronTrigger(deps.CollectCron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			res, err := deps.Collect.RunAll(ctx)
			if err != nil {
				log.Error().Err(err).Msg("batch failed")
				return nil, err
			}
			return map[string]int{
				"channels": res.Channels,
				"saved":    res.Saved,
				"failed":   res.Failed,
			}, nil
		},
	)
}

// event/collect-channel runs one channel on demand.
func collectChannelFn(client inngestgo.Client, deps Deps) (inngestgo.ServableFunction, error) {
	log := deps.Logger.With().Str("fn", "collect-channel").Logger()
	return inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{ID: "collect-channel", Name: "Collect Channel"},
		inngestgo.EventTrigger(service.EventCollectRequested, nil),
		func(ctx context.Context, input inngestgo.Input[CollectRequestedData]) (any, error) {
			data := input.Event.Data
			if data.ChannelID == "" {
				return nil, fmt.Errorf("channel_id is required")
			}
			ch, err := deps.Channels.Get(ctx, data.ChannelID)
			if err != nil {
				return nil, fmt.Errorf("load channel %s: %w", data.ChannelID, err)
			}
			log.Info().Str("channel_id", ch.ID).Bool("dry_run", data.DryRun).Msg("start")

			res, err := step.Run(ctx, "collect", func(ctx context.Context) (service.ChannelRunResult, error) {
				topics, stats, err := deps.Collect.RunChannel(ctx, *ch, data.DryRun)
				if err != nil {
					return service.ChannelRunResult{}, err
				}
				return service.ChannelRunResult{ChannelID: ch.ID, Channel: ch.Name, Topics: topics, Stats: stats}, nil
			})
			if err != nil {
				log.Error().Err(err).Str("channel_id", ch.ID).Msg("collect failed")
				return nil, err
			}
			return map[string]any{
				"channel_id": ch.ID,
				"topics":     len(res.Topics),
				"stats":      res.Stats,
			}, nil
		},
	)
}

// cron/refresh-global-pool refills the shared snapshot of global sources.
func refreshGlobalPoolFn(client inngestgo.Client, deps Deps) (inngestgo.ServableFunction, error) {
	log := deps.Logger.With().Str("fn", "refresh-global-pool").Logger()
	return inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{ID: "refresh-global-pool", Name: "Refresh Global Pool"},
		inngestgo.CronTrigger(refreshPoolCron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			counts, err := deps.Pool.RefreshGlobalPool(ctx)
			if err != nil {
				log.Error().Err(err).Msg("refresh failed")
				return nil, err
			}
			return counts, nil
		},
	)
}

// cron/expire-topics moves topics past their expiry to expired.
func expireTopicsFn(client inngestgo.Client, deps Deps) (inngestgo.ServableFunction, error) {
	log := deps.Logger.With().Str("fn", "expire-topics").Logger()
	return inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{ID: "expire-topics", Name: "Expire Topics"},
		inngestgo.CronTrigger(expireTopicsCron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			n, err := deps.Topics.ExpireStale(ctx, deps.Now().UTC())
			if err != nil {
				return nil, fmt.Errorf("expire topics: %w", err)
			}
			log.Info().Int64("expired", n).Msg("done")
			return map[string]int64{"expired": n}, nil
		},
	)
}
