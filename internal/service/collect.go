package service

import (
	"context"
	"fmt"

	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
)

type ChannelLister interface {
	ListEnabled(ctx context.Context) ([]model.Channel, error)
}

type ChannelCollector interface {
	CollectForChannel(ctx context.Context, ch model.Channel, cfg collector.CollectionConfig) ([]model.Topic, *collector.CollectionStats, error)
}

// CollectService runs the pipeline for stored channels. It is shared by
// the cron functions, the HTTP trigger and the CLI.
type CollectService struct {
	channels ChannelLister
	pipeline ChannelCollector
	log      zerolog.Logger
}

func NewCollectService(channels ChannelLister, pipeline ChannelCollector, log zerolog.Logger) *CollectService {
	return &CollectService{channels: channels, pipeline: pipeline, log: log.With().Str("component", "collect").Logger()}
}

type ChannelRunResult struct {
	ChannelID string                     `json:"channel_id"`
	Channel   string                     `json:"channel"`
	Topics    []model.Topic              `json:"topics"`
	Stats     *collector.CollectionStats `json:"stats"`
	Error     string                     `json:"error,omitempty"`
}

type BatchResult struct {
	Channels int                `json:"channels"`
	Saved    int                `json:"saved"`
	Failed   int                `json:"failed"`
	Results  []ChannelRunResult `json:"results"`
}

// RunChannel parses the channel's document and runs one collection. A dry
// run keeps results transient.
func (s *CollectService) RunChannel(ctx context.Context, ch model.Channel, dryRun bool) ([]model.Topic, *collector.CollectionStats, error) {
	cfg, err := collector.ParseChannelConfig([]byte(ch.ConfigYAML))
	if err != nil {
		return nil, nil, fmt.Errorf("channel %s: %w", ch.Name, err)
	}
	cfg.SaveToDB = !dryRun
	return s.pipeline.CollectForChannel(ctx, ch, cfg)
}

// RunAll collects every enabled channel in turn. One channel failing does
// not stop the others; it is counted and reported.
func (s *CollectService) RunAll(ctx context.Context) (*BatchResult, error) {
	channels, err := s.channels.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	out := &BatchResult{Channels: len(channels), Results: make([]ChannelRunResult, 0, len(channels))}
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		topics, stats, err := s.RunChannel(ctx, ch, false)
		res := ChannelRunResult{ChannelID: ch.ID, Channel: ch.Name, Topics: topics, Stats: stats}
		if err != nil {
			out.Failed++
			res.Error = err.Error()
			s.log.Error().Err(err).Str("channel_id", ch.ID).Msg("channel collection failed")
		} else {
			out.Saved += len(topics)
		}
		out.Results = append(out.Results, res)
	}
	s.log.Info().Int("channels", out.Channels).Int("saved", out.Saved).Int("failed", out.Failed).Msg("batch finished")
	return out, nil
}
