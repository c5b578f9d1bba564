package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRunStatsTTL keeps a week of hourly buckets plus a day of slack.
const DefaultRunStatsTTL = 8 * 24 * time.Hour

const savedByChannelField = "saved@"

// RunCounters are the totals one collection run contributes. Deduplicated
// counts items dropped as already seen.
type RunCounters struct {
	Runs         int64 `json:"runs"`
	Collected    int64 `json:"collected"`
	Deduplicated int64 `json:"deduplicated"`
	Saved        int64 `json:"saved"`
	Errors       int64 `json:"errors"`
}

func (c *RunCounters) add(o RunCounters) {
	c.Runs += o.Runs
	c.Collected += o.Collected
	c.Deduplicated += o.Deduplicated
	c.Saved += o.Saved
	c.Errors += o.Errors
}

func (c RunCounters) fields() map[string]int64 {
	return map[string]int64{
		"runs":         c.Runs,
		"collected":    c.Collected,
		"deduplicated": c.Deduplicated,
		"saved":        c.Saved,
		"errors":       c.Errors,
	}
}

// RunSummary is RunCounters over a window plus saved topics per channel.
type RunSummary struct {
	RunCounters
	SavedByChannel map[string]int64 `json:"saved_by_channel"`
}

type RunStats interface {
	RecordRun(ctx context.Context, channelID string, c RunCounters, at time.Time) error
	SumRuns(ctx context.Context, from, to time.Time) (RunSummary, error)
}

type NoopRunStats struct{}

func (NoopRunStats) RecordRun(context.Context, string, RunCounters, time.Time) error { return nil }
func (NoopRunStats) SumRuns(context.Context, time.Time, time.Time) (RunSummary, error) {
	return RunSummary{SavedByChannel: map[string]int64{}}, nil
}

// RedisRunStats keeps one hash per UTC hour.
type RedisRunStats struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRunStats returns NoopRunStats when client is nil.
func NewRunStats(client *redis.Client, prefix string, ttl time.Duration) RunStats {
	if client == nil {
		return NoopRunStats{}
	}
	if ttl <= 0 {
		ttl = DefaultRunStatsTTL
	}
	return &RedisRunStats{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisRunStats) bucketKey(t time.Time) string {
	k := "collector:runs:" + t.UTC().Format("2006010215")
	if s.prefix != "" {
		k = s.prefix + ":" + k
	}
	return k
}

func (s *RedisRunStats) RecordRun(ctx context.Context, channelID string, c RunCounters, at time.Time) error {
	key := s.bucketKey(at)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for field, n := range c.fields() {
			if n != 0 {
				p.HIncrBy(ctx, key, field, n)
			}
		}
		if channelID != "" && c.Saved != 0 {
			p.HIncrBy(ctx, key, savedByChannelField+channelID, c.Saved)
		}
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// SumRuns adds up every hourly bucket touching [from, to].
func (s *RedisRunStats) SumRuns(ctx context.Context, from, to time.Time) (RunSummary, error) {
	out := RunSummary{SavedByChannel: map[string]int64{}}
	start := from.UTC().Truncate(time.Hour)
	end := to.UTC().Truncate(time.Hour)
	if end.Before(start) {
		return out, nil
	}
	pipe := s.client.Pipeline()
	var cmds []*redis.MapStringStringCmd
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		cmds = append(cmds, pipe.HGetAll(ctx, s.bucketKey(t)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return out, err
	}
	for _, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil {
			continue
		}
		out.RunCounters.add(parseBucket(m, out.SavedByChannel))
	}
	return out, nil
}

func parseBucket(m map[string]string, byChannel map[string]int64) RunCounters {
	var c RunCounters
	for field, v := range m {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		if ch, ok := strings.CutPrefix(field, savedByChannelField); ok {
			byChannel[ch] += n
			continue
		}
		switch field {
		case "runs":
			c.Runs = n
		case "collected":
			c.Collected = n
		case "deduplicated":
			c.Deduplicated = n
		case "saved":
			c.Saved = n
		case "errors":
			c.Errors = n
		}
	}
	return c
}
