package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultGlobalPoolTTL = 4 * time.Hour

// GlobalPool holds the latest snapshot of each global source so channels
// share one fetch.
type GlobalPool interface {
	Get(ctx context.Context, source string) ([]model.RawTopic, error)
	Replace(ctx context.Context, source string, topics []model.RawTopic) error
}

type PoolMeta struct {
	Source      string    `json:"source"`
	Count       int       `json:"count"`
	CollectedAt time.Time `json:"collected_at"`
}

type RedisGlobalPool struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewRedisGlobalPool(client redis.UniversalClient, prefix string, ttl time.Duration, log zerolog.Logger) *RedisGlobalPool {
	if ttl <= 0 {
		ttl = DefaultGlobalPoolTTL
	}
	return &RedisGlobalPool{client: client, prefix: prefix, ttl: ttl, now: time.Now, log: log}
}

func (p *RedisGlobalPool) listKey(source string) string {
	k := "global_pool:" + source
	if p.prefix != "" {
		k = p.prefix + ":" + k
	}
	return k
}

func (p *RedisGlobalPool) metaKey(source string) string { return p.listKey(source) + ":meta" }

// Get returns the pooled snapshot, or nil when the pool has none. Entries
// that fail to decode are skipped.
func (p *RedisGlobalPool) Get(ctx context.Context, source string) ([]model.RawTopic, error) {
	items, err := p.client.LRange(ctx, p.listKey(source), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]model.RawTopic, 0, len(items))
	for _, s := range items {
		var raw model.RawTopic
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			p.log.Warn().Err(err).Str("source", source).Msg("global pool entry undecodable")
			continue
		}
		out = append(out, raw)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Replace swaps the snapshot for source in one MULTI block.
func (p *RedisGlobalPool) Replace(ctx context.Context, source string, topics []model.RawTopic) error {
	values := make([]any, 0, len(topics))
	for _, t := range topics {
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	meta, err := json.Marshal(PoolMeta{Source: source, Count: len(topics), CollectedAt: p.now().UTC()})
	if err != nil {
		return err
	}
	key := p.listKey(source)
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, p.ttl)
		}
		pipe.Set(ctx, p.metaKey(source), meta, p.ttl)
		return nil
	})
	return err
}

func (p *RedisGlobalPool) Meta(ctx context.Context, source string) (*PoolMeta, error) {
	s, err := p.client.Get(ctx, p.metaKey(source)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m PoolMeta
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Sources lists, sorted, the sources that currently have a snapshot.
func (p *RedisGlobalPool) Sources(ctx context.Context) ([]string, error) {
	prefix := p.listKey("")
	var out []string
	iter := p.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if strings.HasSuffix(k, ":meta") {
			continue
		}
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(out)
	return out, iter.Err()
}

func (p *RedisGlobalPool) Clear(ctx context.Context, source string) error {
	return p.client.Del(ctx, p.listKey(source), p.metaKey(source)).Err()
}
