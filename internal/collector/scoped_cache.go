package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bsforge/collector/internal/cache"
	"github.com/bsforge/collector/internal/collector/sources"
	"github.com/bsforge/collector/internal/model"
)

const DefaultScopedCacheTTL = 30 * time.Minute

// ScopedCache remembers the output of a scoped source for one exact set of
// overrides, so channels with identical params share a fetch for a while.
type ScopedCache interface {
	Get(ctx context.Context, source string, cfg sources.Config) ([]model.RawTopic, bool, error)
	Set(ctx context.Context, source string, cfg sources.Config, topics []model.RawTopic) error
}

type JSONScopedCache struct {
	cache cache.JSONCache
	ttl   time.Duration
}

func NewJSONScopedCache(c cache.JSONCache, ttl time.Duration) *JSONScopedCache {
	if ttl <= 0 {
		ttl = DefaultScopedCacheTTL
	}
	return &JSONScopedCache{cache: c, ttl: ttl}
}

func scopedKey(source string, cfg sources.Config) string {
	b, _ := json.Marshal(cfg)
	sum := sha256.Sum256(append([]byte(source+"|"), b...))
	return "scoped:" + source + ":" + hex.EncodeToString(sum[:8])
}

func (c *JSONScopedCache) Get(ctx context.Context, source string, cfg sources.Config) ([]model.RawTopic, bool, error) {
	var out []model.RawTopic
	hit, err := c.cache.GetJSON(ctx, scopedKey(source, cfg), &out)
	if err != nil || !hit {
		return nil, false, err
	}
	return out, true, nil
}

func (c *JSONScopedCache) Set(ctx context.Context, source string, cfg sources.Config, topics []model.RawTopic) error {
	return c.cache.SetJSON(ctx, scopedKey(source, cfg), topics, c.ttl)
}
