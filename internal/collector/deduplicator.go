package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/redis/go-redis/v9"
)

// GlobalScope is the dedup scope shared by every channel.
const GlobalScope = "global"

const DefaultDedupTTL = 7 * 24 * time.Hour

// Deduplicator remembers fingerprints of topics already seen in a scope.
// Check and mark are separate calls; two concurrent runs may both see an
// item as new, and the store's unique constraint settles it.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, n model.NormalizedTopic, scope string) (bool, error)
	MarkAsSeen(ctx context.Context, n model.NormalizedTopic, scope string) error
}

func Fingerprint(titleNormalized string) string {
	sum := sha256.Sum256([]byte(titleNormalized))
	return hex.EncodeToString(sum[:])
}

func dedupKey(prefix, scope, fingerprint string) string {
	k := "topic:hash:" + scope + ":" + fingerprint
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}

type RedisDeduplicator struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	global bool
}

// NewRedisDeduplicator stores fingerprints as plain keys with a TTL. When
// withGlobal is set, every check also consults the global scope and every
// mark writes to it.
func NewRedisDeduplicator(client redis.Cmdable, prefix string, ttl time.Duration, withGlobal bool) *RedisDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl, global: withGlobal}
}

func (d *RedisDeduplicator) keys(n model.NormalizedTopic, scope string) []string {
	fp := Fingerprint(n.TitleNormalized)
	keys := []string{dedupKey(d.prefix, scope, fp)}
	if d.global && scope != GlobalScope {
		keys = append(keys, dedupKey(d.prefix, GlobalScope, fp))
	}
	return keys
}

func (d *RedisDeduplicator) IsDuplicate(ctx context.Context, n model.NormalizedTopic, scope string) (bool, error) {
	count, err := d.client.Exists(ctx, d.keys(n, scope)...).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *RedisDeduplicator) MarkAsSeen(ctx context.Context, n model.NormalizedTopic, scope string) error {
	keys := d.keys(n, scope)
	_, err := d.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Set(ctx, k, "1", d.ttl)
		}
		return nil
	})
	return err
}

// MemoryDeduplicator is the process-local fallback used when no Redis is
// configured. Expired entries are dropped lazily.
type MemoryDeduplicator struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduplicator{ttl: ttl, now: time.Now, seen: map[string]time.Time{}}
}

func (d *MemoryDeduplicator) IsDuplicate(_ context.Context, n model.NormalizedTopic, scope string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := dedupKey("", scope, Fingerprint(n.TitleNormalized))
	exp, ok := d.seen[key]
	if !ok {
		return false, nil
	}
	if !d.now().Before(exp) {
		delete(d.seen, key)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDeduplicator) MarkAsSeen(_ context.Context, n model.NormalizedTopic, scope string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[dedupKey("", scope, Fingerprint(n.TitleNormalized))] = d.now().Add(d.ttl)
	return nil
}
