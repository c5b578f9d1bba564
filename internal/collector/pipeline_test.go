package collector

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsforge/collector/internal/cache"
	"github.com/bsforge/collector/internal/collector/sources"
	"github.com/bsforge/collector/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	name   string
	topics []model.RawTopic
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Collect(context.Context) ([]model.RawTopic, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.topics, nil
}

type memoryStore struct {
	mu     sync.Mutex
	rows   map[string]model.Topic
	failOn error
}

func newMemoryStore() *memoryStore { return &memoryStore{rows: map[string]model.Topic{}} }

func (s *memoryStore) SaveNew(_ context.Context, channelID string, topics []model.Topic) ([]model.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return nil, s.failOn
	}
	var saved []model.Topic
	staged := map[string]model.Topic{}
	for _, t := range topics {
		key := channelID + "/" + t.ContentHash
		if _, ok := s.rows[key]; ok {
			continue
		}
		if _, ok := staged[key]; ok {
			continue
		}
		staged[key] = t
		saved = append(saved, t)
	}
	for k, v := range staged {
		s.rows[k] = v
	}
	return saved, nil
}

type brokenDedup struct{}

func (brokenDedup) IsDuplicate(context.Context, model.NormalizedTopic, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (brokenDedup) MarkAsSeen(context.Context, model.NormalizedTopic, string) error {
	return errors.New("redis: connection refused")
}

type picky struct {
	inner TopicNormalizer
	fail  string
}

func (p picky) Normalize(ctx context.Context, raw model.RawTopic, lang string) (model.NormalizedTopic, error) {
	if raw.Title == p.fail {
		return model.NormalizedTopic{}, errors.New("classifier exploded")
	}
	return p.inner.Normalize(ctx, raw, lang)
}

func raw(source, title, url string) model.RawTopic {
	return model.RawTopic{SourceName: source, Title: title, SourceURL: url}
}

func registryWith(srcs ...*fakeSource) *sources.Registry {
	reg := sources.NewRegistry(sources.Deps{})
	for _, s := range srcs {
		reg.Register(s.name, false, func(string, sources.Config, sources.Deps) (sources.Source, error) {
			return s, nil
		})
	}
	return reg
}

func newTestPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	if deps.Normalizer == nil {
		deps.Normalizer = NewNormalizer(nil, nil, zerolog.Nop())
	}
	if deps.Deduplicator == nil {
		deps.Deduplicator = NewMemoryDeduplicator(time.Hour)
	}
	if deps.Scorer == nil {
		s, err := NewScorer(DefaultScorerConfig())
		if err != nil {
			t.Fatalf("NewScorer: %v", err)
		}
		deps.Scorer = s
	}
	if deps.Store == nil {
		deps.Store = newMemoryStore()
	}
	deps.Now = func() time.Time { return testNow }
	deps.Logger = zerolog.Nop()
	p, err := NewPipeline(deps)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func assertMonotonic(t *testing.T, s *CollectionStats) {
	t.Helper()
	if !(s.SavedCount <= s.DeduplicatedCount && s.DeduplicatedCount <= s.FilteredCount &&
		s.FilteredCount <= s.NormalizedCount && s.NormalizedCount <= s.TotalCollected) {
		t.Fatalf("stats not monotonic: %+v", s)
	}
}

var channel = model.Channel{ID: "ch-1", Name: "tech"}

func TestCollectRequiresEnabledSources(t *testing.T) {
	p := newTestPipeline(t, Deps{Sources: registryWith()})
	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{SaveToDB: true})
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if topics != nil {
		t.Fatalf("topics = %v, want nil", topics)
	}
	if stats == nil || stats.TotalCollected != 0 || stats.SavedCount != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestUnknownSourceFailsBeforeFetching(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{raw("alpha", "x", "https://e/x")}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a)})
	_, _, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha", "nope"},
	})
	var cerr *ConfigError
	if !errors.As(err, &cerr) || !errors.Is(err, sources.ErrUnknownSource) {
		t.Fatalf("err = %v", err)
	}
	if a.calls != 0 {
		t.Fatalf("alpha was fetched %d times before config validation", a.calls)
	}
}

func TestIntraBatchDedup(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{raw("alpha", "Go 1.24 Released", "https://a.example/go")}}
	b := &fakeSource{name: "beta", topics: []model.RawTopic{raw("beta", "go 1.24   released", "https://b.example/go")}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a, b)})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha", "beta"},
		SaveToDB:       true,
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if stats.FilteredCount != 2 || stats.DeduplicatedCount != 1 {
		t.Fatalf("filtered=%d dedup=%d, want 2/1", stats.FilteredCount, stats.DeduplicatedCount)
	}
	if len(topics) != 1 || topics[0].SourceURL != "https://a.example/go" {
		t.Fatalf("topics = %+v", topics)
	}
	assertMonotonic(t, stats)
}

func TestExcludeWinsOverInclude(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "AI startups pivot to crypto", "https://e/1"),
		raw("alpha", "AI model beats benchmark", "https://e/2"),
		raw("alpha", "Gardening tips", "https://e/3"),
	}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a)})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha"},
		Include:        []string{"ai"},
		Exclude:        []string{"crypto"},
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if stats.NormalizedCount != 3 || stats.FilteredCount != 1 {
		t.Fatalf("normalized=%d filtered=%d", stats.NormalizedCount, stats.FilteredCount)
	}
	if len(topics) != 1 || topics[0].SourceURL != "https://e/2" {
		t.Fatalf("topics = %+v", topics)
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "First", "https://e/1"),
		raw("alpha", "Second", "https://e/2"),
	}}
	store := newMemoryStore()
	cfg := CollectionConfig{EnabledSources: []string{"alpha"}, SaveToDB: true}

	first := newTestPipeline(t, Deps{Sources: registryWith(a), Store: store})
	saved1, _, err := first.CollectForChannel(context.Background(), channel, cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(saved1) != 2 {
		t.Fatalf("first run saved %d, want 2", len(saved1))
	}

	// Fresh dedup cache, as if the fingerprints had expired.
	second := newTestPipeline(t, Deps{Sources: registryWith(a), Store: store})
	saved2, stats, err := second.CollectForChannel(context.Background(), channel, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(saved2) != 0 || stats.SavedCount != 0 {
		t.Fatalf("second run saved %d (%d), want 0", len(saved2), stats.SavedCount)
	}
	if stats.DeduplicatedCount != 2 {
		t.Fatalf("dedup = %d, want 2", stats.DeduplicatedCount)
	}
	if len(store.rows) != 2 {
		t.Fatalf("store has %d rows, want 2", len(store.rows))
	}
}

func TestPreviewDoesNotConsumeDedup(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "First", "https://e/1"),
		raw("alpha", "Second", "https://e/2"),
	}}
	dedup := NewMemoryDeduplicator(time.Hour)
	store := newMemoryStore()
	p := newTestPipeline(t, Deps{Sources: registryWith(a), Deduplicator: dedup, Store: store})

	preview, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{EnabledSources: []string{"alpha"}})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(preview) != 2 || stats.SavedCount != 0 || len(store.rows) != 0 {
		t.Fatalf("preview topics=%d saved=%d rows=%d", len(preview), stats.SavedCount, len(store.rows))
	}

	saved, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{EnabledSources: []string{"alpha"}, SaveToDB: true})
	if err != nil {
		t.Fatalf("saving run: %v", err)
	}
	if len(saved) != 2 || stats.DeduplicatedCount != 2 || len(store.rows) != 2 {
		t.Fatalf("saving run saved=%d dedup=%d rows=%d, want 2/2/2", len(saved), stats.DeduplicatedCount, len(store.rows))
	}

	// The saving run marks its topics, so a later run sees them.
	_, stats, err = p.CollectForChannel(context.Background(), channel, CollectionConfig{EnabledSources: []string{"alpha"}})
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	if stats.DeduplicatedCount != 0 {
		t.Fatalf("second preview dedup = %d, want 0", stats.DeduplicatedCount)
	}
}

func TestPreviewStillDedupsWithinBatch(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "Go 1.24 Released", "https://a.example/go"),
		raw("alpha", "go 1.24 released", "https://b.example/go"),
	}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a)})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{EnabledSources: []string{"alpha"}})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if len(topics) != 1 || stats.DeduplicatedCount != 1 {
		t.Fatalf("topics=%d dedup=%d, want 1/1", len(topics), stats.DeduplicatedCount)
	}
}

type recordedRun struct {
	channel string
	c       cache.RunCounters
	at      time.Time
}

type runRecorder struct{ runs []recordedRun }

func (r *runRecorder) RecordRun(_ context.Context, channelID string, c cache.RunCounters, at time.Time) error {
	r.runs = append(r.runs, recordedRun{channelID, c, at})
	return nil
}

func TestRunCountersRecordedPerRun(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "First", "https://e/1"),
		raw("alpha", "first", "https://e/1b"),
		raw("alpha", "Second", "https://e/2"),
	}}
	rec := &runRecorder{}
	p := newTestPipeline(t, Deps{Sources: registryWith(a), Metrics: rec})

	if _, _, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{EnabledSources: []string{"alpha"}, SaveToDB: true}); err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	want := []recordedRun{{
		channel: channel.ID,
		c:       cache.RunCounters{Runs: 1, Collected: 3, Deduplicated: 1, Saved: 2},
		at:      testNow,
	}}
	if diff := cmp.Diff(want, rec.runs, cmp.AllowUnexported(recordedRun{})); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestSavedTopicsAreApprovedAndExpireInAWeek(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{raw("alpha", "Show HN: A tiny database", "https://e/db")}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a)})

	topics, _, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha"},
		SaveToDB:       true,
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("len = %d", len(topics))
	}
	got := topics[0]
	if got.Status != model.TopicApproved {
		t.Fatalf("status = %s, want approved", got.Status)
	}
	if d := got.ExpiresAt.Sub(got.CreatedAt); d != 7*24*time.Hour {
		t.Fatalf("expires - created = %v", d)
	}
	if got.TitleNormalized != "a tiny database" {
		t.Fatalf("title_normalized = %q", got.TitleNormalized)
	}
	if got.ContentHash != ContentHash("a tiny database", "https://e/db") || len(got.ContentHash) != 64 {
		t.Fatalf("content_hash = %q", got.ContentHash)
	}
	if got.ChannelID != channel.ID || got.SourceID == nil || *got.SourceID != "alpha" {
		t.Fatalf("ownership = %q %v", got.ChannelID, got.SourceID)
	}
}

func TestAdapterErrorIsRecordedAndRunContinues(t *testing.T) {
	a := &fakeSource{name: "alpha", err: errors.New("503 from upstream")}
	b := &fakeSource{name: "beta", topics: []model.RawTopic{raw("beta", "Still here", "https://e/b")}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a, b)})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha", "beta"},
		SaveToDB:       true,
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if len(topics) != 1 || stats.TotalCollected != 1 {
		t.Fatalf("topics=%d collected=%d", len(topics), stats.TotalCollected)
	}
	if diff := cmp.Diff([]string{"collect alpha: 503 from upstream"}, stats.Errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupFailsOpen(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "One", "https://e/1"),
		raw("alpha", "Two", "https://e/2"),
	}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a), Deduplicator: brokenDedup{}})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha"},
		SaveToDB:       true,
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if len(topics) != 2 || stats.DeduplicatedCount != 2 {
		t.Fatalf("topics=%d dedup=%d, want 2/2", len(topics), stats.DeduplicatedCount)
	}
	if len(stats.Errors) != 2 {
		t.Fatalf("errors = %v", stats.Errors)
	}
}

func TestPersistenceErrorIsFatal(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{raw("alpha", "One", "https://e/1")}}
	store := newMemoryStore()
	store.failOn = errors.New("commit: connection reset")
	p := newTestPipeline(t, Deps{Sources: registryWith(a), Store: store})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha"},
		SaveToDB:       true,
	})
	if err == nil || !errors.Is(err, store.failOn) {
		t.Fatalf("err = %v, want wrapped commit error", err)
	}
	if topics != nil {
		t.Fatalf("topics = %v", topics)
	}
	if stats.DeduplicatedCount != 1 || stats.SavedCount != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPerItemNormalizeAndScoreFailures(t *testing.T) {
	bad := raw("alpha", "NaN story", "https://e/nan")
	bad.Metrics = map[string]float64{"score": math.NaN()}
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "Explodes", "https://e/x"),
		bad,
		raw("alpha", "Fine", "https://e/ok"),
	}}
	p := newTestPipeline(t, Deps{
		Sources:    registryWith(a),
		Normalizer: picky{inner: NewNormalizer(nil, nil, zerolog.Nop()), fail: "Explodes"},
	})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha"},
		SaveToDB:       true,
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if stats.TotalCollected != 3 || stats.NormalizedCount != 2 || stats.DeduplicatedCount != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(topics) != 1 || topics[0].SourceURL != "https://e/ok" {
		t.Fatalf("topics = %+v", topics)
	}
	if len(stats.Errors) != 2 {
		t.Fatalf("errors = %v", stats.Errors)
	}
	assertMonotonic(t, stats)
}

func TestRankingIsStableAndCapped(t *testing.T) {
	hot := raw("beta", "Hot thread", "https://e/hot")
	published := testNow.Add(-time.Hour)
	hot.PublishedAt = &published
	hot.Metrics = map[string]float64{"score": 900, "comments": 300}

	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "Plain one", "https://e/1"),
		raw("alpha", "Plain two", "https://e/2"),
		raw("alpha", "Plain three", "https://e/3"),
	}}
	b := &fakeSource{name: "beta", topics: []model.RawTopic{raw("beta", "Plain four", "https://e/4"), hot}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a, b), TopN: 3})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"alpha", "beta"},
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	var urls []string
	for _, tp := range topics {
		urls = append(urls, tp.SourceURL)
	}
	want := []string{"https://e/hot", "https://e/1", "https://e/2"}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}
	if stats.SavedCount != 0 {
		t.Fatalf("transient run saved %d", stats.SavedCount)
	}
	for i := 1; i < len(topics); i++ {
		if topics[i-1].ScoreTotal < topics[i].ScoreTotal {
			t.Fatalf("not sorted: %d then %d", topics[i-1].ScoreTotal, topics[i].ScoreTotal)
		}
	}
}

func TestMaxTopicsTruncatesInDeclarationOrder(t *testing.T) {
	a := &fakeSource{name: "alpha", topics: []model.RawTopic{
		raw("alpha", "A1", "https://e/a1"),
		raw("alpha", "A2", "https://e/a2"),
	}}
	b := &fakeSource{name: "beta", topics: []model.RawTopic{
		raw("beta", "B1", "https://e/b1"),
		raw("beta", "B2", "https://e/b2"),
	}}
	p := newTestPipeline(t, Deps{Sources: registryWith(a, b), TopN: 10})

	topics, stats, err := p.CollectForChannel(context.Background(), channel, CollectionConfig{
		EnabledSources: []string{"beta", "alpha"},
		MaxTopics:      3,
	})
	if err != nil {
		t.Fatalf("CollectForChannel: %v", err)
	}
	if stats.TotalCollected != 3 {
		t.Fatalf("collected = %d", stats.TotalCollected)
	}
	var urls []string
	for _, tp := range topics {
		urls = append(urls, tp.SourceURL)
	}
	if diff := cmp.Diff([]string{"https://e/b1", "https://e/b2", "https://e/a1"}, urls); diff != "" {
		t.Fatalf("urls mismatch (-want +got):\n%s", diff)
	}
}

func TestGlobalSourceUsesPool(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	pool := NewRedisGlobalPool(client, "t", time.Hour, zerolog.Nop())

	hn := &fakeSource{name: "hackernews", topics: []model.RawTopic{raw("hackernews", "Fetched", "https://e/f")}}
	reg := sources.NewRegistry(sources.Deps{})
	reg.Register("hackernews", true, func(string, sources.Config, sources.Deps) (sources.Source, error) { return hn, nil })
	p := newTestPipeline(t, Deps{Sources: reg, Pool: pool})
	cfg := CollectionConfig{EnabledSources: []string{"hackernews"}}

	_, stats, err := p.CollectForChannel(context.Background(), channel, cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if hn.calls != 1 || stats.GlobalTopics != 1 {
		t.Fatalf("calls=%d global=%d", hn.calls, stats.GlobalTopics)
	}

	other := model.Channel{ID: "ch-2"}
	_, stats, err = p.CollectForChannel(context.Background(), other, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if hn.calls != 1 {
		t.Fatalf("pool miss: source called %d times", hn.calls)
	}
	if stats.GlobalTopics != 1 || stats.DeduplicatedCount != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeSource{name: "alpha", err: context.Canceled}
	p := newTestPipeline(t, Deps{Sources: registryWith(a)})
	cancel()

	_, _, err := p.CollectForChannel(ctx, channel, CollectionConfig{EnabledSources: []string{"alpha"}, SaveToDB: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
