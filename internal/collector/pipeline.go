package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bsforge/collector/internal/cache"
	"github.com/bsforge/collector/internal/collector/sources"
	"github.com/bsforge/collector/internal/lifecycle"
	"github.com/bsforge/collector/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultTopN     = 5
	DefaultTopicTTL = 7 * 24 * time.Hour
)

// TopicStore persists a batch in one transaction. Topics whose content
// hash already exists for the channel are skipped; only rows actually
// inserted are returned.
type TopicStore interface {
	SaveNew(ctx context.Context, channelID string, topics []model.Topic) ([]model.Topic, error)
}

type TopicNormalizer interface {
	Normalize(ctx context.Context, raw model.RawTopic, targetLanguage string) (model.NormalizedTopic, error)
}

type EventPublisher interface {
	SendTopicsCollected(ctx context.Context, channelID string, topicIDs []string) error
}

type RunRecorder interface {
	RecordRun(ctx context.Context, channelID string, c cache.RunCounters, at time.Time) error
}

// Deps wires a Pipeline. Pool, ScopedCache, Metrics and Events are
// optional.
type Deps struct {
	Sources      *sources.Registry
	Normalizer   TopicNormalizer
	Deduplicator Deduplicator
	Scorer       *Scorer
	Store        TopicStore
	Pool         GlobalPool
	ScopedCache  ScopedCache
	Metrics      RunRecorder
	Events       EventPublisher
	Logger       zerolog.Logger
	TopN         int
	TopicTTL     time.Duration
	Now          func() time.Time
}

type Pipeline struct {
	deps Deps
	log  zerolog.Logger
}

func NewPipeline(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Sources == nil:
		return nil, fmt.Errorf("pipeline: source registry is required")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("pipeline: normalizer is required")
	case deps.Deduplicator == nil:
		return nil, fmt.Errorf("pipeline: deduplicator is required")
	case deps.Scorer == nil:
		return nil, fmt.Errorf("pipeline: scorer is required")
	}
	if deps.TopN <= 0 {
		deps.TopN = DefaultTopN
	}
	if deps.TopicTTL <= 0 {
		deps.TopicTTL = DefaultTopicTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps, log: deps.Logger.With().Str("component", "pipeline").Logger()}, nil
}

type candidate struct {
	raw        model.RawTopic
	normalized model.NormalizedTopic
	scored     model.ScoredTopic
}

type resolvedSource struct {
	name   string
	src    sources.Source
	global bool
	cfg    sources.Config
}

// CollectForChannel runs collect, normalize, filter, dedup, score, rank and
// persist for one channel. Per-source and per-item failures are recorded
// in the returned stats; configuration and persistence failures abort the
// run with an error. Stats are returned in every case.
func (p *Pipeline) CollectForChannel(ctx context.Context, ch model.Channel, cfg CollectionConfig) ([]model.Topic, *CollectionStats, error) {
	stats := newStats()
	log := p.log.With().Str("channel_id", ch.ID).Logger()

	if err := cfg.Validate(); err != nil {
		return nil, stats, err
	}
	if cfg.SaveToDB && p.deps.Store == nil {
		return nil, stats, &ConfigError{Message: "save requested but no topic store is configured"}
	}
	resolved, err := p.resolve(cfg)
	if err != nil {
		return nil, stats, err
	}

	now := p.deps.Now().UTC()

	raws, err := p.collect(ctx, resolved, cfg.MaxTopics, stats, log)
	if err != nil {
		return nil, stats, err
	}
	log.Info().Str("stage", string(StageCollect)).Int("count", len(raws)).Msg("collected")

	items := make([]candidate, 0, len(raws))
	for _, raw := range raws {
		n, err := p.deps.Normalizer.Normalize(ctx, raw, cfg.TargetLanguage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			p.recordItem(stats, log, StageNormalize, raw.SourceURL, err)
			continue
		}
		items = append(items, candidate{raw: raw, normalized: n})
	}
	stats.NormalizedCount = len(items)

	if f := NewFilter(cfg.Include, cfg.Exclude); f.Active() {
		kept := items[:0]
		for _, it := range items {
			if f.Pass(it.normalized) {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	stats.FilteredCount = len(items)

	items, err = p.dedup(ctx, ch.ID, items, cfg.SaveToDB, stats, log)
	if err != nil {
		return nil, stats, err
	}
	stats.DeduplicatedCount = len(items)

	scorer := p.deps.Scorer.WithChannel(sourceWeights(cfg), cfg.TargetTerms).WithClock(func() time.Time { return now })
	scored := items[:0]
	for _, it := range items {
		s, err := scorer.Score(it.normalized)
		if err != nil {
			p.recordItem(stats, log, StageScore, it.raw.SourceURL, err)
			continue
		}
		it.scored = s
		scored = append(scored, it)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].scored.ScoreTotal > scored[j].scored.ScoreTotal
	})
	if len(scored) > p.deps.TopN {
		scored = scored[:p.deps.TopN]
	}

	topics := make([]model.Topic, 0, len(scored))
	for _, it := range scored {
		t, err := p.toTopic(ch.ID, it, now)
		if err != nil {
			return nil, stats, err
		}
		topics = append(topics, t)
	}

	if !cfg.SaveToDB {
		p.recordMetrics(ctx, ch.ID, stats, now, log)
		log.Info().Int("count", len(topics)).Int("errors", len(stats.Errors)).Msg("collection finished (transient)")
		return topics, stats, nil
	}

	saved, err := p.deps.Store.SaveNew(ctx, ch.ID, topics)
	if err != nil {
		log.Error().Err(err).Int("count", len(topics)).Msg("save topics failed")
		return nil, stats, fmt.Errorf("save topics: %w", err)
	}
	stats.SavedCount = len(saved)
	p.recordMetrics(ctx, ch.ID, stats, now, log)
	if len(saved) > 0 && p.deps.Events != nil {
		ids := make([]string, len(saved))
		for i, t := range saved {
			ids[i] = t.ID
		}
		if err := p.deps.Events.SendTopicsCollected(ctx, ch.ID, ids); err != nil {
			log.Warn().Err(err).Msg("publish topics/collected failed")
		}
	}
	log.Info().Int("saved", stats.SavedCount).Int("errors", len(stats.Errors)).Msg("collection finished")
	return saved, stats, nil
}

// resolve builds every enabled adapter up front so that unknown names and
// missing params fail the run before any fetch.
func (p *Pipeline) resolve(cfg CollectionConfig) ([]resolvedSource, error) {
	out := make([]resolvedSource, 0, len(cfg.EnabledSources))
	for _, name := range cfg.EnabledSources {
		override := cfg.Override(name)
		src, err := p.deps.Sources.Build(name, override)
		if err != nil {
			return nil, &ConfigError{Field: "topic_collection.source_overrides." + name, Message: err.Error(), Err: err}
		}
		out = append(out, resolvedSource{name: name, src: src, global: p.deps.Sources.IsGlobal(name), cfg: override})
	}
	return out, nil
}

// collect runs adapters one after another in declaration order and then
// truncates the concatenation to maxTopics.
func (p *Pipeline) collect(ctx context.Context, resolved []resolvedSource, maxTopics int, stats *CollectionStats, log zerolog.Logger) ([]model.RawTopic, error) {
	var out []model.RawTopic
	for _, rs := range resolved {
		var (
			topics []model.RawTopic
			err    error
		)
		if rs.global {
			topics, err = p.collectGlobal(ctx, rs, stats, log)
		} else {
			topics, err = p.collectScoped(ctx, rs, stats, log)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			serr := &StageError{Stage: StageCollect, Subject: rs.name, Err: err}
			stats.record(serr)
			log.Warn().Err(err).Str("source", rs.name).Msg("source failed")
			continue
		}
		log.Debug().Str("source", rs.name).Int("count", len(topics)).Msg("source collected")
		out = append(out, topics...)
	}
	if maxTopics > 0 && len(out) > maxTopics {
		out = out[:maxTopics]
	}
	stats.TotalCollected = len(out)
	return out, nil
}

func (p *Pipeline) collectGlobal(ctx context.Context, rs resolvedSource, stats *CollectionStats, log zerolog.Logger) ([]model.RawTopic, error) {
	if p.deps.Pool != nil {
		pooled, err := p.deps.Pool.Get(ctx, rs.name)
		if err != nil {
			p.recordItem(stats, log, StagePool, rs.name, err)
		} else if len(pooled) > 0 {
			stats.GlobalTopics += len(pooled)
			return pooled, nil
		}
	}
	topics, err := rs.src.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if p.deps.Pool != nil && len(topics) > 0 {
		if err := p.deps.Pool.Replace(ctx, rs.name, topics); err != nil {
			p.recordItem(stats, log, StagePool, rs.name, err)
		}
	}
	stats.GlobalTopics += len(topics)
	return topics, nil
}

func (p *Pipeline) collectScoped(ctx context.Context, rs resolvedSource, stats *CollectionStats, log zerolog.Logger) ([]model.RawTopic, error) {
	if p.deps.ScopedCache != nil {
		cached, hit, err := p.deps.ScopedCache.Get(ctx, rs.name, rs.cfg)
		if err != nil {
			p.recordItem(stats, log, StageCache, rs.name, err)
		} else if hit {
			stats.ScopedTopics += len(cached)
			return cached, nil
		}
	}
	topics, err := rs.src.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if p.deps.ScopedCache != nil && len(topics) > 0 {
		if err := p.deps.ScopedCache.Set(ctx, rs.name, rs.cfg, topics); err != nil {
			p.recordItem(stats, log, StageCache, rs.name, err)
		}
	}
	stats.ScopedTopics += len(topics)
	return topics, nil
}

// dedup checks and marks items one at a time, so a later item with the
// same fingerprint in this batch is caught by the earlier mark. A failed
// check keeps the item. Transient runs only read the shared store and
// track the batch locally, so a preview never hides topics from a later
// saving run.
func (p *Pipeline) dedup(ctx context.Context, scope string, items []candidate, mark bool, stats *CollectionStats, log zerolog.Logger) ([]candidate, error) {
	kept := items[:0]
	batch := make(map[string]struct{}, len(items))
	for _, it := range items {
		fp := Fingerprint(it.normalized.TitleNormalized)
		if _, ok := batch[fp]; ok {
			continue
		}
		dup, err := p.deps.Deduplicator.IsDuplicate(ctx, it.normalized, scope)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.recordItem(stats, log, StageDedup, it.raw.SourceURL, err)
			batch[fp] = struct{}{}
			kept = append(kept, it)
			continue
		}
		if dup {
			continue
		}
		batch[fp] = struct{}{}
		if mark {
			if err := p.deps.Deduplicator.MarkAsSeen(ctx, it.normalized, scope); err != nil {
				p.recordItem(stats, log, StageDedup, it.raw.SourceURL, err)
			}
		}
		kept = append(kept, it)
	}
	return kept, nil
}

func (p *Pipeline) toTopic(channelID string, it candidate, now time.Time) (model.Topic, error) {
	status, err := lifecycle.NewTopicMachine().TransitionTo(model.TopicApproved)
	if err != nil {
		return model.Topic{}, err
	}
	n := it.normalized
	sourceName := n.SourceName
	return model.Topic{
		ID:              uuid.NewString(),
		ChannelID:       channelID,
		SourceID:        &sourceName,
		TitleOriginal:   n.TitleOriginal,
		TitleTranslated: n.TitleTranslated,
		TitleNormalized: n.TitleNormalized,
		Summary:         n.Summary,
		SourceURL:       n.SourceURL,
		Categories:      nonNil(n.Categories),
		Keywords:        nonNil(n.Keywords),
		Entities:        n.Entities,
		Language:        n.Language,
		ScoreSource:     it.scored.ScoreSource,
		ScoreFreshness:  it.scored.ScoreFreshness,
		ScoreTrend:      it.scored.ScoreTrend,
		ScoreRelevance:  it.scored.ScoreRelevance,
		ScoreTotal:      it.scored.ScoreTotal,
		Status:          status,
		PublishedAt:     n.PublishedAt,
		ExpiresAt:       now.Add(p.deps.TopicTTL),
		ContentHash:     ContentHash(n.TitleNormalized, n.SourceURL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (p *Pipeline) recordItem(stats *CollectionStats, log zerolog.Logger, stage Stage, subject string, err error) {
	serr := &StageError{Stage: stage, Subject: subject, Err: err}
	stats.record(serr)
	log.Warn().Err(err).Str("stage", string(stage)).Str("subject", subject).Msg("item skipped")
}

func (p *Pipeline) recordMetrics(ctx context.Context, channelID string, stats *CollectionStats, now time.Time, log zerolog.Logger) {
	if p.deps.Metrics == nil {
		return
	}
	c := cache.RunCounters{
		Runs:         1,
		Collected:    int64(stats.TotalCollected),
		Deduplicated: int64(stats.FilteredCount - stats.DeduplicatedCount),
		Saved:        int64(stats.SavedCount),
		Errors:       int64(len(stats.Errors)),
	}
	if err := p.deps.Metrics.RecordRun(ctx, channelID, c, now); err != nil {
		log.Warn().Err(err).Msg("run counters not recorded")
	}
}

// RefreshGlobalPool collects every registered global source with default
// overrides and replaces its pool snapshot. It returns per-source counts.
func (p *Pipeline) RefreshGlobalPool(ctx context.Context) (map[string]int, error) {
	if p.deps.Pool == nil {
		return nil, fmt.Errorf("global pool is not configured")
	}
	out := map[string]int{}
	var failed []string
	for _, name := range p.deps.Sources.GlobalNames() {
		src, err := p.deps.Sources.Build(name, sources.Config{})
		if err != nil {
			p.log.Warn().Err(err).Str("source", name).Msg("global source unavailable")
			failed = append(failed, name)
			continue
		}
		topics, err := src.Collect(ctx)
		if err != nil {
			p.log.Warn().Err(err).Str("source", name).Msg("global refresh collect failed")
			failed = append(failed, name)
			continue
		}
		if err := p.deps.Pool.Replace(ctx, name, topics); err != nil {
			return out, fmt.Errorf("replace pool %s: %w", name, err)
		}
		out[name] = len(topics)
	}
	if len(failed) > 0 && len(out) == 0 {
		return out, fmt.Errorf("all global sources failed: %v", failed)
	}
	return out, nil
}

func sourceWeights(cfg CollectionConfig) map[string]float64 {
	out := map[string]float64{}
	for name, o := range cfg.SourceOverrides {
		if o.Weight != nil {
			out[name] = *o.Weight
		}
	}
	return out
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
