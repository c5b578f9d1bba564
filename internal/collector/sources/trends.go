package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	googleTrendsFeed = "https://trends.google.com/trending/rss"
	googleSearchURL  = "https://www.google.com/search?q="
)

// GoogleTrends reads the daily trending searches feed per region. Each
// entry is a search query; its approximate traffic is the engagement
// metric.
type GoogleTrends struct {
	name    string
	feedURL string
	regions []string
	limit   int
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
	now     func() time.Time
}

func newGoogleTrendsSource(name string, cfg Config, deps Deps) (Source, error) {
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidParam)
	}
	return NewGoogleTrends(name, cfg, deps), nil
}

func NewGoogleTrends(name string, cfg Config, deps Deps) *GoogleTrends {
	regions := upperAll(cfg.Params.Regions)
	if len(regions) == 0 {
		regions = []string{"KR"}
	}
	return &GoogleTrends{
		name:    name,
		feedURL: deps.baseURLOr(googleTrendsFeed),
		regions: regions,
		limit:   cfg.limitOr(10),
		http:    deps.client(15 * time.Second),
		limiter: deps.limiter(name, time.Second, 1),
		log:     deps.Logger.With().Str("source", name).Logger(),
		now:     time.Now,
	}
}

func (g *GoogleTrends) Name() string { return g.name }

func (g *GoogleTrends) Collect(ctx context.Context) ([]model.RawTopic, error) {
	var (
		out     []model.RawTopic
		lastErr error
		failed  int
	)
	for _, region := range g.regions {
		topics, err := g.collectRegion(ctx, region)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Warn().Err(err).Str("region", region).Msg("trends fetch failed")
			lastErr = err
			failed++
			continue
		}
		out = append(out, topics...)
	}
	if failed == len(g.regions) {
		return nil, fmt.Errorf("google trends: all regions failed: %w", lastErr)
	}
	g.log.Info().Int("count", len(out)).Msg("trends collected")
	return out, nil
}

func (g *GoogleTrends) collectRegion(ctx context.Context, region string) ([]model.RawTopic, error) {
	u := g.feedURL + "?" + url.Values{"geo": {region}}.Encode()
	body, err := fetch(ctx, g.http, g.limiter, u)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("trends parse %s: %w", region, err)
	}

	out := make([]model.RawTopic, 0, g.limit)
	for _, item := range feed.Items {
		if len(out) >= g.limit {
			break
		}
		query := strings.TrimSpace(item.Title)
		if query == "" {
			continue
		}
		raw := model.RawTopic{
			SourceName: g.name,
			SourceID:   region + ":" + query,
			SourceURL:  googleSearchURL + url.QueryEscape(query),
			Title:      query,
			Metrics:    map[string]float64{"score": approxTraffic(item)},
			Metadata: map[string]string{
				"region":     region,
				"trends_url": "https://trends.google.com/trends/explore?" + url.Values{"q": {query}, "geo": {region}}.Encode(),
			},
		}
		if t := itemTime(item); t != nil {
			raw.PublishedAt = t
		} else {
			now := g.now().UTC()
			raw.PublishedAt = &now
		}
		out = append(out, raw)
	}
	return out, nil
}

// approxTraffic reads the ht:approx_traffic extension ("20,000+").
func approxTraffic(item *gofeed.Item) float64 {
	exts, ok := item.Extensions["ht"]["approx_traffic"]
	if !ok || len(exts) == 0 {
		return 0
	}
	v := strings.NewReplacer(",", "", "+", "").Replace(strings.TrimSpace(exts[0].Value))
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return n
}
