package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	hackerNewsAPI        = "https://hacker-news.firebaseio.com/v0"
	hackerNewsItemURL    = "https://news.ycombinator.com/item?id="
	hackerNewsConcurrent = 8
)

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// HackerNews collects top stories from the Firebase API.
type HackerNews struct {
	name     string
	baseURL  string
	limit    int
	minScore int
	http     *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
}

func NewHackerNews(name string, cfg Config, deps Deps) *HackerNews {
	return &HackerNews{
		name:     name,
		baseURL:  strings.TrimRight(deps.baseURLOr(hackerNewsAPI), "/"),
		limit:    cfg.limitOr(30),
		minScore: cfg.minScoreOr(50),
		http:     deps.client(10 * time.Second),
		limiter:  deps.limiter(name, 50*time.Millisecond, hackerNewsConcurrent),
		log:      deps.Logger.With().Str("source", name).Logger(),
	}
}

func newHackerNewsSource(name string, cfg Config, deps Deps) (Source, error) {
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidParam)
	}
	return NewHackerNews(name, cfg, deps), nil
}

func (h *HackerNews) Name() string { return h.name }

func (h *HackerNews) Collect(ctx context.Context) ([]model.RawTopic, error) {
	var ids []int64
	if err := fetchJSON(ctx, h.http, h.limiter, h.baseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("hackernews top stories: %w", err)
	}
	// Over-fetch to leave room for the score filter.
	if n := h.limit * 2; len(ids) > n {
		ids = ids[:n]
	}

	items := make([]*hnItem, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hackerNewsConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			var it hnItem
			url := h.baseURL + "/item/" + strconv.FormatInt(id, 10) + ".json"
			if err := fetchJSON(gctx, h.http, h.limiter, url, &it); err != nil {
				h.log.Warn().Err(err).Int64("story_id", id).Msg("hackernews item fetch failed")
				return nil
			}
			items[i] = &it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]model.RawTopic, 0, h.limit)
	for _, it := range items {
		if len(out) >= h.limit {
			break
		}
		if it == nil || it.Type != "story" || it.Dead || it.Deleted {
			continue
		}
		if strings.TrimSpace(it.Title) == "" || it.Score < h.minScore {
			continue
		}
		out = append(out, h.toRaw(it))
	}
	h.log.Info().Int("fetched", len(ids)).Int("count", len(out)).Msg("hackernews collected")
	return out, nil
}

func (h *HackerNews) toRaw(it *hnItem) model.RawTopic {
	discussion := hackerNewsItemURL + strconv.FormatInt(it.ID, 10)
	link := it.URL
	if link == "" {
		link = discussion
	}
	raw := model.RawTopic{
		SourceName: h.name,
		SourceID:   strconv.FormatInt(it.ID, 10),
		SourceURL:  link,
		Title:      it.Title,
		Metrics: map[string]float64{
			"score":    float64(it.Score),
			"comments": float64(it.Descendants),
		},
		Metadata: map[string]string{
			"by":     it.By,
			"hn_url": discussion,
		},
	}
	if it.Text != "" {
		text := it.Text
		raw.Content = &text
	}
	if it.Time > 0 {
		t := time.Unix(it.Time, 0).UTC()
		raw.PublishedAt = &t
	}
	return raw
}
