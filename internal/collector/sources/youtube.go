package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	youTubeAPI        = "https://www.googleapis.com/youtube/v3"
	youTubeWatchURL   = "https://www.youtube.com/watch?v="
	youTubeMaxResults = 50
)

type ytVideoList struct {
	Items []ytVideo `json:"items"`
}

type ytVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		PublishedAt  time.Time `json:"publishedAt"`
		ChannelID    string    `json:"channelId"`
		ChannelTitle string    `json:"channelTitle"`
		CategoryID   string    `json:"categoryId"`
	} `json:"snippet"`
	// The API reports counts as decimal strings.
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

// YouTubeTrending collects the mostPopular chart of the Data API per
// region.
type YouTubeTrending struct {
	name     string
	baseURL  string
	apiKey   string
	regions  []string
	category string
	limit    int
	http     *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
}

func newYouTubeTrendingSource(name string, cfg Config, deps Deps) (Source, error) {
	src, err := NewYouTubeTrending(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func NewYouTubeTrending(name string, cfg Config, deps Deps) (*YouTubeTrending, error) {
	if strings.TrimSpace(deps.YouTubeAPIKey) == "" {
		return nil, fmt.Errorf("%w: YOUTUBE_API_KEY", ErrMissingParam)
	}
	if c := cfg.Params.CategoryID; c != "" {
		if _, err := strconv.Atoi(c); err != nil {
			return nil, fmt.Errorf("%w: params.category_id %q", ErrInvalidParam, c)
		}
	}
	regions := upperAll(cfg.Params.Regions)
	if len(regions) == 0 {
		regions = []string{"KR", "US"}
	}
	return &YouTubeTrending{
		name:     name,
		baseURL:  strings.TrimRight(deps.baseURLOr(youTubeAPI), "/"),
		apiKey:   deps.YouTubeAPIKey,
		regions:  regions,
		category: cfg.Params.CategoryID,
		limit:    min(cfg.limitOr(20), youTubeMaxResults),
		http:     deps.client(15 * time.Second),
		limiter:  deps.limiter(name, 200*time.Millisecond, 2),
		log:      deps.Logger.With().Str("source", name).Logger(),
	}, nil
}

func (y *YouTubeTrending) Name() string { return y.name }

// Collect walks regions in order. A failing region is skipped; the call
// fails only when every region failed.
func (y *YouTubeTrending) Collect(ctx context.Context) ([]model.RawTopic, error) {
	var (
		out     []model.RawTopic
		lastErr error
		failed  int
	)
	seen := map[string]bool{}
	for _, region := range y.regions {
		var list ytVideoList
		if err := fetchJSON(ctx, y.http, y.limiter, y.chartURL(region), &list); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			y.log.Warn().Err(err).Str("region", region).Msg("youtube chart fetch failed")
			lastErr = err
			failed++
			continue
		}
		for _, v := range list.Items {
			raw, ok := y.toRaw(v, region)
			if !ok || seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			out = append(out, raw)
		}
	}
	if failed == len(y.regions) {
		return nil, fmt.Errorf("youtube trending: all regions failed: %w", lastErr)
	}
	y.log.Info().Int("count", len(out)).Msg("youtube collected")
	return out, nil
}

func (y *YouTubeTrending) chartURL(region string) string {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("chart", "mostPopular")
	q.Set("regionCode", region)
	q.Set("maxResults", strconv.Itoa(y.limit))
	q.Set("key", y.apiKey)
	if y.category != "" && y.category != "0" {
		q.Set("videoCategoryId", y.category)
	}
	return y.baseURL + "/videos?" + q.Encode()
}

func (y *YouTubeTrending) toRaw(v ytVideo, region string) (model.RawTopic, bool) {
	title := strings.TrimSpace(v.Snippet.Title)
	if v.ID == "" || title == "" {
		return model.RawTopic{}, false
	}
	likes := parseCount(v.Statistics.LikeCount)
	raw := model.RawTopic{
		SourceName: y.name,
		SourceID:   v.ID,
		SourceURL:  youTubeWatchURL + v.ID,
		Title:      title,
		Metrics: map[string]float64{
			"score":    likes,
			"views":    parseCount(v.Statistics.ViewCount),
			"likes":    likes,
			"comments": parseCount(v.Statistics.CommentCount),
		},
		Metadata: map[string]string{
			"region":        region,
			"channel_id":    v.Snippet.ChannelID,
			"channel_title": v.Snippet.ChannelTitle,
			"category_id":   v.Snippet.CategoryID,
		},
	}
	if d := strings.TrimSpace(v.Snippet.Description); d != "" {
		raw.Content = &d
	}
	if !v.Snippet.PublishedAt.IsZero() {
		t := v.Snippet.PublishedAt.UTC()
		raw.PublishedAt = &t
	}
	return raw, true
}

func parseCount(s string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
