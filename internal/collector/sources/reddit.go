package sources

import (
	"context"
	"errors"
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

const redditBase = "https://www.reddit.com"

var (
	redditSorts = map[string]bool{"hot": true, "new": true, "top": true, "rising": true}
	redditTimes = map[string]bool{"hour": true, "day": true, "week": true, "month": true, "year": true, "all": true}
)

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
	Domain      string  `json:"domain"`
}

// Reddit collects posts from a list of subreddits through the public JSON
// listing endpoints.
type Reddit struct {
	name       string
	baseURL    string
	subreddits []string
	limit      int
	minScore   int
	sort       string
	window     string
	http       *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func newRedditSource(name string, cfg Config, deps Deps) (Source, error) {
	src, err := NewReddit(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func NewReddit(name string, cfg Config, deps Deps) (*Reddit, error) {
	var subs []string
	for _, s := range cfg.Params.Subreddits {
		s = strings.TrimPrefix(strings.TrimSpace(s), "r/")
		if s != "" {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: params.subreddits", ErrMissingParam)
	}
	sort := strings.ToLower(strings.TrimSpace(cfg.Params.Sort))
	if sort == "" {
		sort = "hot"
	}
	if !redditSorts[sort] {
		return nil, fmt.Errorf("%w: params.sort %q", ErrInvalidParam, cfg.Params.Sort)
	}
	window := strings.ToLower(strings.TrimSpace(cfg.Params.Time))
	if window == "" {
		window = "day"
	}
	if !redditTimes[window] {
		return nil, fmt.Errorf("%w: params.time %q", ErrInvalidParam, cfg.Params.Time)
	}
	return &Reddit{
		name:       name,
		baseURL:    strings.TrimRight(deps.baseURLOr(redditBase), "/"),
		subreddits: subs,
		limit:      cfg.limitOr(25),
		minScore:   cfg.minScoreOr(100),
		sort:       sort,
		window:     window,
		http:       deps.client(10 * time.Second),
		limiter:    deps.limiter(name, 500*time.Millisecond, 2),
		log:        deps.Logger.With().Str("source", name).Logger(),
	}, nil
}

func (r *Reddit) Name() string { return r.name }

// Collect walks subreddits in order. A failing subreddit is skipped; the
// call fails only when every subreddit failed.
func (r *Reddit) Collect(ctx context.Context) ([]model.RawTopic, error) {
	var (
		out  []model.RawTopic
		errs []error
	)
	for _, sub := range r.subreddits {
		posts, err := r.fetchSubreddit(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Warn().Err(err).Str("subreddit", sub).Msg("reddit subreddit fetch failed")
			errs = append(errs, fmt.Errorf("r/%s: %w", sub, err))
			continue
		}
		for _, p := range posts {
			if p.Stickied || strings.TrimSpace(p.Title) == "" || p.Score < r.minScore {
				continue
			}
			out = append(out, r.toRaw(p, sub))
		}
	}
	if len(errs) == len(r.subreddits) {
		return nil, errors.Join(errs...)
	}
	r.log.Info().Int("count", len(out)).Msg("reddit collected")
	return out, nil
}

func (r *Reddit) fetchSubreddit(ctx context.Context, sub string) ([]redditPost, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(r.limit))
	q.Set("raw_json", "1")
	if r.sort == "top" {
		q.Set("t", r.window)
	}
	u := fmt.Sprintf("%s/r/%s/%s.json?%s", r.baseURL, url.PathEscape(sub), r.sort, q.Encode())
	var listing redditListing
	if err := fetchJSON(ctx, r.http, r.limiter, u, &listing); err != nil {
		return nil, err
	}
	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		posts = append(posts, c.Data)
	}
	return posts, nil
}

func (r *Reddit) toRaw(p redditPost, sub string) model.RawTopic {
	permalink := redditBase + p.Permalink
	link := p.URL
	if link == "" || strings.HasPrefix(link, "/r/") {
		link = permalink
	}
	raw := model.RawTopic{
		SourceName: r.name,
		SourceID:   p.ID,
		SourceURL:  link,
		Title:      p.Title,
		Metrics: map[string]float64{
			"score":        float64(p.Score),
			"comments":     float64(p.NumComments),
			"upvote_ratio": p.UpvoteRatio,
		},
		Metadata: map[string]string{
			"subreddit": sub,
			"author":    p.Author,
			"permalink": permalink,
			"domain":    p.Domain,
		},
	}
	if body := strings.TrimSpace(p.Selftext); body != "" && body != "[removed]" && body != "[deleted]" {
		raw.Content = &body
	}
	if p.CreatedUTC > 0 {
		t := time.Unix(int64(p.CreatedUTC), 0).UTC()
		raw.PublishedAt = &t
	}
	return raw
}
