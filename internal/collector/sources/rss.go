package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bsforge/collector/internal/model"
	"github.com/bsforge/collector/internal/timeutil"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RSS reads one RSS or Atom feed.
type RSS struct {
	name    string
	feedURL string
	title   string
	limit   int
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func newRSSSource(name string, cfg Config, deps Deps) (Source, error) {
	src, err := NewRSS(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func NewRSS(name string, cfg Config, deps Deps) (*RSS, error) {
	feedURL := strings.TrimSpace(cfg.Params.FeedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("%w: params.feed_url", ErrMissingParam)
	}
	if err := validateHTTPURL(feedURL); err != nil {
		return nil, fmt.Errorf("%w: params.feed_url: %v", ErrInvalidParam, err)
	}
	title := cfg.Params.Name
	if title == "" {
		title = name
	}
	return &RSS{
		name:    name,
		feedURL: feedURL,
		title:   title,
		limit:   cfg.limitOr(20),
		http:    deps.client(15 * time.Second),
		limiter: deps.limiter(name, time.Second, 1),
		log:     deps.Logger.With().Str("source", name).Logger(),
	}, nil
}

func (s *RSS) Name() string { return s.name }

func (s *RSS) Collect(ctx context.Context) ([]model.RawTopic, error) {
	body, err := fetch(ctx, s.http, s.limiter, s.feedURL)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", s.feedURL, err)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rss parse %s: %w", s.feedURL, err)
	}

	out := make([]model.RawTopic, 0, s.limit)
	for _, item := range feed.Items {
		if len(out) >= s.limit {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" || item.Link == "" {
			continue
		}
		raw := model.RawTopic{
			SourceName: s.name,
			SourceID:   item.GUID,
			SourceURL:  item.Link,
			Title:      title,
			Metadata: map[string]string{
				"feed":       s.title,
				"feed_title": feed.Title,
			},
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		if text := stripHTML(desc); text != "" {
			raw.Content = &text
		}
		raw.PublishedAt = itemTime(item)
		out = append(out, raw)
	}
	s.log.Info().Int("entries", len(feed.Items)).Int("count", len(out)).Msg("rss collected")
	return out, nil
}

func itemTime(item *gofeed.Item) *time.Time {
	for _, t := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if t != nil {
			u := t.UTC()
			return &u
		}
	}
	for _, s := range []string{item.Published, item.Updated} {
		if s == "" {
			continue
		}
		if t, err := timeutil.ParseUTC(s); err == nil {
			return &t
		}
	}
	return nil
}

func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func validateHTTPURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an http(s) url: %s", raw)
	}
	return nil
}
