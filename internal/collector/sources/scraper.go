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
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Scraper pulls list entries out of an HTML page with CSS selectors.
// Selectors are evaluated relative to each item_selector match.
type Scraper struct {
	name            string
	pageURL         *url.URL
	itemSelector    string
	titleSelector   string
	linkSelector    string
	summarySelector string
	limit           int
	http            *http.Client
	limiter         *rate.Limiter
	log             zerolog.Logger
}

func newScraperSource(name string, cfg Config, deps Deps) (Source, error) {
	src, err := NewScraper(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func NewScraper(name string, cfg Config, deps Deps) (*Scraper, error) {
	p := cfg.Params
	pageURL := strings.TrimSpace(p.PageURL)
	if pageURL == "" {
		return nil, fmt.Errorf("%w: params.page_url", ErrMissingParam)
	}
	if strings.TrimSpace(p.ItemSelector) == "" {
		return nil, fmt.Errorf("%w: params.item_selector", ErrMissingParam)
	}
	if err := validateHTTPURL(pageURL); err != nil {
		return nil, fmt.Errorf("%w: params.page_url: %v", ErrInvalidParam, err)
	}
	base, _ := url.Parse(pageURL)
	link := p.LinkSelector
	if link == "" {
		link = "a"
	}
	return &Scraper{
		name:            name,
		pageURL:         base,
		itemSelector:    p.ItemSelector,
		titleSelector:   p.TitleSelector,
		linkSelector:    link,
		summarySelector: p.SummarySelector,
		limit:           cfg.limitOr(20),
		http:            deps.client(15 * time.Second),
		limiter:         deps.limiter(name, time.Second, 1),
		log:             deps.Logger.With().Str("source", name).Logger(),
	}, nil
}

func (s *Scraper) Name() string { return s.name }

func (s *Scraper) Collect(ctx context.Context) ([]model.RawTopic, error) {
	body, err := fetch(ctx, s.http, s.limiter, s.pageURL.String())
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", s.pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.pageURL, err)
	}

	seen := map[string]bool{}
	out := make([]model.RawTopic, 0, s.limit)
	doc.Find(s.itemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(out) >= s.limit {
			return false
		}
		raw, ok := s.toRaw(sel)
		if !ok || seen[raw.SourceURL] {
			return true
		}
		seen[raw.SourceURL] = true
		out = append(out, raw)
		return true
	})
	s.log.Info().Int("count", len(out)).Msg("scraper collected")
	return out, nil
}

func (s *Scraper) toRaw(sel *goquery.Selection) (model.RawTopic, bool) {
	titleSel := sel
	if s.titleSelector != "" {
		titleSel = sel.Find(s.titleSelector).First()
	}
	title := strings.Join(strings.Fields(titleSel.Text()), " ")
	if title == "" {
		return model.RawTopic{}, false
	}

	linkSel := sel.Find(s.linkSelector).First()
	if goquery.NodeName(sel) == "a" {
		linkSel = sel
	}
	href, ok := linkSel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return model.RawTopic{}, false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return model.RawTopic{}, false
	}
	link := s.pageURL.ResolveReference(ref).String()

	raw := model.RawTopic{
		SourceName: s.name,
		SourceURL:  link,
		Title:      title,
		Metadata:   map[string]string{"page": s.pageURL.String()},
	}
	if s.summarySelector != "" {
		if text := strings.Join(strings.Fields(sel.Find(s.summarySelector).First().Text()), " "); text != "" {
			raw.Content = &text
		}
	}
	if ts, ok := sel.Find("time").First().Attr("datetime"); ok {
		if t, err := timeutil.ParseUTC(ts); err == nil {
			raw.PublishedAt = &t
		}
	}
	return raw, true
}
