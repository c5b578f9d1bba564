package sources

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bsforge/collector/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrMissingParam  = errors.New("missing required param")
	ErrInvalidParam  = errors.New("invalid param")
)

// Source fetches raw candidates from one external origin. Implementations
// own their pagination and throttling; a returned error means the whole
// call contributed nothing.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]model.RawTopic, error)
}

// Config is the per-source override block of a channel document.
type Config struct {
	Limit   int      `yaml:"limit" json:"limit,omitempty"`
	Weight  *float64 `yaml:"weight" json:"weight,omitempty"`
	Filters Filters  `yaml:"filters" json:"filters,omitempty"`
	Params  Params   `yaml:"params" json:"params,omitempty"`
}

type Filters struct {
	MinScore *int `yaml:"min_score" json:"min_score,omitempty"`
}

type Params struct {
	Subreddits []string `yaml:"subreddits" json:"subreddits,omitempty"`
	Sort       string   `yaml:"sort" json:"sort,omitempty"`
	Time       string   `yaml:"time" json:"time,omitempty"`

	FeedURL string `yaml:"feed_url" json:"feed_url,omitempty"`
	Name    string `yaml:"name" json:"name,omitempty"`

	Regions    []string `yaml:"regions" json:"regions,omitempty"`
	CategoryID string   `yaml:"category_id" json:"category_id,omitempty"`

	Boards      []string `yaml:"boards" json:"boards,omitempty"`
	GalleryType string   `yaml:"gallery_type" json:"gallery_type,omitempty"`

	PageURL         string `yaml:"page_url" json:"page_url,omitempty"`
	ItemSelector    string `yaml:"item_selector" json:"item_selector,omitempty"`
	TitleSelector   string `yaml:"title_selector" json:"title_selector,omitempty"`
	LinkSelector    string `yaml:"link_selector" json:"link_selector,omitempty"`
	SummarySelector string `yaml:"summary_selector" json:"summary_selector,omitempty"`
}

func (c Config) limitOr(d int) int {
	if c.Limit > 0 {
		return c.Limit
	}
	return d
}

func (c Config) minScoreOr(d int) int {
	if c.Filters.MinScore != nil {
		return *c.Filters.MinScore
	}
	return d
}

// Deps carries the collaborators shared by every adapter a registry builds.
// BaseURL replaces the public API root of API-backed adapters. Limiters
// is shared so throttling holds across runs and channels.
type Deps struct {
	HTTP          *http.Client
	Logger        zerolog.Logger
	BaseURL       string
	YouTubeAPIKey string
	Limiters      *Limiters
}

const userAgent = "BSForge/1.0 (Topic Collection Bot)"

func (d Deps) client(timeout time.Duration) *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: http.DefaultTransport},
	}
}

func (d Deps) limiter(key string, every time.Duration, burst int) *rate.Limiter {
	if d.Limiters == nil {
		return rate.NewLimiter(rate.Every(every), burst)
	}
	return d.Limiters.Get(key, every, burst)
}

func (d Deps) baseURLOr(def string) string {
	if d.BaseURL != "" {
		return d.BaseURL
	}
	return def
}

// Limiters hands out one rate limiter per key. The first caller's rate
// wins for a key.
type Limiters struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func NewLimiters() *Limiters {
	return &Limiters{m: map[string]*rate.Limiter{}}
}

func (l *Limiters) Get(key string, every time.Duration, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(every), burst)
	l.m[key] = lim
	return lim
}
