package sources

import (
	"fmt"
	"sort"
	"strings"
)

type Factory func(name string, cfg Config, deps Deps) (Source, error)

type registration struct {
	factory Factory
	global  bool
}

type suffixRegistration struct {
	suffix string
	registration
}

// Registry resolves source names from channel documents to adapters.
// Exact names win over suffix matches, so "rss" and "techcrunch_rss" can
// share a factory.
type Registry struct {
	deps     Deps
	exact    map[string]registration
	suffixes []suffixRegistration
}

func NewRegistry(deps Deps) *Registry {
	if deps.Limiters == nil {
		deps.Limiters = NewLimiters()
	}
	return &Registry{deps: deps, exact: map[string]registration{}}
}

// NewDefaultRegistry registers every built-in adapter.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry(deps)
	r.Register("hackernews", true, newHackerNewsSource)
	r.Register("youtube_trending", true, newYouTubeTrendingSource)
	r.Register("google_trends", true, newGoogleTrendsSource)
	r.Register("reddit", false, newRedditSource)
	for name := range boardSites {
		r.Register(name, false, newBoardSource)
	}
	r.Register("rss", false, newRSSSource)
	r.RegisterSuffix("_rss", false, newRSSSource)
	r.Register("scraper", false, newScraperSource)
	r.RegisterSuffix("_scraper", false, newScraperSource)
	return r
}

// Register adds an adapter under an exact name. Global adapters are
// collected once and shared through the pool.
func (r *Registry) Register(name string, global bool, f Factory) {
	r.exact[name] = registration{factory: f, global: global}
}

func (r *Registry) RegisterSuffix(suffix string, global bool, f Factory) {
	r.suffixes = append(r.suffixes, suffixRegistration{
		suffix:       suffix,
		registration: registration{factory: f, global: global},
	})
}

func (r *Registry) lookup(name string) (registration, bool) {
	if reg, ok := r.exact[name]; ok {
		return reg, true
	}
	for _, s := range r.suffixes {
		if strings.HasSuffix(name, s.suffix) && len(name) > len(s.suffix) {
			return s.registration, true
		}
	}
	return registration{}, false
}

func (r *Registry) Known(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

func (r *Registry) IsGlobal(name string) bool {
	reg, ok := r.lookup(name)
	return ok && reg.global
}

// Build constructs the adapter for name. Unknown names and invalid
// overrides are reported before any network access.
func (r *Registry) Build(name string, cfg Config) (Source, error) {
	reg, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	src, err := reg.factory(name, cfg, r.deps)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return src, nil
}

// GlobalNames lists the exact names of global adapters.
func (r *Registry) GlobalNames() []string {
	var out []string
	for name, reg := range r.exact {
		if reg.global {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.exact)+len(r.suffixes))
	for name := range r.exact {
		out = append(out, name)
	}
	for _, s := range r.suffixes {
		out = append(out, "*"+s.suffix)
	}
	sort.Strings(out)
	return out
}
