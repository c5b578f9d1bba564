package collector

import (
	"strings"

	"github.com/bsforge/collector/internal/model"
)

// Filter matches include/exclude terms against a topic's normalized title
// and terms. Matching is case-insensitive substring.
type Filter struct {
	include []string
	exclude []string
}

func NewFilter(include, exclude []string) *Filter {
	return &Filter{include: lowerAll(include), exclude: lowerAll(exclude)}
}

// Active reports whether any term is configured.
func (f *Filter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

func (f *Filter) Pass(n model.NormalizedTopic) bool {
	if !f.Active() {
		return true
	}
	text := searchable(n)
	for _, term := range f.exclude {
		if strings.Contains(text, term) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, term := range f.include {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func searchable(n model.NormalizedTopic) string {
	parts := append([]string{n.TitleNormalized}, n.Terms()...)
	return strings.ToLower(strings.Join(parts, " "))
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
