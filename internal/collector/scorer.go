package collector

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/model"
)

type Weights struct {
	Source    float64 `json:"source"`
	Freshness float64 `json:"freshness"`
	Trend     float64 `json:"trend"`
	Relevance float64 `json:"relevance"`
}

func DefaultWeights() Weights {
	return Weights{Source: 0.25, Freshness: 0.30, Trend: 0.20, Relevance: 0.25}
}

type ScorerConfig struct {
	Weights      Weights
	HalfLife     time.Duration
	MinFreshness float64
	// DefaultCredibility is used for sources without a configured weight,
	// on the same 1..5 scale as the weight itself.
	DefaultCredibility float64
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights:            DefaultWeights(),
		HalfLife:           24 * time.Hour,
		MinFreshness:       0.1,
		DefaultCredibility: 2.5,
	}
}

const (
	engagementSaturation = 1000.0
	trendHalfVelocity    = 10.0
	neutralScore         = 0.5
)

// Scorer is a pure function of a topic, its configuration and the clock
// it was given. WithChannel and WithClock return copies, so a shared
// Scorer can be specialised per run.
type Scorer struct {
	cfg           ScorerConfig
	sourceWeights map[string]float64
	targetTerms   map[string]struct{}
	now           func() time.Time
}

func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	w := cfg.Weights
	for name, v := range map[string]float64{"source": w.Source, "freshness": w.Freshness, "trend": w.Trend, "relevance": w.Relevance} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ConfigError{Field: "scoring.weights." + name, Message: fmt.Sprintf("invalid weight %v", v)}
		}
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 24 * time.Hour
	}
	if cfg.MinFreshness < 0 || cfg.MinFreshness > 1 {
		return nil, &ConfigError{Field: "scoring.min_freshness", Message: "must be within [0,1]"}
	}
	if cfg.DefaultCredibility <= 0 {
		cfg.DefaultCredibility = 2.5
	}
	return &Scorer{cfg: cfg, now: time.Now}, nil
}

func (s *Scorer) WithChannel(sourceWeights map[string]float64, targetTerms []string) *Scorer {
	c := *s
	c.sourceWeights = sourceWeights
	c.targetTerms = make(map[string]struct{}, len(targetTerms))
	for _, t := range lowerAll(targetTerms) {
		c.targetTerms[t] = struct{}{}
	}
	return &c
}

func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	c := *s
	c.now = now
	return &c
}

func (s *Scorer) Score(n model.NormalizedTopic) (model.ScoredTopic, error) {
	now := s.now()
	out := model.ScoredTopic{
		ScoreSource:    s.source(n),
		ScoreFreshness: s.freshness(n.PublishedAt, now),
		ScoreTrend:     trend(n, now),
		ScoreRelevance: s.relevance(n),
	}
	for name, v := range map[string]float64{
		"source": out.ScoreSource, "freshness": out.ScoreFreshness,
		"trend": out.ScoreTrend, "relevance": out.ScoreRelevance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.ScoredTopic{}, fmt.Errorf("score %s is not finite", name)
		}
	}
	out.ScoreTotal = Combine(s.cfg.Weights, out.ScoreSource, out.ScoreFreshness, out.ScoreTrend, out.ScoreRelevance)
	return out, nil
}

// Combine folds the four components into an integer in [0,100]. With
// non-negative weights it never decreases when a component grows.
func Combine(w Weights, source, freshness, trend, relevance float64) int {
	sum := w.Source*source + w.Freshness*freshness + w.Trend*trend + w.Relevance*relevance
	// The epsilon keeps exact sums such as 1.0 from flooring to 99.
	v := math.Floor(sum*100 + 1e-9)
	return int(math.Max(0, math.Min(100, v)))
}

func (s *Scorer) source(n model.NormalizedTopic) float64 {
	weight := s.cfg.DefaultCredibility
	if w, ok := s.sourceWeights[n.SourceName]; ok && w > 0 {
		weight = w
	}
	credibility := clamp01(weight * 2 / 10)

	engagement := neutralScore
	if score, ok := n.Metrics["score"]; ok {
		engagement = clamp01(math.Log1p(math.Max(0, score)) / math.Log1p(engagementSaturation))
	}
	return clamp01(0.6*credibility + 0.4*engagement)
}

func (s *Scorer) freshness(published *time.Time, now time.Time) float64 {
	if published == nil {
		return s.cfg.MinFreshness
	}
	age := now.Sub(*published)
	if age <= 0 {
		return 1
	}
	f := math.Pow(2, -age.Hours()/s.cfg.HalfLife.Hours())
	return math.Max(s.cfg.MinFreshness, clamp01(f))
}

func trend(n model.NormalizedTopic, now time.Time) float64 {
	if n.PublishedAt == nil || len(n.Metrics) == 0 {
		return 0
	}
	activity := math.Max(0, n.Metrics["score"]) + 2*math.Max(0, n.Metrics["comments"])
	if activity == 0 {
		return 0
	}
	hours := math.Max(now.Sub(*n.PublishedAt).Hours(), 1)
	v := activity / hours
	return clamp01(v / (v + trendHalfVelocity))
}

func (s *Scorer) relevance(n model.NormalizedTopic) float64 {
	terms := n.Terms()
	if len(s.targetTerms) == 0 || len(terms) == 0 {
		return neutralScore
	}
	inter := 0
	for _, t := range terms {
		if _, ok := s.targetTerms[strings.ToLower(t)]; ok {
			inter++
		}
	}
	union := len(terms) + len(s.targetTerms) - inter
	if union == 0 {
		return neutralScore
	}
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
