package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/cache"
	"github.com/bsforge/collector/internal/lifecycle"
	"github.com/bsforge/collector/internal/model"
	"github.com/bsforge/collector/internal/repository"
	"github.com/go-chi/chi/v5"
)

type TopicStore interface {
	List(ctx context.Context, p repository.TopicListParams) (*model.TopicListResponse, error)
	Get(ctx context.Context, id string) (*model.Topic, error)
	UpdateStatus(ctx context.Context, id string, target model.TopicStatus) (*model.Topic, error)
}

type MetricsReader interface {
	SumRuns(ctx context.Context, from, to time.Time) (cache.RunSummary, error)
}

type TopicHandler struct {
	repo    TopicStore
	metrics MetricsReader
	now     func() time.Time
}

func NewTopicHandler(repo TopicStore, metrics MetricsReader) *TopicHandler {
	return &TopicHandler{repo: repo, metrics: metrics, now: time.Now}
}

func (h *TopicHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := repository.TopicListParams{
		ChannelID: q.Get("channel_id"),
		Status:    strings.TrimSpace(q.Get("status")),
		Limit:     parseIntOrDefault(q.Get("limit"), 50),
		Offset:    parseIntOrDefault(q.Get("offset"), 0),
	}
	if v := q.Get("min_score"); v != "" {
		n := parseIntOrDefault(v, -1)
		if n < 0 || n > 100 {
			http.Error(w, "invalid min_score", http.StatusBadRequest)
			return
		}
		p.MinScore = &n
	}
	resp, err := h.repo.List(r.Context(), p)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *TopicHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, t)
}

func (h *TopicHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !lifecycle.IsTopicStatus(body.Status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	t, err := h.repo.UpdateStatus(r.Context(), chi.URLParam(r, "id"), model.TopicStatus(body.Status))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, t)
}

// Metrics sums collection run counters over the last ?hours (default 24,
// at most a week).
func (h *TopicHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	hours := parseIntOrDefault(r.URL.Query().Get("hours"), 24)
	if hours < 1 || hours > 7*24 {
		http.Error(w, "invalid hours", http.StatusBadRequest)
		return
	}
	to := h.now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)
	sum, err := h.metrics.SumRuns(r.Context(), from, to)
	if err != nil {
		http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{
		"from": from,
		"to":   to,
		"runs": sum,
	})
}
