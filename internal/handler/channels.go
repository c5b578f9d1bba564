package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type ChannelStore interface {
	Get(ctx context.Context, id string) (*model.Channel, error)
	List(ctx context.Context) ([]model.Channel, error)
	Upsert(ctx context.Context, name, configYAML string, enabled bool) (*model.Channel, error)
	Delete(ctx context.Context, id string) error
}

type ChannelRunner interface {
	RunChannel(ctx context.Context, ch model.Channel, dryRun bool) ([]model.Topic, *collector.CollectionStats, error)
}

// CollectRequester hands a run to the background queue.
type CollectRequester interface {
	SendCollectRequested(ctx context.Context, channelID string) error
}

type ChannelHandler struct {
	repo      ChannelStore
	runner    ChannelRunner
	requester CollectRequester
	log       zerolog.Logger
}

func NewChannelHandler(repo ChannelStore, runner ChannelRunner, requester CollectRequester, log zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{repo: repo, runner: runner, requester: requester, log: log}
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.repo.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if channels == nil {
		channels = []model.Channel{}
	}
	writeJSON(w, channels)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	ch, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, ch)
}

// Upsert creates or replaces a channel by name.
func (h *ChannelHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string `json:"name"`
		ConfigYAML string `json:"config_yaml"`
		Enabled    *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || strings.TrimSpace(body.ConfigYAML) == "" {
		http.Error(w, "name and config_yaml are required", http.StatusBadRequest)
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	ch, err := h.repo.Upsert(r.Context(), body.Name, body.ConfigYAML, enabled)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, ch)
}

func (h *ChannelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Collect runs the pipeline for one channel. With ?dry_run=true the run is
// synchronous and nothing is stored; with ?async=true it is queued.
func (h *ChannelHandler) Collect(w http.ResponseWriter, r *http.Request) {
	ch, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	q := r.URL.Query()
	dryRun := q.Get("dry_run") == "true"

	if q.Get("async") == "true" && !dryRun && h.requester != nil {
		if err := h.requester.SendCollectRequested(r.Context(), ch.ID); err != nil {
			http.Error(w, "enqueue failed", http.StatusBadGateway)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "queued", "channel_id": ch.ID})
		return
	}

	topics, stats, err := h.runner.RunChannel(r.Context(), *ch, dryRun)
	if err != nil {
		h.log.Error().Err(err).Str("channel_id", ch.ID).Msg("collect request failed")
		writeRepoError(w, err)
		return
	}
	if topics == nil {
		topics = []model.Topic{}
	}
	writeJSON(w, map[string]any{
		"channel_id": ch.ID,
		"dry_run":    dryRun,
		"topics":     topics,
		"stats":      stats,
	})
}
