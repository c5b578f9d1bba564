package handler

import (
	"context"
	"net/http"

	"github.com/bsforge/collector/internal/collector"
	"github.com/go-chi/chi/v5"
)

type PoolStore interface {
	Sources(ctx context.Context) ([]string, error)
	Meta(ctx context.Context, source string) (*collector.PoolMeta, error)
	Clear(ctx context.Context, source string) error
}

// PoolHandler exposes the global source pool snapshots.
type PoolHandler struct {
	pool PoolStore
}

func NewPoolHandler(pool PoolStore) *PoolHandler {
	return &PoolHandler{pool: pool}
}

// List reports every pooled source with its count and collection time.
// Sources whose meta expired before the list report a zero count.
func (h *PoolHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.pool.Sources(r.Context())
	if err != nil {
		http.Error(w, "pool unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make([]collector.PoolMeta, 0, len(names))
	for _, name := range names {
		m, err := h.pool.Meta(r.Context(), name)
		if err != nil {
			http.Error(w, "pool unavailable", http.StatusServiceUnavailable)
			return
		}
		if m == nil {
			m = &collector.PoolMeta{Source: name}
		}
		out = append(out, *m)
	}
	writeJSON(w, map[string]any{"sources": out})
}

// Clear drops one source's snapshot so the next run refetches it.
func (h *PoolHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.Clear(r.Context(), chi.URLParam(r, "source")); err != nil {
		http.Error(w, "pool unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
