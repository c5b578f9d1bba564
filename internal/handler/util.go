package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bsforge/collector/internal/collector"
	"github.com/bsforge/collector/internal/lifecycle"
	"github.com/bsforge/collector/internal/repository"
)

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRepoError maps store and domain errors to HTTP statuses. Illegal
// lifecycle moves carry the allowed targets in the body.
func writeRepoError(w http.ResponseWriter, err error) {
	var transition *lifecycle.InvalidTransitionError
	var cfgErr *collector.ConfigError
	switch {
	case errors.As(err, &transition):
		allowed := transition.Allowed
		if allowed == nil {
			allowed = []string{}
		}
		writeJSONStatus(w, http.StatusConflict, map[string]any{
			"error":   "invalid status transition",
			"current": transition.Current,
			"target":  transition.Target,
			"allowed": allowed,
		})
	case errors.As(err, &cfgErr):
		writeJSONStatus(w, http.StatusUnprocessableEntity, map[string]any{
			"error": cfgErr.Error(),
			"field": cfgErr.Field,
		})
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.Is(err, repository.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseIntOrDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
