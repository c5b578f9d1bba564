package handler

import (
	"fmt"
	"net/http"

	"github.com/bsforge/collector/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Channels  *ChannelHandler
	Topics    *TopicHandler
	Pool      *PoolHandler
	Inngest   http.Handler
	JWTSecret string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	if d.Inngest != nil {
		r.Mount("/api/inngest", d.Inngest)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(d.JWTSecret))

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", d.Channels.List)
			r.Put("/", d.Channels.Upsert)
			r.Get("/{id}", d.Channels.Get)
			r.Delete("/{id}", d.Channels.Delete)
			r.Post("/{id}/collect", d.Channels.Collect)
		})

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", d.Topics.List)
			r.Get("/{id}", d.Topics.Get)
			r.Patch("/{id}/status", d.Topics.UpdateStatus)
		})

		r.Get("/metrics/collector", d.Topics.Metrics)

		if d.Pool != nil {
			r.Get("/pool", d.Pool.List)
			r.Delete("/pool/{source}", d.Pool.Clear)
		}
	})
	return r
}
