package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsforge/collector/internal/app"
	"github.com/bsforge/collector/internal/config"
	"github.com/bsforge/collector/internal/handler"
	inngestfn "github.com/bsforge/collector/internal/inngest"
	"github.com/bsforge/collector/internal/service"
	"github.com/inngest/inngestgo"
	"github.com/rs/zerolog"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	log := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := inngestgo.NewClient(inngestgo.ClientOpts{AppID: "bsforge-collector"})
	if err != nil {
		log.Fatal().Err(err).Msg("inngest client")
	}
	events := service.NewEventPublisher(client, log)

	a, err := app.Build(ctx, cfg, events, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wire app")
	}
	defer a.Close()

	fnDeps := inngestfn.Deps{
		Collect:     a.Collect,
		Channels:    a.Channels,
		Topics:      a.Topics,
		CollectCron: cfg.CollectCron,
		Logger:      log,
	}
	if a.Redis != nil {
		fnDeps.Pool = a.Pipeline
	}
	inngestHandler, err := inngestfn.NewHandler(client, fnDeps)
	if err != nil {
		log.Fatal().Err(err).Msg("inngest functions")
	}

	routes := handler.RouterDeps{
		Channels:  handler.NewChannelHandler(a.Channels, a.Collect, events, log),
		Topics:    handler.NewTopicHandler(a.Topics, a.RunStats),
		Inngest:   inngestHandler,
		JWTSecret: cfg.JWTSecret,
	}
	if a.Pool != nil {
		routes.Pool = handler.NewPoolHandler(a.Pool)
	}
	router := handler.NewRouter(routes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", cfg.Port).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
}
