package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/hathor-music/syncd/internal/adapters/http"
	wsignal "github.com/hathor-music/syncd/internal/adapters/signal"
	"github.com/hathor-music/syncd/internal/app"
	"github.com/hathor-music/syncd/internal/app/orch"
	"github.com/hathor-music/syncd/internal/auth"
	"github.com/hathor-music/syncd/internal/config"
	"github.com/hathor-music/syncd/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	// Redis is the fast tier when configured; losing it only costs latency,
	// so a missing address just means the in-process cache.
	var cache store.Cache
	if cfg.RedisAddr != "" {
		cache = store.NewRedisCache(cfg.RedisAddr)
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis cache enabled")
	} else {
		cache = store.NewMemoryCache()
		log.Info().Msg("no redis configured, using in-process cache")
	}

	registry := app.NewRegistry()
	states := store.NewStates(db, cache, cfg.CacheTTL)
	rooms := app.NewRoomService(db)
	coord := orch.NewCoordinator(registry, rooms, states)

	verifier := auth.NewVerifier(cfg.Secret)
	ctl := wsignal.NewSyncWSController(coord, verifier, cfg)

	r := router.SetupRouter(ctx, cfg, ctl, db)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("sync server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	for _, cid := range registry.ConnIDs() {
		registry.Cancel(cid)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
