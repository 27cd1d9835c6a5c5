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

	router "github.com/classmeet/server/internal/adapters/http"
	"github.com/classmeet/server/internal/app"
	"github.com/classmeet/server/internal/chat"
	"github.com/classmeet/server/internal/config"
	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var (
		store    core.ChatStore
		meetings core.MeetingLookup
	)
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewStorage(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres store")
		}
		defer pg.Close()
		store, meetings = pg, pg
	} else {
		log.Warn().Msg("no database configured, chat history will not survive restarts")
		mem := storage.NewMemory()
		store, meetings = mem, mem
	}

	reg := core.NewRegistry(cfg.MaxParticipants)
	limiter := chat.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow)
	chatSvc := chat.NewService(reg, store, limiter, cfg.ChatRetention)
	orch := app.NewOrchestrator(reg, chatSvc, store, meetings, cfg.ChatHistoryLimit)

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Classmeet signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
