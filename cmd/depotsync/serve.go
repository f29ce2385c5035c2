package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/ndewijer/depotsync/internal/api"
	"github.com/ndewijer/depotsync/internal/scheduler"
)

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the HTTP API and run scheduled ingestion" }
func (*serveCmd) Usage() string {
	return `depotsync serve

  Serves the dividend API on SERVER_HOST:SERVER_PORT. When INGEST_SCHEDULE is
  set, ingestion runs on that cron schedule.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	log := a.log

	var sched *scheduler.Scheduler
	if a.cfg.Ingest.Schedule != "" {
		sched, err = scheduler.New(a.cfg.Ingest.Schedule, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create scheduler")
			return subcommands.ExitFailure
		}
		err = sched.Start(ctx, func(ctx context.Context) {
			if _, err := a.ingestion.TryRun(ctx); err != nil {
				log.Warn().Err(err).Msg("Scheduled ingestion skipped")
			}
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to start scheduler")
			return subcommands.ExitFailure
		}
	}

	// Create router
	router := api.NewRouter(a.system, a.dividends, a.ingestion, a.cfg, log)

	// Create HTTP server. Ingestion may wait minutes for a challenge, so
	// writes get more time than reads.
	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.cfg.Broker.TANTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.Server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	status := subcommands.ExitSuccess
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
		status = subcommands.ExitFailure
	}

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn().Msg("Scheduled ingestion still running at shutdown")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return subcommands.ExitFailure
	}

	log.Info().Msg("Server exited")
	return status
}
