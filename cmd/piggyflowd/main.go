package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/piggyflow/internal/api"
	"github.com/dvloznov/piggyflow/internal/app"
	"github.com/dvloznov/piggyflow/internal/config"
	"github.com/dvloznov/piggyflow/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (or set CONFIG_PATH env)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New(logger.Options{})
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	// Workers stop through Queue.Stop so a signal does not cut a backup short.
	if err := a.StartJobs(context.WithoutCancel(ctx)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(api.Deps{
			Ledger:    a.Ledger,
			Dashboard: a.Watcher,
			Backups:   a.Coordinator,
			Publisher: a.Queue,
			JobStore:  a.JobStore,
			Log:       log,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("backend", cfg.Backup.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.Watcher.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := a.Queue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close application")
	}

	log.Info().Msg("Server exited")
	if ctx.Err() == nil {
		os.Exit(1)
	}
}
