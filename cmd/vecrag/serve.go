package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/metrics"
	chiTransport "github.com/kailas-cloud/vecrag/internal/transport/chi"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	usageuc "github.com/kailas-cloud/vecrag/internal/usecase/usage"
	"github.com/kailas-cloud/vecrag/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

Examples:
  # Local config (config/local.yaml)
  vecrag serve

  # Production config
  vecrag serve --env prod`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	logger.Info("Starting vecrag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", a.cfg.HTTP.Port),
		zap.String("object_store", a.cfg.ObjectStore.Backend),
		zap.Int("cache_capacity", a.cfg.Index.CacheCapacity),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterIndexMetrics()
	metrics.RegisterHTTPMetrics()

	svc, err := a.buildServices(ctx)
	if err != nil {
		return err
	}
	// Detached usage and escalation calls finish before the cache closes.
	defer svc.rag.Wait()

	// Usage service reads from the shared BudgetTracker
	var budgetReader usageuc.BudgetReader
	if svc.budget != nil {
		budgetReader = svc.budget
	}
	usageSvc := usageuc.New(budgetReader, svc.budgetName)

	var dbPinger healthuc.DBPinger
	if a.store != nil {
		dbPinger = a.store
	}
	var blobs healthuc.BlobGetter
	if a.remote != nil {
		blobs = a.remote
	}
	healthSvc := healthuc.New(dbPinger, healthuc.Components{
		Embedding:   svc.embedder,
		Generation:  svc.generator,
		ObjectStore: blobs,
	})

	server := chiTransport.NewServer(svc.rag, usageSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(a.cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
