package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"patternbt/internal/httpapi"
	"patternbt/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve journaled runs and on-demand signals over HTTP",
	Long: `Serve starts a read-only JSON API:

  GET /api/runs?limit=N             journaled runs, newest first
  GET /api/runs/{id}/trades         closed trades of one run
  GET /api/strategies               available pattern detectors
  GET /api/symbols                  symbols in the bar source
  GET /api/signals/{symbol}         signals, ?strategy=&start=&end=
  GET /metrics                      Prometheus metrics`,
	RunE: runServe,
}

var serveSource string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSource, "source", "", "bar source: parquet or csv (default run.source)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	source := cfg.Run.Source
	if serveSource != "" {
		source = serveSource
	}
	bars, err := openBarStore(source)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return err
	}
	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	logger := slog.Default()
	srv := httpapi.NewResultsServer(journal, bars, cfg.Run.Market, registry(), cfg.Run.Strategy, logger)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("results API listening", "addr", httpServer.Addr, "source", source)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down results API")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
