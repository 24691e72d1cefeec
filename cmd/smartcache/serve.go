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

	"github.com/shammianand/smartcache"
	"github.com/shammianand/smartcache/internal/httpapi"
	"github.com/shammianand/smartcache/internal/logging"
	"github.com/shammianand/smartcache/internal/metrics"
)

var (
	listenAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the cache HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides server.addr)")
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config outside recommended range", "detail", w)
	}

	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	registry, err := smartcache.NewRegistry(settings, smartcache.RegistryOptions{Logger: logger, MaxCaches: cfg.Cache.MaxCaches})
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}
	defer registry.Shutdown()

	api := &httpapi.Server{
		Registry:      registry,
		Logger:        logger,
		Metrics:       metrics.Handler(metrics.NewRegistry("smartcache", registry)),
		MaxValueBytes: cfg.Server.MaxValueBytes,
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr,
			"max_size", settings.MaxSize, "default_ttl", settings.DefaultTTL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
