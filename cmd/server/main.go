package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/config"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/handlers"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/imaging"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/logging"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/telemetry"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/upstream"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		logConsole bool
	)

	cmd := &cobra.Command{
		Use:           "zivyobraz-proxy",
		Short:         "Serve ZivyObraz images to e-paper devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logConsole)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the configuration file")
	cmd.Flags().BoolVar(&logConsole, "log-console", false, "Use human-readable console logs even when stdout is not a terminal")
	return cmd
}

func run(configPath string, logConsole bool) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Initialize logger
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: logConsole})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	for _, warning := range cfg.Warnings() {
		logger.Warn("Configuration warning", zap.String("detail", warning))
	}

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	client := upstream.NewClient(cfg.Zivyobraz.APIBaseURL, cfg.Zivyobraz.APIImportURL,
		upstream.WithTimeout(cfg.Upstream.Timeout))
	reporter := telemetry.NewReporter(client, cfg.Zivyobraz.Location, logger)
	pipeline := handlers.NewPipeline(client, reporter, imaging.NewTranscoder(), logger)

	mux := http.NewServeMux()
	router := handlers.NewRouter(pipeline, registry, logger)
	if err := router.RegisterRoutes(mux); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.Int("port", cfg.Server.Port),
			zap.Int("devices", registry.Len()),
			zap.String("config", configPath))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
		return nil
	case <-quit:
	}

	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
