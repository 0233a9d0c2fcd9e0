package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-slowpeers/internal/api"
	"github.com/miradorstack/mirador-slowpeers/internal/config"
	"github.com/miradorstack/mirador-slowpeers/internal/metrics"
	"github.com/miradorstack/mirador-slowpeers/internal/publish"
	"github.com/miradorstack/mirador-slowpeers/internal/services"
	"github.com/miradorstack/mirador-slowpeers/internal/tracker"
	"github.com/miradorstack/mirador-slowpeers/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker gRPC service and monitoring endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(configPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("config", "", "Path to configuration file")
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting slowpeer-tracker",
		slog.String("address", cfg.Server.Address),
		slog.Bool("enabled", cfg.Tracker.Enabled),
		slog.Duration("reportValidity", cfg.Tracker.ReportValidity()),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return err
	}

	tr := tracker.New(tracker.ConfigFromInterval(cfg.Tracker.ReportInterval, cfg.Tracker.MaxNodesToReport), logger, nil)
	svc := services.NewSlowPeerService(logger, tr, cfg.Tracker.Enabled)

	server, err := api.NewServer(cfg.Server, svc)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var monitorServer *http.Server
	if cfg.Server.HTTPAddress != "" {
		monitorServer = &http.Server{
			Addr:         cfg.Server.HTTPAddress,
			Handler:      api.NewMonitorHandler(svc, logger),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("monitoring server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := monitorServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("monitoring server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if cfg.Tracker.Enabled && cfg.Tracker.SweepInterval > 0 {
		go svc.RunSweeper(ctx, cfg.Tracker.SweepInterval)
	}

	if cfg.Publish.Enabled {
		provider, err := publish.NewValkeyProvider(ctx, cfg.Publish)
		if err != nil {
			logger.Warn("snapshot publishing unavailable", slog.Any("error", err))
		} else {
			publisher := publish.NewPublisher(logger, provider, svc, cfg.Publish.Key, cfg.Publish.TTL, cfg.Publish.Interval)
			defer publisher.Close()
			go publisher.Run(ctx)
		}
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if monitorServer != nil {
		monitorCtx, cancelMonitor := context.WithTimeout(context.Background(), 5*time.Second)
		if err := monitorServer.Shutdown(monitorCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("monitoring server shutdown", slog.Any("error", err))
		}
		cancelMonitor()
	}

	logger.Info("slowpeer-tracker stopped")
	return nil
}
