package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zabbixstack/zabbix-rca/internal/api"
	"github.com/zabbixstack/zabbix-rca/internal/cache"
	"github.com/zabbixstack/zabbix-rca/internal/config"
	"github.com/zabbixstack/zabbix-rca/internal/engine"
	"github.com/zabbixstack/zabbix-rca/internal/impact"
	"github.com/zabbixstack/zabbix-rca/internal/llm"
	"github.com/zabbixstack/zabbix-rca/internal/metrics"
	"github.com/zabbixstack/zabbix-rca/internal/patterns"
	"github.com/zabbixstack/zabbix-rca/internal/ranker"
	"github.com/zabbixstack/zabbix-rca/internal/store"
	"github.com/zabbixstack/zabbix-rca/internal/trends"
	"github.com/zabbixstack/zabbix-rca/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting zabbix-rca", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, continuing without cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	gateway, err := store.NewSQLiteGateway(cfg.Store.Path, cfg.Store.QueryTimeout)
	if err != nil {
		logger.Error("failed to open event store", slog.String("path", cfg.Store.Path), slog.Any("error", err))
		os.Exit(1)
	}
	defer gateway.Close()

	modelClient := llm.NewOllamaClient(llm.Config{
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
		Timeout: cfg.Model.Timeout,
	}, logger)

	orchestrator := engine.NewOrchestrator(
		gateway,
		ranker.New(gateway, logger),
		patterns.NewAnalyzer(gateway, logger, cfg.Analysis.RecentEventsLimit),
		trends.NewAnalyzer(gateway, logger),
		impact.NewAnalyzer(gateway, logger),
		modelClient,
		logger,
		engine.Options{
			MaxContextResults: cfg.Analysis.MaxContextResults,
			TrendWindowHours:  cfg.Analysis.TrendWindowHours,
			RunTimeout:        cfg.Analysis.RunTimeout,
		},
	)

	handlers := api.NewHandlers(orchestrator, gateway, cacheProvider, cfg.Cache.AnalysisTTL, logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("zabbix-rca stopped")
}
