// Command notifier runs the wanderer-notifier event-ingest and
// notification pipeline: one SSE consumer per tracked map, killmail
// enrichment and dispatch, license gating, and the telemetry/analytics
// collectors that observe them. Wiring mirrors cmd/falcon/main.go's shape:
// config load, component construction in dependency order, signal-based
// graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"wanderer-notifier/internal/analytics"
	"wanderer-notifier/internal/cache"
	"wanderer-notifier/internal/dedup"
	"wanderer-notifier/internal/entities"
	"wanderer-notifier/internal/esi"
	"wanderer-notifier/internal/killmail"
	"wanderer-notifier/internal/license"
	"wanderer-notifier/internal/model"
	"wanderer-notifier/internal/notify"
	"wanderer-notifier/internal/registry"
	"wanderer-notifier/internal/shutdown"
	"wanderer-notifier/internal/sse"
	"wanderer-notifier/internal/telemetry"
	"wanderer-notifier/pkg/config"
	"wanderer-notifier/pkg/database"
	"wanderer-notifier/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("fatal: configuration load failed", "error", err)
		os.Exit(1)
	}

	tm := logging.NewTelemetryManager(logging.TelemetryConfig{
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
		OTLPEndpoint:     cfg.OTLPEndpoint,
		EnableTelemetry:  cfg.EnableTelemetry,
		LogLevel:         cfg.LogLevel,
		EnablePrettyLogs: cfg.EnablePrettyLogs,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tm.Initialize(rootCtx); err != nil {
		slog.Error("fatal: telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer tm.Shutdown(context.Background())

	var redisClient *database.Redis
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedis(rootCtx)
		if err != nil {
			slog.Warn("redis unavailable, running without persistent ESI cache tier", "error", err)
			redisClient = nil
		}
	}

	c := cache.New()
	reg := registry.New(c)
	dd := dedup.New(c, time.Duration(cfg.DedupTTLSeconds)*time.Second)

	esiClient := esi.NewClient(esi.Config{
		BaseURL:       cfg.ESIBase + "/latest",
		Redis:         redisClient,
		EnableTracing: cfg.EnableTelemetry,
	}, c)

	gate := license.New(cfg.LicenseBase, cfg.LicenseKey, cfg.APIToken, cfg.LicenseRefreshInterval, cfg.Environment == "dev")

	transport := notify.NewDiscordWebhookTransport(cfg.ChatWebhookURL, &http.Client{Timeout: 10 * time.Second})
	an := analytics.New(60*time.Second, time.Hour)
	dispatcher := notify.New(transport, notify.ChannelIDs(cfg.ChannelIDs), dispatchRecorder{an}, 500)

	handlers := entities.New(reg, dd, dispatcher, featureGate{gate}, eventRecorder{an}, time.Duration(cfg.StartupSuppressionSeconds)*time.Second)

	pipeline := killmail.New(esiClient, dd, reg, dispatcher, killmailRecorder{an}, killmail.Config{
		EnrichmentTimeout: 30 * time.Second,
	})

	router := sse.NewRouter(cfg.MapBase, cfg.MapSlug, &http.Client{Timeout: 15 * time.Second})
	router.On(model.CategorySystem, handlers.HandleSystemEvent)
	router.On(model.CategoryCharacter, handlers.HandleCharacterEvent)

	collector := telemetry.New(
		connectionSource{router},
		processingSource{an},
		dedupSource{dd},
		cfg.CollectionInterval,
		cfg.RetentionPeriod,
	)

	coord := shutdown.New(30 * time.Second)
	coord.Go("license-gate", func() { gate.Run(rootCtx) })
	coord.Go("sse-router", func() { router.Run(rootCtx) })
	coord.Go("killmail-pipeline", func() { pipeline.Run(rootCtx) })
	coord.Go("notification-dispatcher", func() { dispatcher.Run(rootCtx) })
	coord.Go("telemetry-collector", func() {
		if err := collector.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			slog.Error("telemetry collector stopped", "error", err)
		}
	})
	coord.Go("analytics", func() { an.Run(rootCtx) })

	adminServer := &http.Server{
		Addr:    cfg.AdminListenAddr,
		Handler: telemetry.Routes(collector, pipeline.Override(), cfg.AggregationWindow),
	}
	coord.Go("admin-http", func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin http server failed", "error", err)
		}
	})

	slog.Info("wanderer-notifier started", "admin_addr", cfg.AdminListenAddr, "map_slug", cfg.MapSlug)

	<-rootCtx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = adminServer.Shutdown(shutdownCtx)

	coord.Shutdown()
}
