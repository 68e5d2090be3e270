package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tsig-uy/mapgate/internal/adapters/http"
	natsadapter "github.com/tsig-uy/mapgate/internal/adapters/nats"
	"github.com/tsig-uy/mapgate/internal/adapters/osrm"
	"github.com/tsig-uy/mapgate/internal/adapters/transit"
	"github.com/tsig-uy/mapgate/internal/adapters/valkey"
	"github.com/tsig-uy/mapgate/internal/adapters/wms"
	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/ports"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
	"github.com/tsig-uy/mapgate/internal/pkg/config"
	"github.com/tsig-uy/mapgate/internal/pkg/logging"
	"github.com/tsig-uy/mapgate/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("mapgate")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
	}

	// NATS publisher for map events
	var events ports.EventPublisher
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		events = publisher
		defer publisher.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Outbound clients
	layers := []usecases.LayerSpec{
		{Name: cfg.WMS.StopsLayer.Name, Style: cfg.WMS.StopsLayer.Style, Type: domain.FeatureStop},
		{Name: cfg.WMS.LinesLayer.Name, Style: cfg.WMS.LinesLayer.Style, Type: domain.FeatureLine},
	}
	layerTypes := make(map[string]domain.FeatureType, len(layers))
	for _, l := range layers {
		layerTypes[l.Name] = l.Type
	}

	wmsTimeout := time.Duration(cfg.WMS.TimeoutSeconds) * time.Second
	featureClient := wms.NewClient(cfg.WMS.URL, cfg.WMS.Version, wmsTimeout+5*time.Second, layerTypes)
	lineClient := transit.NewClient(cfg.LinesAPI.BaseURL, time.Duration(cfg.LinesAPI.TimeoutSeconds)*time.Second)
	roadRouter := osrm.NewClient(cfg.Routing.OSRMURL, cfg.Routing.Profile, 10*time.Second)

	// Use cases
	var cacheSvc ports.CacheService
	if cache != nil {
		cacheSvc = cache
	}
	lineSearch := usecases.NewLineSearchService(lineClient, cacheSvc)

	sessions := usecases.NewSessionManager(
		usecases.SessionDeps{
			Features:  featureClient,
			Validator: lineClient,
			Saver:     lineClient,
			Events:    events,
		},
		usecases.SessionOptions{
			Layers:          layers,
			Tolerance:       cfg.WMS.Tolerance,
			MaxFeatures:     cfg.WMS.MaxFeatures,
			InfoFormat:      cfg.WMS.InfoFormat,
			ThrottleLimit:   cfg.Throttle.MaxConcurrent,
			ThrottleSpacing: time.Duration(cfg.Throttle.SpacingMillis) * time.Millisecond,
			QueryTimeout:    wmsTimeout,
			TTL:             time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		},
	)
	sessions.StartSweeper(ctx, time.Minute)

	deps := &http.Dependencies{
		Sessions: sessions,
		Lines:    lineSearch,
		Preview:  roadRouter,
		NATS:     natsConn,
		Cache:    cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "mapgate",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:4200, http://localhost:5173",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("gateway starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
