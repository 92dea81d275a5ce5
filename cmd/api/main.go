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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/placefinder/internal/adapters/http"
	"github.com/samirrijal/placefinder/internal/adapters/imagestore"
	natsadapter "github.com/samirrijal/placefinder/internal/adapters/nats"
	"github.com/samirrijal/placefinder/internal/adapters/postgres"
	"github.com/samirrijal/placefinder/internal/adapters/valkey"
	"github.com/samirrijal/placefinder/internal/core/domain"
	"github.com/samirrijal/placefinder/internal/core/ports"
	"github.com/samirrijal/placefinder/internal/core/proximity"
	"github.com/samirrijal/placefinder/internal/core/usecases"
	"github.com/samirrijal/placefinder/internal/pkg/config"
	"github.com/samirrijal/placefinder/internal/pkg/logging"
	"github.com/samirrijal/placefinder/internal/pkg/metrics"
	"github.com/samirrijal/placefinder/internal/pkg/telemetry"
	"github.com/samirrijal/placefinder/internal/pkg/token"
)

func main() {
	cfg, err := config.Load("placefinder-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache and publisher are optional; the interfaces stay nil when absent.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr, "placefinder:")
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	images, err := imagestore.NewOS(cfg.Storage.UploadDir, cfg.Storage.PublicPrefix, int64(cfg.Server.BodyLimitMB)<<20)
	if err != nil {
		log.Fatalf("image store: %v", err)
	}

	tokens, err := token.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}

	detector, err := proximity.NewDetector(proximity.Config{
		MaxDistanceMeters: cfg.Detection.MaxDistanceMeters,
		EarthRadiusMeters: cfg.Detection.EarthRadiusMeters,
	})
	if err != nil {
		log.Fatalf("detector: %v", err)
	}

	// Repos
	placeRepo := postgres.NewPlaceRepo(db)
	userRepo := postgres.NewUserRepo(db)

	// Use cases
	authSvc := usecases.NewAuthService(userRepo, tokens)
	placeSvc := usecases.NewPlaceService(placeRepo, images, authSvc, cacheSvc, publisher)
	detectionSvc := usecases.NewDetectionService(placeRepo, detector, publisher)

	if cfg.Auth.BootstrapAdmin != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.BootstrapAdmin, cfg.Auth.BootstrapPassword); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
	}

	deps := &http.Dependencies{
		Places:       placeSvc,
		Detection:    detectionSvc,
		Auth:         authSvc,
		DB:           db,
		Cache:        cache,
		Images:       images,
		PublicPrefix: cfg.Storage.PublicPrefix,
		OpenAPIPath:  "api/openapi.yaml",
	}

	// Plain NATS connection for the WebSocket relay and cache invalidation
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats relay conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		deps.NATS = natsConn

		sub := natsadapter.NewSubscriber(natsConn)
		defer sub.Close()
		err := sub.SubscribePlaceRegistered(ctx, func(ctx context.Context, p *domain.Place) error {
			placeSvc.InvalidateList(ctx)
			return nil
		})
		if err != nil {
			slog.Warn("place event subscription failed", "error", err)
		}
	}

	go reportPoolStats(ctx, db)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimitMB << 20,
		AppName:      "Placefinder API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "max_distance_m", detector.MaxDistance())
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

// reportPoolStats refreshes the DB pool gauges until ctx is done.
func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		case <-ctx.Done():
			return
		}
	}
}
