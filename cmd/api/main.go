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

	"github.com/samirrijal/tripsim/internal/adapters/http"
	natsadapter "github.com/samirrijal/tripsim/internal/adapters/nats"
	"github.com/samirrijal/tripsim/internal/adapters/nominatim"
	"github.com/samirrijal/tripsim/internal/adapters/osrm"
	"github.com/samirrijal/tripsim/internal/adapters/postgres"
	"github.com/samirrijal/tripsim/internal/adapters/valkey"
	"github.com/samirrijal/tripsim/internal/core/ports"
	"github.com/samirrijal/tripsim/internal/core/usecases"
	"github.com/samirrijal/tripsim/internal/pkg/config"
	"github.com/samirrijal/tripsim/internal/pkg/logging"
	"github.com/samirrijal/tripsim/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("tripsim-api")
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
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				_ = shutdown(sctx)
			}()
		}
	}

	// Database (geocode cache only; the simulator runs without it)
	var db *postgres.DB
	if cfg.Database.Enabled {
		db, err = postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("database unavailable, geocode results will not be persisted", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	// Cache
	var cache *valkey.Cache
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// NATS
	var pub *natsadapter.Publisher
	if cfg.NATS.Enabled {
		pub, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, events will not be published", "error", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	// Routing: OSRM, memoized in valkey when available
	var router ports.RoutingClient = osrm.New(osrm.Config{
		BaseURL:     cfg.Routing.BaseURL,
		Profile:     cfg.Routing.Profile,
		Format:      cfg.Routing.Geometry,
		Timeout:     cfg.Routing.Timeout,
		MaxAttempts: cfg.Routing.MaxAttempts,
	})
	if cache != nil {
		router = usecases.NewCachingRouter(router, cache, cfg.Routing.Profile, cfg.Routing.CacheTTL)
	}

	var events ports.EventPublisher
	if pub != nil {
		events = pub
	}

	sim := usecases.NewSimulator(router, events, usecases.SimulatorConfig{
		TickInterval:       cfg.Playback.TickInterval,
		NoticeTTL:          cfg.Playback.NoticeTTL,
		CameraOffsetMeters: cfg.Playback.CameraOffsetMeters,
		Limits: usecases.PlaybackLimits{
			MinSpeedKmh:     cfg.Playback.MinSpeedKmh,
			MaxSpeedKmh:     cfg.Playback.MaxSpeedKmh,
			DefaultSpeedKmh: cfg.Playback.DefaultSpeedKmh,
		},
	})
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		if err := sim.Run(ctx); err != nil {
			slog.Error("simulator stopped", "error", err)
		}
	}()

	// Search: Nominatim, persisted in postgres when available
	geocoder := nominatim.New(nominatim.Config{
		BaseURL:        cfg.Geocoding.BaseURL,
		UserAgent:      cfg.Geocoding.UserAgent,
		AcceptLanguage: cfg.Geocoding.AcceptLanguage,
		Timeout:        cfg.Geocoding.Timeout,
		MaxAttempts:    cfg.Geocoding.MaxAttempts,
	})
	var geocodeCache ports.GeocodeCacheRepository
	if db != nil {
		repo := postgres.NewGeocodeRepo(db)
		geocodeCache = repo
		go purgeGeocodeCache(ctx, repo, cfg.Geocoding.CacheTTL)
	}
	search := usecases.NewSearchService(geocoder, geocodeCache, cfg.Geocoding.Limit, cfg.Geocoding.CacheTTL)

	deps := &http.Dependencies{
		Simulator: sim,
		Search:    search,
		DB:        db,
		Cache:     cache,
		Version:   version,
	}
	if pub != nil {
		deps.NATS = pub.Conn()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024,
		AppName:      "TripSim API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
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

	cancel()
	<-simDone
	slog.Info("server stopped")
}

// purgeGeocodeCache drops expired search results once an hour.
func purgeGeocodeCache(ctx context.Context, repo *postgres.GeocodeRepo, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Purge(ctx, time.Now().Add(-ttl))
			if err != nil {
				slog.Warn("geocode cache purge failed", "error", err)
				continue
			}
			slog.Debug("geocode cache purged", "rows", n)
		}
	}
}
