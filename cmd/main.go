// Entry point: reads configuration, wires dependencies and serves the directory API; routes live in internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"org-directory/internal/activity"
	"org-directory/internal/api"
	"org-directory/internal/config"
	"org-directory/internal/directory"
	"org-directory/internal/geo"
	"org-directory/internal/logger"
	"org-directory/internal/metrics"
	"org-directory/internal/middleware"
	"org-directory/internal/migrate"
	"org-directory/internal/store"
	"org-directory/internal/telemetry"
	"org-directory/internal/utils"
)

func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	l.Debug("log_init_ok")
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Debug("config_loaded", "driver", cfg.DB.Driver, "geo", cfg.Geo.Strategy, "api_base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.ConfigFromEnv())
	if err != nil {
		l.Error("telemetry_init_error", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := utils.OpenDB(cfg.DB)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	l.Info("db_open_ok", "driver", cfg.DB.Driver)
	if cfg.SchemaBootstrap {
		if err := migrate.EnsureSchema(db, cfg.DB.Driver, cfg.Geo.Strategy == config.GeoPostGIS); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		l.Info("schema_ok")
	}
	st := store.AttachDB(db, cfg.DB.Driver)

	rc := utils.OpenRedis(cfg.Redis)
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	var locator api.IPLocator
	if cfg.GeoIPPath != "" {
		g, err := api.OpenGeoIP(cfg.GeoIPPath)
		if err != nil {
			l.Error("geoip_open_error", "err", err)
		} else {
			defer g.Close()
			locator = g
			l.Info("geoip_ready", "path", cfg.GeoIPPath)
		}
	}

	finder, err := geo.NewFinder(cfg.Geo.Strategy, func(n int) { metrics.BuildingsScanned.Observe(float64(n)) })
	if err != nil {
		l.Error("geo_strategy_error", "err", err)
		os.Exit(1)
	}
	l.Info("geo_strategy", "name", finder.Name(), "default_radius_m", cfg.Geo.DefaultRadiusM)
	resolver := activity.NewResolver(func(n int) { metrics.ClosureSize.Observe(float64(n)) })
	svc := directory.New(st, resolver, finder)

	apiMux := api.BuildRoutes(svc, api.Options{
		DefaultRadiusM: cfg.Geo.DefaultRadiusM,
		Cache:          api.NewQueryCache(rc, cfg.Redis.TTL),
		Locator:        locator,
		Health:         st.Ping,
	})
	mux := http.NewServeMux()
	if cfg.APIBase == "" {
		mux.Handle("/", apiMux)
	} else {
		mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	}
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.RateLimit(cfg.RateLimit, handler)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	l.Info("listening", "addr", cfg.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
	}
}
