package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "service_locator/internal/adapters/http_server"
	"service_locator/internal/adapters/locator"
	"service_locator/internal/adapters/nominatim"
	"service_locator/internal/adapters/observability"
	"service_locator/internal/adapters/places"
	redisad "service_locator/internal/adapters/redis"
	"service_locator/internal/app"
	"service_locator/internal/domain"
	"service_locator/internal/identity"
	"service_locator/internal/shared"
	"service_locator/internal/storage/memory"
	mysqlrepo "service_locator/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	observability.Serve()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// remote favorites
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	remote := mysqlrepo.New(db)

	// cache + local favorites
	rdb := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	cache := redisad.New(rdb)
	var local domain.LocalFavorites
	switch cfg.LocalStore {
	case "redis":
		local = redisad.NewFavorites(rdb, cfg.DeviceID)
	default:
		local = memory.NewFavorites()
	}
	log.Info().Str("store", cfg.LocalStore).Msg("local favorites store ready")

	// upstreams
	provider, err := places.New(cfg.PlacesBase, cfg.PlacesKey, cfg.PlacesRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize places client")
	}
	geocoder := nominatim.New(cfg.GeoBase, cfg.GeoRPS)
	device := locator.NewStatic(domain.Coordinate{Lat: cfg.DeviceLat, Lng: cfg.DeviceLng})

	// engine
	favs := app.NewFavoritesSync(local, remote, cfg.WriteTimeout, cfg.Parallelism)
	svc := app.NewDiscoveryService(app.Deps{
		Aggregator: app.NewAggregator(provider, cfg.CategoryTimeout, cfg.Parallelism),
		Favorites:  favs,
		Places:     provider,
		Geocoder:   geocoder,
		Locator:    device,
		Cache:      cache,
	}, app.Options{
		Categories:      cfg.Categories,
		Credentials:     domain.Credentials{APIKey: cfg.PlacesKey},
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		LookupTimeout:   cfg.LookupTimeout,
		SearchTimeout:   cfg.SearchTimeout,
		CacheTTL:        cfg.CacheTTL,
	})

	sessions := identity.NewSignal()
	go favs.Watch(ctx, sessions)

	var verifier *identity.Verifier
	if cfg.JWTSecret != "" {
		verifier = identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}

	// http
	srv := server.New(cfg.SearchTimeout+5*time.Second, sessions)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Svc: svc, Verifier: verifier, Sessions: sessions})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := favs.Flush(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending favorite writes abandoned")
	}
	_ = rdb.Close()
	_ = db.Close()
}
