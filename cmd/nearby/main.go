// Command nearby runs one discovery search and prints the visible places as
// JSON lines, optionally with full details.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"service_locator/internal/adapters/locator"
	"service_locator/internal/adapters/nominatim"
	"service_locator/internal/adapters/observability"
	"service_locator/internal/adapters/places"
	"service_locator/internal/app"
	"service_locator/internal/domain"
	"service_locator/internal/shared"
)

type line struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Address    string              `json:"address"`
	Category   string              `json:"category"`
	DistanceKm float64             `json:"distance_km"`
	Details    *domain.PlaceRecord `json:"details,omitempty"`
}

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	lat := flag.Float64("lat", cfg.DeviceLat, "origin latitude")
	lng := flag.Float64("lng", cfg.DeviceLng, "origin longitude")
	city := flag.String("city", "", "resolve the origin from a city name instead of lat/lng")
	query := flag.String("q", "", "name/address filter")
	radius := flag.Float64("radius", cfg.DefaultRadiusKm, "max distance in km")
	details := flag.Bool("details", false, "fetch full details for every result")
	flag.Parse()

	ctx := context.Background()

	provider, err := places.New(cfg.PlacesBase, cfg.PlacesKey, cfg.PlacesRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize places client")
	}
	svc := app.NewDiscoveryService(app.Deps{
		Aggregator: app.NewAggregator(provider, cfg.CategoryTimeout, cfg.Parallelism),
		Places:     provider,
		Geocoder:   nominatim.New(cfg.GeoBase, cfg.GeoRPS),
		Locator:    locator.NewStatic(domain.Coordinate{Lat: *lat, Lng: *lng}),
	}, app.Options{
		Categories:      cfg.Categories,
		Credentials:     domain.Credentials{APIKey: cfg.PlacesKey},
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		LookupTimeout:   cfg.LookupTimeout,
		SearchTimeout:   cfg.SearchTimeout,
	})

	var origin domain.Coordinate
	if *city != "" {
		c, ok, err := svc.ResolveCity(ctx, *city)
		if err != nil {
			log.Fatal().Err(err).Str("city", *city).Msg("geocoding failed")
		}
		if !ok {
			log.Fatal().Str("city", *city).Msg("no coordinates found")
		}
		origin = c
	} else {
		origin, err = svc.Locate(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("no origin; pass -lat/-lng or -city")
		}
	}

	log.Info().
		Str("origin", origin.String()).
		Float64("radius_km", *radius).
		Str("query", *query).
		Msg("searching")

	found, err := svc.Search(ctx, origin, *query, *radius)
	if err != nil {
		log.Fatal().Err(err).Msg("search failed")
	}

	out := make([]line, len(found))
	for i, rp := range found {
		out[i] = line{
			ID:         rp.Place.ExternalID,
			Name:       rp.Place.Name,
			Address:    rp.Place.Address,
			Category:   rp.Place.PrimaryCategory(),
			DistanceKm: rp.DistanceKm,
		}
	}

	if *details {
		sem := semaphore.NewWeighted(int64(max(cfg.Parallelism, 1)))
		var wg sync.WaitGroup
		for i := range out {
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Fatal().Err(err).Msg("semaphore acquire failed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				rec, ok, err := svc.Details(ctx, out[i].ID)
				if err != nil || !ok {
					log.Warn().Err(err).Str("id", out[i].ID).Msg("details unavailable")
					return
				}
				out[i].Details = &rec
			}()
		}
		wg.Wait()
	}

	enc := json.NewEncoder(os.Stdout)
	for _, l := range out {
		if err := enc.Encode(l); err != nil {
			log.Fatal().Err(err).Msg("write failed")
		}
	}
	log.Info().Int("count", len(out)).Msg("search completed")
}
