package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"service_locator/internal/domain"
)

// DefaultCategories are the public-service categories searched when none are configured.
var DefaultCategories = []string{"hospital", "school", "pharmacy", "police", "park"}

type Options struct {
	Categories      []string
	Credentials     domain.Credentials
	DefaultRadiusKm float64
	LookupTimeout   time.Duration // device locator, geocoder, details
	SearchTimeout   time.Duration // whole aggregation
	CacheTTL        time.Duration
}

type Deps struct {
	Aggregator *Aggregator
	Favorites  *FavoritesSync
	Places     domain.PlacesProvider
	Geocoder   domain.Geocoder
	Locator    domain.Locator
	Cache      domain.Cache // optional
}

// DiscoveryService is the single entry point for presentation code.
type DiscoveryService struct {
	agg      *Aggregator
	favs     *FavoritesSync
	places   domain.PlacesProvider
	geocoder domain.Geocoder
	locator  domain.Locator
	cache    domain.Cache
	opts     Options
}

func NewDiscoveryService(d Deps, o Options) *DiscoveryService {
	if len(o.Categories) == 0 {
		o.Categories = DefaultCategories
	}
	if o.DefaultRadiusKm <= 0 {
		o.DefaultRadiusKm = 10
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 10 * time.Second
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 15 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 15 * time.Minute
	}
	return &DiscoveryService{
		agg:      d.Aggregator,
		favs:     d.Favorites,
		places:   d.Places,
		geocoder: d.Geocoder,
		locator:  d.Locator,
		cache:    d.Cache,
		opts:     o,
	}
}

func (s *DiscoveryService) DefaultRadiusKm() float64 { return s.opts.DefaultRadiusKm }

// ---- discovery ----

// Search aggregates around origin and returns the visible subset for query and
// radiusKm (the default radius when radiusKm <= 0).
func (s *DiscoveryService) Search(ctx context.Context, origin domain.Coordinate, query string, radiusKm float64) ([]domain.RankedPlace, error) {
	master, err := s.aggregate(ctx, origin)
	if err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = s.opts.DefaultRadiusKm
	}
	return Filter(master, query, radiusKm), nil
}

// Load aggregates around origin and replaces the master list of p. On failure
// p keeps its previous master list.
func (s *DiscoveryService) Load(ctx context.Context, origin domain.Coordinate, p *Pipeline) error {
	master, err := s.aggregate(ctx, origin)
	if err != nil {
		return err
	}
	p.SetMaster(master)
	return nil
}

func (s *DiscoveryService) aggregate(ctx context.Context, origin domain.Coordinate) ([]domain.RankedPlace, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()
	return s.agg.Aggregate(ctx, origin, s.opts.Categories, s.opts.Credentials)
}

// Locate asks the device locator for a fix, bounded by the lookup timeout.
func (s *DiscoveryService) Locate(ctx context.Context) (domain.Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	c, err := s.locator.Locate(ctx)
	if err != nil {
		return domain.Coordinate{}, asTimeout(err)
	}
	return c, nil
}

// ResolveCity geocodes text; ok is false when there is no match.
func (s *DiscoveryService) ResolveCity(ctx context.Context, text string) (domain.Coordinate, bool, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Coordinate{}, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	c, err := s.geocoder.Geocode(ctx, text)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Info().Str("query", text).Msg("no coordinates found for city")
		return domain.Coordinate{}, false, nil
	case err != nil:
		return domain.Coordinate{}, false, asTimeout(err)
	}
	return c, true, nil
}

// Details returns the full record for id; ok is false when the provider has none.
func (s *DiscoveryService) Details(ctx context.Context, id string) (domain.PlaceRecord, bool, error) {
	id = strings.TrimSpace(id)
	key := fmt.Sprintf("place:%s", id)
	var rec domain.PlaceRecord
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &rec); ok {
			return rec, true, nil
		}
	}

	lctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()
	rec, err := s.places.Details(lctx, id, s.opts.Credentials)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.PlaceRecord{}, false, nil
	case err != nil:
		return domain.PlaceRecord{}, false, asTimeout(err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, rec, int(s.opts.CacheTTL.Seconds()))
	}
	return rec, true, nil
}

// ---- favorites ----

// ToggleFavorite adds or removes place based on its current membership and
// reports the new membership.
func (s *DiscoveryService) ToggleFavorite(ctx context.Context, place domain.PlaceRecord) (bool, error) {
	return s.favs.Toggle(ctx, place)
}

func (s *DiscoveryService) IsFavorite(ctx context.Context, id string) (bool, error) {
	return s.favs.IsFavorite(ctx, id)
}

func (s *DiscoveryService) Favorites(ctx context.Context) ([]domain.Favorite, error) {
	return s.favs.List(ctx)
}

func (s *DiscoveryService) ObserveFavorites(ctx context.Context) (<-chan []domain.Favorite, error) {
	return s.favs.Observe(ctx)
}

// OnAccountChanged drives the restore/purge lifecycle; nil means logged out.
func (s *DiscoveryService) OnAccountChanged(ctx context.Context, sess *domain.Session) error {
	return s.favs.OnSessionChanged(ctx, sess)
}

func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}
