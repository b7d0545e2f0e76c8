package domain

import "context"

// PlacesProvider is the upstream places search + details API.
type PlacesProvider interface {
	// NearbySearch returns the places of one category around origin, ranked by the
	// provider by distance. A data-empty answer is a nil error with no records.
	NearbySearch(ctx context.Context, origin Coordinate, category string, creds Credentials) ([]PlaceRecord, error)
	// Details returns ErrNotFound when the provider has nothing for id.
	Details(ctx context.Context, id string, creds Credentials) (PlaceRecord, error)
}

// Geocoder resolves free text to at most one coordinate; ErrNotFound when no match.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinate, error)
}

// Locator yields the device position. It may return ErrPermissionDenied.
type Locator interface {
	Locate(ctx context.Context) (Coordinate, error)
}

// LocalFavorites is the on-device favorites cache.
type LocalFavorites interface {
	Upsert(ctx context.Context, f Favorite) error
	Delete(ctx context.Context, placeID string) error
	DeleteAll(ctx context.Context) error
	Exists(ctx context.Context, placeID string) (bool, error)
	List(ctx context.Context) ([]Favorite, error)
	// Observe emits the full record set immediately and again after every change.
	// The channel is closed when ctx is done.
	Observe(ctx context.Context) (<-chan []Favorite, error)
}

// RemoteFavorites is the per-account durable favorites store.
type RemoteFavorites interface {
	GetAll(ctx context.Context, accountID string) ([]Favorite, error)
	Set(ctx context.Context, accountID string, f Favorite) error
	Delete(ctx context.Context, accountID, placeID string) error
}

// IdentityProvider exposes the current session and its change stream.
type IdentityProvider interface {
	Current() *Session
	// Subscribe delivers every session change after the call. The channel is
	// closed when ctx is done.
	Subscribe(ctx context.Context) <-chan *Session
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
