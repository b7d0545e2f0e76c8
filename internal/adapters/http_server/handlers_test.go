package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "service_locator/internal/adapters/http_server"
	"service_locator/internal/adapters/locator"
	"service_locator/internal/app"
	"service_locator/internal/domain"
	"service_locator/internal/identity"
	"service_locator/internal/storage/memory"
)

// ---- fakes ----

type stubPlaces struct {
	byCategory map[string][]domain.PlaceRecord
	fail       atomic.Bool
}

func (s *stubPlaces) NearbySearch(ctx context.Context, origin domain.Coordinate, category string, creds domain.Credentials) ([]domain.PlaceRecord, error) {
	if s.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return s.byCategory[category], nil
}

func (s *stubPlaces) Details(ctx context.Context, id string, creds domain.Credentials) (domain.PlaceRecord, error) {
	for _, recs := range s.byCategory {
		for _, r := range recs {
			if r.ExternalID == id {
				return r, nil
			}
		}
	}
	return domain.PlaceRecord{}, domain.ErrNotFound
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(ctx context.Context, q string) (domain.Coordinate, error) {
	if q == "Springfield" {
		return domain.Coordinate{Lat: 40.7128, Lng: -74.0060}, nil
	}
	return domain.Coordinate{}, domain.ErrNotFound
}

type memRemote struct {
	mu   sync.Mutex
	data map[string]map[string]domain.Favorite
}

func (m *memRemote) GetAll(ctx context.Context, acct string) ([]domain.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Favorite
	for _, f := range m.data[acct] {
		out = append(out, f)
	}
	return out, nil
}

func (m *memRemote) Set(ctx context.Context, acct string, f domain.Favorite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[acct] == nil {
		m.data[acct] = map[string]domain.Favorite{}
	}
	m.data[acct][f.PlaceID] = f
	return nil
}

func (m *memRemote) Delete(ctx context.Context, acct, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[acct], id)
	return nil
}

// ---- fixture ----

type fixture struct {
	srv      *httptest.Server
	places   *stubPlaces
	favs     *app.FavoritesSync
	verifier *identity.Verifier
}

func newFixture(t *testing.T, device domain.Coordinate) *fixture {
	t.Helper()
	rating := 4.5
	places := &stubPlaces{byCategory: map[string][]domain.PlaceRecord{
		"hospital": {{
			ExternalID: "h1", Name: "City Hospital", Address: "1 Main St",
			Categories: []string{"hospital"},
			Location:   &domain.Coordinate{Lat: 40.72, Lng: -74.0060},
			Rating:     &rating,
		}},
		"park": {{
			ExternalID: "p1", Name: "Oak Park", Address: "Park Ave",
			Categories: []string{"park"},
			Location:   &domain.Coordinate{Lat: 40.715, Lng: -74.0060},
		}},
	}}

	favs := app.NewFavoritesSync(memory.NewFavorites(), &memRemote{data: map[string]map[string]domain.Favorite{}}, time.Second, 2)
	svc := app.NewDiscoveryService(app.Deps{
		Aggregator: app.NewAggregator(places, time.Second, 5),
		Favorites:  favs,
		Places:     places,
		Geocoder:   stubGeocoder{},
		Locator:    locator.NewStatic(device),
	}, app.Options{Categories: []string{"hospital", "park"}})

	verifier := identity.NewVerifier("test-secret", "locator.test")
	sessions := identity.NewSignal()
	s := httpserver.New(5*time.Second, sessions)
	s.MountHandlers(&httpserver.Handlers{Svc: svc, Verifier: verifier, Sessions: sessions})

	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return &fixture{srv: ts, places: places, favs: favs, verifier: verifier}
}

func (f *fixture) do(t *testing.T, method, path, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type searchBody struct {
	Count  int `json:"count"`
	Places []struct {
		ID         string   `json:"id"`
		DistanceKm *float64 `json:"distance_km"`
		Favorite   bool     `json:"favorite"`
	} `json:"places"`
}

// ---- tests ----

func TestSearchPlaces(t *testing.T) {
	f := newFixture(t, domain.Coordinate{})

	resp := f.do(t, "GET", "/v1/places?lat=40.7128&lng=-74.0060", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[searchBody](t, resp)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "p1", body.Places[0].ID)
	assert.Equal(t, "h1", body.Places[1].ID)
	require.NotNil(t, body.Places[0].DistanceKm)

	resp = f.do(t, "GET", "/v1/places?city=Springfield&q=HOSPITAL", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[searchBody](t, resp)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "h1", body.Places[0].ID)
}

func TestSearchPlaces_Errors(t *testing.T) {
	f := newFixture(t, domain.Coordinate{})

	cases := []struct {
		name string
		path string
		want int
	}{
		{"device location denied", "/v1/places", http.StatusForbidden},
		{"unknown city", "/v1/places?city=Atlantis", http.StatusNotFound},
		{"bad coordinates", "/v1/places?lat=abc&lng=1", http.StatusBadRequest},
		{"half coordinates", "/v1/places?lat=10", http.StatusBadRequest},
		{"bad radius", "/v1/places?lat=1&lng=1&radius=-3", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, "GET", tc.path, "", nil)
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
		})
	}

	f.places.fail.Store(true)
	resp := f.do(t, "GET", "/v1/places?lat=40.7&lng=-74", "", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSearchPlaces_DeviceLocation(t *testing.T) {
	f := newFixture(t, domain.Coordinate{Lat: 40.7128, Lng: -74.0060})

	resp := f.do(t, "GET", "/v1/location", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, "GET", "/v1/places?radius=0.5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[searchBody](t, resp)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "p1", body.Places[0].ID)
}

func TestGetPlace_ETag(t *testing.T) {
	f := newFixture(t, domain.Coordinate{})

	resp := f.do(t, "GET", "/v1/places/h1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp = f.do(t, "GET", "/v1/places/h1", "", map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp = f.do(t, "GET", "/v1/places/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFavoritesLifecycle(t *testing.T) {
	f := newFixture(t, domain.Coordinate{})

	// logged out
	resp := f.do(t, "POST", "/v1/favorites/toggle", `{"place_id":"h1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, "POST", "/v1/session", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := f.verifier.Issue("acct-1", time.Hour)
	require.NoError(t, err)
	resp = f.do(t, "POST", "/v1/session", "", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// name omitted: display fields come from details
	resp = f.do(t, "POST", "/v1/favorites/toggle", `{"place_id":"h1"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[map[string]any](t, resp)
	assert.Equal(t, true, state["favorite"])

	resp = f.do(t, "GET", "/v1/favorites", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	favs := decode[[]domain.Favorite](t, resp)
	require.Len(t, favs, 1)
	assert.Equal(t, "City Hospital", favs[0].Name)
	assert.Equal(t, "hospital", favs[0].Category)

	resp = f.do(t, "GET", "/v1/places?lat=40.7128&lng=-74.0060&q=hospital", "", nil)
	body := decode[searchBody](t, resp)
	require.Equal(t, 1, body.Count)
	assert.True(t, body.Places[0].Favorite)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.favs.Flush(ctx))

	resp = f.do(t, "DELETE", "/v1/session", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, "GET", "/v1/favorites/h1", "", nil)
	state = decode[map[string]any](t, resp)
	assert.Equal(t, false, state["favorite"])

	// login again restores from remote
	resp = f.do(t, "POST", "/v1/session", "", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]any](t, resp)["restored"])

	resp = f.do(t, "GET", "/v1/favorites/h1", "", nil)
	state = decode[map[string]any](t, resp)
	assert.Equal(t, true, state["favorite"])
}

func TestToggle_BadBody(t *testing.T) {
	f := newFixture(t, domain.Coordinate{})
	resp := f.do(t, "POST", "/v1/favorites/toggle", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, "POST", "/v1/favorites/toggle", `{"place_id":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
