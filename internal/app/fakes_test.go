package app_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"service_locator/internal/domain"
)

// ---- fakes ----

type categoryResult struct {
	recs  []domain.PlaceRecord
	err   error
	block bool // wait for ctx to expire
}

type fakeProvider struct {
	mu      sync.Mutex
	results map[string]categoryResult
	details map[string]domain.PlaceRecord
	calls   map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		results: map[string]categoryResult{},
		details: map[string]domain.PlaceRecord{},
		calls:   map[string]int{},
	}
}

func (f *fakeProvider) NearbySearch(ctx context.Context, origin domain.Coordinate, category string, creds domain.Credentials) ([]domain.PlaceRecord, error) {
	f.mu.Lock()
	f.calls[category]++
	r := f.results[category]
	f.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.recs, r.err
}

func (f *fakeProvider) Details(ctx context.Context, id string, creds domain.Credentials) (domain.PlaceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["details:"+id]++
	rec, ok := f.details[id]
	if !ok {
		return domain.PlaceRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeProvider) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type fakeRemote struct {
	mu     sync.Mutex
	data   map[string]map[string]domain.Favorite
	setErr error
	delErr error
	getErr error
	gate   chan struct{} // when set, writes wait for it to close
	writes int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string]map[string]domain.Favorite{}}
}

func (r *fakeRemote) GetAll(ctx context.Context, accountID string) ([]domain.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	var out []domain.Favorite
	for _, f := range r.data[accountID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out, nil
}

func (r *fakeRemote) Set(ctx context.Context, accountID string, f domain.Favorite) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.setErr != nil {
		return r.setErr
	}
	if r.data[accountID] == nil {
		r.data[accountID] = map[string]domain.Favorite{}
	}
	r.data[accountID][f.PlaceID] = f
	return nil
}

func (r *fakeRemote) Delete(ctx context.Context, accountID, placeID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.delErr != nil {
		return r.delErr
	}
	delete(r.data[accountID], placeID)
	return nil
}

func (r *fakeRemote) wait(ctx context.Context) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRemote) seed(account string, favs ...domain.Favorite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data[account] == nil {
		r.data[account] = map[string]domain.Favorite{}
	}
	for _, f := range favs {
		r.data[account][f.PlaceID] = f
	}
}

func (r *fakeRemote) has(account, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[account][id]
	return ok
}

type fakeGeocoder struct {
	hits map[string]domain.Coordinate
}

func (g *fakeGeocoder) Geocode(ctx context.Context, q string) (domain.Coordinate, error) {
	c, ok := g.hits[q]
	if !ok {
		return domain.Coordinate{}, domain.ErrNotFound
	}
	return c, nil
}

type fakeLocator struct {
	pos   domain.Coordinate
	err   error
	delay time.Duration
}

func (l *fakeLocator) Locate(ctx context.Context) (domain.Coordinate, error) {
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return domain.Coordinate{}, ctx.Err()
		}
	}
	return l.pos, l.err
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*domain.PlaceRecord); ok {
		*d = v.(domain.PlaceRecord)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error { return nil }

// ---- helpers ----

func place(id, name, addr string, lat, lng float64, cats ...string) domain.PlaceRecord {
	return domain.PlaceRecord{
		ExternalID: id,
		Name:       name,
		Address:    addr,
		Categories: cats,
		Location:   &domain.Coordinate{Lat: lat, Lng: lng},
	}
}

func ids(rps []domain.RankedPlace) []string {
	out := make([]string, 0, len(rps))
	for _, rp := range rps {
		out = append(out, rp.Place.ExternalID)
	}
	return out
}

func favIDs(fs []domain.Favorite) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.PlaceID)
	}
	sort.Strings(out)
	return out
}
