// Package memory holds the in-process local favorites cache.
package memory

import (
	"context"
	"sort"
	"sync"

	"service_locator/internal/domain"
)

type Favorites struct {
	mu    sync.Mutex
	items map[string]domain.Favorite
	subs  map[chan []domain.Favorite]struct{}
}

func NewFavorites() *Favorites {
	return &Favorites{
		items: map[string]domain.Favorite{},
		subs:  map[chan []domain.Favorite]struct{}{},
	}
}

func (s *Favorites) Upsert(ctx context.Context, f domain.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[f.PlaceID] = f
	s.notifyLocked()
	return nil
}

func (s *Favorites) Delete(ctx context.Context, placeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[placeID]; !ok {
		return nil
	}
	delete(s.items, placeID)
	s.notifyLocked()
	return nil
}

func (s *Favorites) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[string]domain.Favorite{}
	s.notifyLocked()
	return nil
}

func (s *Favorites) Exists(ctx context.Context, placeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[placeID]
	return ok, nil
}

func (s *Favorites) List(ctx context.Context) ([]domain.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Observe keeps only the latest snapshot for slow readers.
func (s *Favorites) Observe(ctx context.Context) (<-chan []domain.Favorite, error) {
	ch := make(chan []domain.Favorite, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *Favorites) snapshotLocked() []domain.Favorite {
	out := make([]domain.Favorite, 0, len(s.items))
	for _, f := range s.items {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out
}

func (s *Favorites) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
