package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"service_locator/internal/adapters/observability"
	"service_locator/internal/domain"
)

// FavoritesSync keeps the local favorites cache and the remote per-account
// store consistent. Local writes happen first and are never rolled back; remote
// writes follow in the background, serialized per place id.
type FavoritesSync struct {
	local  domain.LocalFavorites
	remote domain.RemoteFavorites

	// mu guards session. Local writes hold it shared, session swaps (and the
	// purge that goes with a logout) hold it exclusively.
	mu      sync.RWMutex
	session *domain.Session

	lifecycle sync.Mutex // one login/logout transition at a time

	toggles  *keyedLocks // local read-modify-write per id
	writes   *keyedLocks // remote writes per id
	inflight *semaphore.Weighted

	// pendMu guards the write bookkeeping below. idle is closed whenever
	// active drops to zero.
	pendMu  sync.Mutex
	seq     uint64
	pending map[string]*pendingOps
	active  int
	idle    chan struct{}

	writeTimeout time.Duration
}

type pendingOps struct {
	latest uint64
	count  int
}

func NewFavoritesSync(local domain.LocalFavorites, remote domain.RemoteFavorites, writeTimeout time.Duration, maxInflight int) *FavoritesSync {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if maxInflight <= 0 {
		maxInflight = 4
	}
	return &FavoritesSync{
		local:        local,
		remote:       remote,
		toggles:      newKeyedLocks(),
		writes:       newKeyedLocks(),
		inflight:     semaphore.NewWeighted(int64(maxInflight)),
		pending:      map[string]*pendingOps{},
		writeTimeout: writeTimeout,
	}
}

func (s *FavoritesSync) Session() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// ---- identity transitions ----

// OnSessionChanged applies a session transition: login restores from remote,
// logout purges the local cache, and an account switch does both.
func (s *FavoritesSync) OnSessionChanged(ctx context.Context, next *domain.Session) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	prev := s.session
	s.session = next
	var purgeErr error
	switched := prev != nil && next != nil && !domain.SameAccount(prev, next)
	if (prev != nil && next == nil) || switched {
		purgeErr = s.purgeLocked(ctx)
	}
	s.mu.Unlock()

	switch {
	case prev == nil && next == nil, domain.SameAccount(prev, next):
		return nil
	case next == nil:
		log.Info().Str("account", prev.AccountID).Msg("logged out; local favorites purged")
		return purgeErr
	}

	if purgeErr != nil {
		log.Warn().Err(purgeErr).Str("account", prev.AccountID).Msg("purge on account switch failed")
	}
	log.Info().Str("account", next.AccountID).Str("session", next.ID).Msg("logged in; restoring favorites")
	return s.Restore(ctx, next)
}

// Restore copies every remote favorite of sess into the local cache. Local-only
// favorites are left alone, and ids with remote writes still pending keep their
// local state.
func (s *FavoritesSync) Restore(ctx context.Context, sess *domain.Session) error {
	if sess == nil {
		return domain.ErrNoSession
	}
	favs, err := s.remote.GetAll(ctx, sess.AccountID)
	observability.ObserveSync("restore", err)
	if err != nil {
		log.Warn().Err(err).Str("account", sess.AccountID).Msg("restore from remote failed")
		return fmt.Errorf("restore favorites for %s: %w", sess.AccountID, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !domain.SameAccount(s.session, sess) {
		// logged out or switched while fetching
		return nil
	}
	restored := 0
	for _, f := range favs {
		if s.hasPending(f.PlaceID) {
			continue
		}
		if err := s.local.Upsert(ctx, f); err != nil {
			return fmt.Errorf("restore favorite %s: %w", f.PlaceID, err)
		}
		restored++
	}
	log.Info().Str("account", sess.AccountID).Int("restored", restored).Int("remote", len(favs)).Msg("favorites restored")
	return nil
}

// PurgeLocal empties the local cache regardless of remote contents.
func (s *FavoritesSync) PurgeLocal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(ctx)
}

func (s *FavoritesSync) purgeLocked(ctx context.Context) error {
	err := s.local.DeleteAll(ctx)
	observability.ObserveSync("purge", err)
	if err != nil {
		return fmt.Errorf("purge local favorites: %w", err)
	}
	return nil
}

// Watch follows ident until ctx is done, applying every session change.
func (s *FavoritesSync) Watch(ctx context.Context, ident domain.IdentityProvider) {
	changes := ident.Subscribe(ctx)
	if err := s.OnSessionChanged(ctx, ident.Current()); err != nil {
		log.Warn().Err(err).Msg("initial session sync failed")
	}
	for sess := range changes {
		if err := s.OnSessionChanged(ctx, sess); err != nil {
			log.Warn().Err(err).Msg("session sync failed")
		}
	}
}

// ---- per-favorite operations ----

// Add writes place to the local cache and schedules the remote upsert. Remote
// failures are logged, never returned.
func (s *FavoritesSync) Add(ctx context.Context, place domain.PlaceRecord) error {
	fav, err := domain.FavoriteFromPlace(place)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return domain.ErrNoSession
	}
	if err := s.local.Upsert(ctx, fav); err != nil {
		return fmt.Errorf("local upsert %s: %w", fav.PlaceID, err)
	}
	account := s.session.AccountID
	s.propagate(ctx, fav.PlaceID, "set", func(ctx context.Context) error {
		return s.remote.Set(ctx, account, fav)
	})
	return nil
}

// Remove deletes id from the local cache and schedules the remote delete.
func (s *FavoritesSync) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidPlace
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return domain.ErrNoSession
	}
	if err := s.local.Delete(ctx, id); err != nil {
		return fmt.Errorf("local delete %s: %w", id, err)
	}
	account := s.session.AccountID
	s.propagate(ctx, id, "delete", func(ctx context.Context) error {
		return s.remote.Delete(ctx, account, id)
	})
	return nil
}

// Toggle flips membership of place and reports whether it is now a favorite.
func (s *FavoritesSync) Toggle(ctx context.Context, place domain.PlaceRecord) (bool, error) {
	place.ExternalID = strings.TrimSpace(place.ExternalID)
	if place.ExternalID == "" {
		return false, domain.ErrInvalidPlace
	}
	release, err := s.toggles.acquire(ctx, place.ExternalID)
	if err != nil {
		return false, err
	}
	defer release()

	fav, err := s.local.Exists(ctx, place.ExternalID)
	if err != nil {
		return false, err
	}
	if fav {
		return false, s.Remove(ctx, place.ExternalID)
	}
	return true, s.Add(ctx, place)
}

func (s *FavoritesSync) IsFavorite(ctx context.Context, id string) (bool, error) {
	return s.local.Exists(ctx, strings.TrimSpace(id))
}

func (s *FavoritesSync) List(ctx context.Context) ([]domain.Favorite, error) {
	return s.local.List(ctx)
}

func (s *FavoritesSync) Observe(ctx context.Context) (<-chan []domain.Favorite, error) {
	return s.local.Observe(ctx)
}

// Flush waits until every scheduled remote write has finished or ctx is done.
func (s *FavoritesSync) Flush(ctx context.Context) error {
	s.pendMu.Lock()
	if s.active == 0 {
		s.pendMu.Unlock()
		return nil
	}
	idle := s.idle
	s.pendMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---- remote propagation ----

// propagate runs write in the background. Writes for one id run one at a time,
// and a write that was overtaken by a newer one for the same id is skipped, so
// the remote converges on the last local intent.
func (s *FavoritesSync) propagate(ctx context.Context, id, op string, write func(context.Context) error) {
	seq := s.enqueue(id)
	go func() {
		defer s.dequeue(id)

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		release, err := s.writes.acquire(wctx, id)
		if err != nil {
			observability.ObserveSync(op, err)
			log.Warn().Err(err).Str("place_id", id).Str("op", op).Msg("remote favorite write not started")
			return
		}
		defer release()

		if s.superseded(id, seq) {
			observability.ObserveSync("skip", nil)
			return
		}
		if err := s.inflight.Acquire(wctx, 1); err != nil {
			observability.ObserveSync(op, err)
			log.Warn().Err(err).Str("place_id", id).Str("op", op).Msg("remote favorite write not started")
			return
		}
		defer s.inflight.Release(1)

		err = write(wctx)
		observability.ObserveSync(op, err)
		if err != nil {
			log.Warn().Err(err).Str("place_id", id).Str("op", op).Msg("remote favorite write failed; local state kept")
			return
		}
		log.Debug().Str("place_id", id).Str("op", op).Msg("remote favorite write ok")
	}()
}

func (s *FavoritesSync) enqueue(id string) uint64 {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	s.seq++
	p, ok := s.pending[id]
	if !ok {
		p = &pendingOps{}
		s.pending[id] = p
	}
	p.latest = s.seq
	p.count++
	s.active++
	if s.active == 1 {
		s.idle = make(chan struct{})
	}
	return s.seq
}

func (s *FavoritesSync) dequeue(id string) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	if p, ok := s.pending[id]; ok {
		p.count--
		if p.count == 0 {
			delete(s.pending, id)
		}
	}
	s.active--
	if s.active == 0 {
		close(s.idle)
	}
}

func (s *FavoritesSync) superseded(id string, seq uint64) bool {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	p, ok := s.pending[id]
	return ok && p.latest > seq
}

func (s *FavoritesSync) hasPending(id string) bool {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	_, ok := s.pending[id]
	return ok
}
