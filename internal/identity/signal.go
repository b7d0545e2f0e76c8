// Package identity tracks the current account session and verifies the bearer
// tokens that start one.
package identity

import (
	"context"
	"sync"

	"service_locator/internal/domain"
)

// Signal is the process-wide session value: at most one session at a time.
// Subscribers see the latest value; intermediate values may be coalesced.
type Signal struct {
	mu   sync.Mutex
	cur  *domain.Session
	subs map[chan *domain.Session]struct{}
}

func NewSignal() *Signal {
	return &Signal{subs: map[chan *domain.Session]struct{}{}}
}

func (s *Signal) Current() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Set replaces the session; nil logs out.
func (s *Signal) Set(next *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = next
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

func (s *Signal) Subscribe(ctx context.Context) <-chan *domain.Session {
	ch := make(chan *domain.Session, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}
