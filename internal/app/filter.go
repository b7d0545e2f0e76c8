package app

import (
	"context"
	"slices"
	"strings"
	"sync"

	"service_locator/internal/domain"
)

// Filter keeps the places within maxDistanceKm (inclusive) whose name or
// address contains query, case-insensitively. A blank query matches all.
// Master order is preserved.
func Filter(master []domain.RankedPlace, query string, maxDistanceKm float64) []domain.RankedPlace {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.RankedPlace, 0, len(master))
	for _, rp := range master {
		if rp.DistanceKm > maxDistanceKm {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(rp.Place.Name), q) &&
			!strings.Contains(strings.ToLower(rp.Place.Address), q) {
			continue
		}
		out = append(out, rp)
	}
	return out
}

// Pipeline holds the three filter inputs and the visible list derived from
// them. Every input change recomputes under one lock, so a visible list always
// comes from a single consistent combination of inputs.
type Pipeline struct {
	mu      sync.Mutex
	master  []domain.RankedPlace
	query   string
	maxKm   float64
	visible []domain.RankedPlace
	subs    map[chan []domain.RankedPlace]struct{}
}

func NewPipeline(maxKm float64) *Pipeline {
	return &Pipeline{
		maxKm:   maxKm,
		visible: []domain.RankedPlace{},
		subs:    map[chan []domain.RankedPlace]struct{}{},
	}
}

func (p *Pipeline) SetMaster(master []domain.RankedPlace) {
	p.update(func() { p.master = slices.Clone(master) })
}

func (p *Pipeline) SetQuery(q string) {
	p.update(func() { p.query = q })
}

func (p *Pipeline) SetMaxDistance(km float64) {
	p.update(func() { p.maxKm = km })
}

func (p *Pipeline) Visible() []domain.RankedPlace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.visible)
}

func (p *Pipeline) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

func (p *Pipeline) MaxDistance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxKm
}

// Subscribe emits the current visible list, then every recomputation. Slow
// readers only see the newest list.
func (p *Pipeline) Subscribe(ctx context.Context) <-chan []domain.RankedPlace {
	ch := make(chan []domain.RankedPlace, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	ch <- slices.Clone(p.visible)
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, ch)
		close(ch)
		p.mu.Unlock()
	}()
	return ch
}

func (p *Pipeline) update(apply func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	apply()
	p.visible = Filter(p.master, p.query, p.maxKm)
	for ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(p.visible)
	}
}
