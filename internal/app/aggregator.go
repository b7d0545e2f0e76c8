package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"service_locator/internal/adapters/observability"
	"service_locator/internal/domain"
	"service_locator/internal/geo"
)

// Aggregator fans out one nearby search per category and merges the answers
// into a single deduplicated list ranked by distance from the origin.
type Aggregator struct {
	provider    domain.PlacesProvider
	taskTimeout time.Duration
	parallelism int
}

func NewAggregator(p domain.PlacesProvider, taskTimeout time.Duration, parallelism int) *Aggregator {
	if taskTimeout <= 0 {
		taskTimeout = 6 * time.Second
	}
	return &Aggregator{provider: p, taskTimeout: taskTimeout, parallelism: parallelism}
}

// Aggregate returns an empty list for an unset origin. It fails only when every
// category query failed; otherwise failed categories contribute nothing.
func (a *Aggregator) Aggregate(ctx context.Context, origin domain.Coordinate, categories []string, creds domain.Credentials) ([]domain.RankedPlace, error) {
	if origin.IsUnset() || len(categories) == 0 {
		return []domain.RankedPlace{}, nil
	}

	// one slot per task; tasks never share state
	partials := make([][]domain.PlaceRecord, len(categories))
	failures := make([]error, len(categories))

	var g errgroup.Group
	if a.parallelism > 0 {
		g.SetLimit(a.parallelism)
	}
	for i, cat := range categories {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, a.taskTimeout)
			defer cancel()

			recs, err := a.provider.NearbySearch(tctx, origin, cat, creds)
			if err != nil {
				failures[i] = classify(err)
				observability.ObserveCategory(cat, "failed")
				log.Warn().Err(err).Str("category", cat).Msg("category query failed")
				return nil
			}
			if len(recs) == 0 {
				observability.ObserveCategory(cat, "empty")
			} else {
				observability.ObserveCategory(cat, "ok")
			}
			partials[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	byCategory := map[string]error{}
	for i, err := range failures {
		if err != nil {
			failed++
			byCategory[categories[i]] = err
		}
	}
	if failed == len(categories) {
		return nil, &domain.AggregationError{Failures: byCategory}
	}

	ranked := rank(origin, partials)
	log.Debug().
		Str("origin", origin.String()).
		Int("categories", len(categories)).
		Int("failed", failed).
		Int("places", len(ranked)).
		Msg("aggregation done")
	return ranked, nil
}

// rank drops records without an id or a position, keeps the first occurrence of
// each id in category order, and stable-sorts by distance.
func rank(origin domain.Coordinate, partials [][]domain.PlaceRecord) []domain.RankedPlace {
	seen := map[string]struct{}{}
	out := make([]domain.RankedPlace, 0)
	for _, part := range partials {
		for _, rec := range part {
			if !rec.Rankable() {
				continue
			}
			rec.ExternalID = strings.TrimSpace(rec.ExternalID)
			if _, dup := seen[rec.ExternalID]; dup {
				continue
			}
			seen[rec.ExternalID] = struct{}{}
			out = append(out, domain.RankedPlace{
				Place:      rec,
				DistanceKm: geo.DistanceKm(origin, *rec.Location),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrTransport):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
}
