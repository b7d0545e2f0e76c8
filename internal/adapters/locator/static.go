// Package locator provides device locators for processes without a GPS fix source.
package locator

import (
	"context"

	"service_locator/internal/domain"
)

// Static reports a configured position. An unset position is treated as a
// denied location permission so callers prompt for a city instead.
type Static struct {
	pos domain.Coordinate
}

func NewStatic(pos domain.Coordinate) *Static { return &Static{pos: pos} }

func (s *Static) Locate(ctx context.Context) (domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	if s.pos.IsUnset() {
		return domain.Coordinate{}, domain.ErrPermissionDenied
	}
	return s.pos, nil
}
