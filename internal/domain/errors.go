package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrTransport        = errors.New("transport failure")
	ErrTimeout          = errors.New("timed out")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoSession        = errors.New("no account session")
	ErrInvalidPlace     = errors.New("place has no external id")
)

// AggregationError is returned when every category query failed.
type AggregationError struct {
	Failures map[string]error // keyed by category
}

func (e *AggregationError) Error() string {
	cats := make([]string, 0, len(e.Failures))
	for c := range e.Failures {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, c+": "+e.Failures[c].Error())
	}
	return "all category queries failed (" + strings.Join(parts, "; ") + ")"
}

func (e *AggregationError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}
