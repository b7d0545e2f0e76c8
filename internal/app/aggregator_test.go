package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service_locator/internal/app"
	"service_locator/internal/domain"
)

var origin = domain.Coordinate{Lat: 40.7128, Lng: -74.0060}

func TestAggregate_DedupFirstWinsAndSortsByDistance(t *testing.T) {
	p := newFakeProvider()
	p.results["hospital"] = categoryResult{recs: []domain.PlaceRecord{
		place("far", "Far Hospital", "", 40.80, -74.0060, "hospital"),
		place("X1", "Clinic (hospital)", "", 40.72, -74.0060, "hospital"),
	}}
	p.results["school"] = categoryResult{recs: []domain.PlaceRecord{
		place("X1", "Clinic (school)", "", 40.72, -74.0060, "school"),
		place("near", "Near School", "", 40.713, -74.0060, "school"),
	}}

	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, []string{"hospital", "school"}, domain.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, []string{"near", "X1", "far"}, ids(got))
	assert.Equal(t, "Clinic (hospital)", got[1].Place.Name, "earlier category wins on duplicate id")
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].DistanceKm, got[i].DistanceKm)
	}
}

func TestAggregate_PartialFailureReturnsUnion(t *testing.T) {
	p := newFakeProvider()
	p.results["hospital"] = categoryResult{recs: []domain.PlaceRecord{place("h1", "H", "", 40.72, -74.0, "hospital")}}
	p.results["school"] = categoryResult{err: errors.New("upstream 500")}
	p.results["pharmacy"] = categoryResult{recs: []domain.PlaceRecord{place("ph1", "P", "", 40.73, -74.0, "pharmacy")}}
	p.results["police"] = categoryResult{err: errors.New("connection reset")}
	p.results["park"] = categoryResult{recs: []domain.PlaceRecord{place("pk1", "K", "", 40.74, -74.0, "park")}}

	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, app.DefaultCategories, domain.Credentials{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h1", "ph1", "pk1"}, ids(got))
}

func TestAggregate_TotalFailure(t *testing.T) {
	p := newFakeProvider()
	for _, c := range app.DefaultCategories {
		p.results[c] = categoryResult{err: errors.New("down")}
	}

	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, app.DefaultCategories, domain.Credentials{})
	assert.Nil(t, got)

	var aggErr *domain.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Len(t, aggErr.Failures, len(app.DefaultCategories))
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestAggregate_AllEmptyIsNotAFailure(t *testing.T) {
	p := newFakeProvider()
	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, app.DefaultCategories, domain.Credentials{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregate_UnsetOriginSkipsProvider(t *testing.T) {
	p := newFakeProvider()
	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), domain.Coordinate{}, app.DefaultCategories, domain.Credentials{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, p.callCount("hospital"))
}

func TestAggregate_DropsUnrankableRecords(t *testing.T) {
	p := newFakeProvider()
	p.results["hospital"] = categoryResult{recs: []domain.PlaceRecord{
		{ExternalID: "", Name: "no id", Location: &domain.Coordinate{Lat: 40.72, Lng: -74}},
		{ExternalID: "noloc", Name: "no location"},
		place("ok", "Fine", "", 40.72, -74.0, "hospital"),
	}}

	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, []string{"hospital"}, domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, ids(got))
}

func TestAggregate_SlowCategoryTimesOut(t *testing.T) {
	p := newFakeProvider()
	p.results["hospital"] = categoryResult{recs: []domain.PlaceRecord{place("h1", "H", "", 40.72, -74.0, "hospital")}}
	p.results["school"] = categoryResult{block: true}

	agg := app.NewAggregator(p, 50*time.Millisecond, 5)
	start := time.Now()
	got, err := agg.Aggregate(context.Background(), origin, []string{"hospital", "school"}, domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, ids(got))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAggregate_TimeoutOnlyFailureIsTimeout(t *testing.T) {
	p := newFakeProvider()
	p.results["school"] = categoryResult{block: true}

	agg := app.NewAggregator(p, 20*time.Millisecond, 1)
	_, err := agg.Aggregate(context.Background(), origin, []string{"school"}, domain.Credentials{})
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestAggregate_EqualDistanceKeepsFirstSeenOrder(t *testing.T) {
	p := newFakeProvider()
	p.results["hospital"] = categoryResult{recs: []domain.PlaceRecord{place("a", "A", "", 40.72, -74.0060)}}
	p.results["school"] = categoryResult{recs: []domain.PlaceRecord{place("b", "B", "", 40.72, -74.0060)}}
	p.results["park"] = categoryResult{recs: []domain.PlaceRecord{place("c", "C", "", 40.72, -74.0060)}}

	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, []string{"hospital", "school", "park"}, domain.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestAggregate_DedupIgnoresSurroundingSpaces(t *testing.T) {
	p := newFakeProvider()
	p.results["hospital"] = categoryResult{recs: []domain.PlaceRecord{place(" X1 ", "From hospital", "", 40.72, -74.0060)}}
	p.results["school"] = categoryResult{recs: []domain.PlaceRecord{place("X1", "From school", "", 40.72, -74.0060)}}

	agg := app.NewAggregator(p, time.Second, 5)
	got, err := agg.Aggregate(context.Background(), origin, []string{"hospital", "school"}, domain.Credentials{})
	require.NoError(t, err)
	require.Equal(t, []string{"X1"}, ids(got))
	assert.Equal(t, "From hospital", got[0].Place.Name)
}
