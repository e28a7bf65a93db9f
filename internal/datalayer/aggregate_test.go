package datalayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
)

func TestRunAggregate_Count(t *testing.T) {
	dl, res := setupDataLayer(t)
	seedTracks(t, dl, res,
		track("t1", "Intro", 5),
		track("t2", "Verse", 20),
		track("t3", "Outro", 40),
	)

	got, err := dl.RunAggregate(context.Background(), query.New(res), []AggregateSpec{
		{Name: "total", Kind: KindCount},
		{Name: "popular", Kind: KindCount, Filter: filter.Gte{Attr: "plays", Value: resource.Int(20)}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]resource.Value{
		"total":   resource.Int(3),
		"popular": resource.Int(2),
	}, got)
}

// TestRunAggregate_FoldsOverTheWindow: the base query runs in full —
// filter, sort, offset, and limit — before any spec is evaluated.
func TestRunAggregate_FoldsOverTheWindow(t *testing.T) {
	dl, res := setupDataLayer(t)
	seedTracks(t, dl, res,
		track("t1", "Intro", 5),
		track("t2", "Verse", 20),
		track("t3", "Outro", 40),
	)

	q := query.New(res).WithLimit(2)
	got, err := dl.RunAggregate(context.Background(), q, []AggregateSpec{
		{Name: "total", Kind: KindCount},
	})
	require.NoError(t, err)
	assert.Equal(t, resource.Int(2), got["total"])
}

// TestRunAggregate_EmptySetIsLazy: sub-filters only run against matched
// records, so a filter that could never evaluate is harmless when the
// result set is empty.
func TestRunAggregate_EmptySetIsLazy(t *testing.T) {
	dl, res := setupDataLayer(t)

	got, err := dl.RunAggregate(context.Background(), query.New(res), []AggregateSpec{
		{Name: "n", Kind: KindCount, Filter: filter.Eq{Attr: "no_such_attr", Value: resource.Int(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, resource.Int(0), got["n"])
}

func TestRunAggregate_BadSubFilter(t *testing.T) {
	dl, res := setupDataLayer(t)
	seedTracks(t, dl, res, track("t1", "Intro", 5))

	_, err := dl.RunAggregate(context.Background(), query.New(res), []AggregateSpec{
		{Name: "n", Kind: KindCount, Filter: filter.Eq{Attr: "no_such_attr", Value: resource.Int(1)}},
	})
	require.Error(t, err)

	var ferr *filter.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "no_such_attr", ferr.Attr)
}

func TestRunAggregate_UnsupportedKindFailsWhole(t *testing.T) {
	dl, res := setupDataLayer(t)
	seedTracks(t, dl, res, track("t1", "Intro", 5))

	got, err := dl.RunAggregate(context.Background(), query.New(res), []AggregateSpec{
		{Name: "total", Kind: KindCount},
		{Name: "loudest", Kind: Kind(7)},
	})
	require.Error(t, err)
	assert.Nil(t, got, "no partial results")

	var unsupported *UnsupportedAggregateError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, Kind(7), unsupported.Kind)
	assert.Equal(t, "unsupported aggregate kind unknown", err.Error())
}

func TestRunAggregate_QueryErrorPropagates(t *testing.T) {
	dl, res := setupDataLayer(t)

	bad := query.New(res).WithOffset(0).WithSort(query.SortField{Attr: "tempo"})
	_, err := dl.RunAggregate(context.Background(), bad, []AggregateSpec{
		{Name: "total", Kind: KindCount},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "count", KindCount.String())
	assert.Equal(t, "unknown", Kind(7).String())
}
