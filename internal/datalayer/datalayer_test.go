package datalayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/resource"
	"github.com/stratumdb/stratum/internal/store"
)

// trackResource returns the schema most tests share: a Track with a
// single-attribute string key, two nullable attributes, and an int.
func trackResource(t *testing.T) *resource.Resource {
	t.Helper()
	res := &resource.Resource{
		Name: "Track",
		Attributes: []resource.Attribute{
			{Name: "id", Type: resource.TypeString},
			{Name: "title", Type: resource.TypeString, AllowNil: true},
			{Name: "plays", Type: resource.TypeInt},
			{Name: "rating", Type: resource.TypeFloat, AllowNil: true},
		},
		PrimaryKey: []string{"id"},
	}
	require.NoError(t, res.Validate())
	return res
}

// setupDataLayer creates a layer on a fresh memory engine with Track
// registered.
func setupDataLayer(t *testing.T, opts ...Option) (*DataLayer, *resource.Resource) {
	t.Helper()
	engine, err := store.Open("memory", "")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	dl := New(engine, opts...)
	res := trackResource(t)
	require.NoError(t, dl.Register(res))
	return dl, res
}

func track(id, title string, plays int64) resource.Record {
	return resource.NewRecord(resource.Object{
		"id":    resource.String(id),
		"title": resource.String(title),
		"plays": resource.Int(plays),
	})
}

// seedTracks creates the given records and fails the test on any error.
func seedTracks(t *testing.T, dl *DataLayer, res *resource.Resource, recs ...resource.Record) {
	t.Helper()
	for _, rec := range recs {
		_, err := dl.Create(context.Background(), res, rec)
		require.NoError(t, err)
	}
}

func TestRegister_CreatesTableAndResolves(t *testing.T) {
	dl, res := setupDataLayer(t)

	got, ok := dl.Resource("Track")
	require.True(t, ok)
	assert.Equal(t, res, got)

	table, ok := dl.Table("Track")
	require.True(t, ok)
	assert.Equal(t, "track", table)
}

func TestRegister_DuplicateName(t *testing.T) {
	dl, _ := setupDataLayer(t)

	err := dl.Register(trackResource(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegister_InvalidResource(t *testing.T) {
	dl, _ := setupDataLayer(t)

	bad := &resource.Resource{Name: "Broken"} // no attributes, no key
	err := dl.Register(bad)
	require.Error(t, err)
}

func TestRegister_TableOverride(t *testing.T) {
	dl, _ := setupDataLayer(t)

	res := &resource.Resource{
		Name:  "LegacyTrack",
		Table: "tbl_tracks_v1",
		Attributes: []resource.Attribute{
			{Name: "id", Type: resource.TypeString},
		},
		PrimaryKey: []string{"id"},
	}
	require.NoError(t, dl.Register(res))

	table, ok := dl.Table("LegacyTrack")
	require.True(t, ok)
	assert.Equal(t, "tbl_tracks_v1", table)
}

func TestResources_SortedNames(t *testing.T) {
	dl, _ := setupDataLayer(t)

	album := &resource.Resource{
		Name: "Album",
		Attributes: []resource.Attribute{
			{Name: "id", Type: resource.TypeString},
		},
		PrimaryKey: []string{"id"},
	}
	require.NoError(t, dl.Register(album))

	assert.Equal(t, []string{"Album", "Track"}, dl.Resources())
}

func TestNewQuery_UnknownResource(t *testing.T) {
	dl, _ := setupDataLayer(t)

	_, err := dl.NewQuery("Playlist")
	require.Error(t, err)

	var unknown *UnknownResourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Playlist", unknown.Name)
}

func TestCan_CapabilityTable(t *testing.T) {
	dl, _ := setupDataLayer(t)

	assert.True(t, dl.Can(CapTransact))
	assert.True(t, dl.Can(CapUpsert))
	assert.True(t, dl.Can(CapCompositePrimaryKey))
	assert.True(t, dl.Can(CapAggregateCount))
	assert.False(t, dl.Can(CapExpressionCalculation))
	assert.False(t, dl.Can(Capability(99)))
}

func TestCapability_String(t *testing.T) {
	assert.Equal(t, "transact", CapTransact.String())
	assert.Equal(t, "upsert", CapUpsert.String())
	assert.Equal(t, "composite_primary_key", CapCompositePrimaryKey.String())
	assert.Equal(t, "expression_calculation", CapExpressionCalculation.String())
	assert.Equal(t, "aggregate_count", CapAggregateCount.String())
	assert.Equal(t, "unknown", Capability(99).String())
}
