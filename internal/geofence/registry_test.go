package geofence

import (
	"testing"

	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCircle(id string, radius float64, active bool) models.Geofence {
	return models.Geofence{
		ID:     id,
		Name:   id,
		Shape:  models.Shape{Kind: models.ShapeCircle, RadiusMeters: radius},
		Active: active,
	}
}

func TestRegistry_LoadReplacesActiveSet(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	removed, err := r.Load([]models.Geofence{
		testCircle("home", 100, true),
		testCircle("office", 50, true),
		testCircle("dormant", 25, false),
	})
	require.NoError(t, err)
	assert.Empty(t, removed)

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "home", active[0].ID)
	assert.Equal(t, "office", active[1].ID)
	assert.True(t, r.Snapshot().Has("home"))
	assert.False(t, r.Snapshot().Has("dormant"))
}

func TestRegistry_LoadIsAllOrNothing(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Load([]models.Geofence{testCircle("home", 100, true)})
	require.NoError(t, err)

	// A load with one malformed definition must not disturb the
	// previous set.
	_, err = r.Load([]models.Geofence{
		testCircle("office", 50, true),
		testCircle("broken", -1, true),
	})
	assert.Error(t, err)

	active := r.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "home", active[0].ID)
}

func TestRegistry_LoadRejectsDuplicateIDs(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Load([]models.Geofence{
		testCircle("home", 100, true),
		testCircle("home", 200, true),
	})
	assert.Error(t, err)
	assert.Empty(t, r.Active())
}

func TestRegistry_LoadRejectsEmptySet(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Load(nil)
	assert.ErrorIs(t, err, ErrEmptyLoad)
}

func TestRegistry_LoadReportsRemovedGeofences(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Load([]models.Geofence{
		testCircle("home", 100, true),
		testCircle("office", 50, true),
	})
	require.NoError(t, err)

	// office disappears, home is deactivated.
	removed, err := r.Load([]models.Geofence{
		testCircle("home", 100, false),
		testCircle("garage", 30, true),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home", "office"}, removed)
}

func TestRegistry_ReloadIdenticalSetRemovesNothing(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	defs := []models.Geofence{testCircle("home", 100, true)}

	_, err := r.Load(defs)
	require.NoError(t, err)

	removed, err := r.Load(defs)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRegistry_SnapshotIsStableAcrossReload(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Load([]models.Geofence{testCircle("home", 100, true)})
	require.NoError(t, err)

	snap := r.Snapshot()
	_, err = r.Load([]models.Geofence{testCircle("office", 50, true)})
	require.NoError(t, err)

	// The old snapshot stays valid for an in-flight pass.
	require.Len(t, snap.Active(), 1)
	assert.Equal(t, "home", snap.Active()[0].ID)
	assert.Equal(t, "office", r.Snapshot().Active()[0].ID)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(models.Geofence{}), "empty id")
	assert.Error(t, Validate(testCircle("zero-radius", 0, true)))
	assert.Error(t, Validate(models.Geofence{
		ID: "thin-polygon",
		Shape: models.Shape{
			Kind:     models.ShapePolygon,
			Vertices: []models.LatLon{{Latitude: 0, Longitude: 0}, {Latitude: 1, Longitude: 1}},
		},
	}))
	assert.NoError(t, Validate(testCircle("ok", 10, true)))
}
