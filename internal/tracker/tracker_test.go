package tracker

import (
	"testing"
	"time"

	"github.com/benmeehan/geofence-monitor/internal/geofence"
	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metersPerDegree = 111194.92664455873

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func homeCircle(notifyOnEnter, notifyOnExit bool) models.Geofence {
	return models.Geofence{
		ID:   "home",
		Name: "Home",
		Shape: models.Shape{
			Kind:         models.ShapeCircle,
			Center:       models.LatLon{Latitude: 0, Longitude: 0},
			RadiusMeters: 100,
		},
		NotifyOnEnter: notifyOnEnter,
		NotifyOnExit:  notifyOnExit,
		Active:        true,
	}
}

func snapshotOf(t *testing.T, defs ...models.Geofence) *geofence.Snapshot {
	t.Helper()
	r := geofence.NewRegistry(zerolog.Nop())
	_, err := r.Load(defs)
	require.NoError(t, err)
	return r.Snapshot()
}

// positionAtDistance produces a sample for device 7 at the given
// distance east of the origin, step seconds after baseTime.
func positionAtDistance(meters float64, step int) models.Position {
	return models.Position{
		DeviceID:  "device-7",
		Latitude:  0,
		Longitude: meters / metersPerDegree,
		Timestamp: baseTime.Add(time.Duration(step) * time.Second),
	}
}

func newTestTracker() *Tracker {
	return NewTracker(metrics.NewNop(), zerolog.Nop())
}

func TestEvaluate_NoSpontaneousFirstEvent(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	// First-ever position is already inside: no entry is synthesized.
	events := tr.Evaluate(positionAtDistance(10, 0), snap)
	assert.Empty(t, events)
	assert.Equal(t, models.ContainmentInside, tr.Containment("device-7", "home"))
}

func TestEvaluate_SingleFirePerCrossing(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	var events []models.GeofenceEvent
	for i, d := range []float64{200, 50, 40, 30, 150} {
		events = append(events, tr.Evaluate(positionAtDistance(d, i), snap)...)
	}

	require.Len(t, events, 2)
	assert.Equal(t, models.EventEntry, events[0].Kind)
	assert.Equal(t, models.EventExit, events[1].Kind)
}

func TestEvaluate_FlagGating(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(false, true))

	assert.Empty(t, tr.Evaluate(positionAtDistance(200, 0), snap))
	// Outside -> Inside with notify_on_enter=false: no event, but state
	// still advances.
	assert.Empty(t, tr.Evaluate(positionAtDistance(50, 1), snap))
	assert.Equal(t, models.ContainmentInside, tr.Containment("device-7", "home"))

	// Inside -> Outside with notify_on_exit=true fires.
	events := tr.Evaluate(positionAtDistance(200, 2), snap)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventExit, events[0].Kind)
}

func TestEvaluate_IndependenceAcrossGeofences(t *testing.T) {
	west := models.Geofence{
		ID:   "west",
		Name: "West",
		Shape: models.Shape{
			Kind:         models.ShapeCircle,
			Center:       models.LatLon{Latitude: 0, Longitude: -400 / metersPerDegree},
			RadiusMeters: 100,
		},
		NotifyOnEnter: true,
		NotifyOnExit:  true,
		Active:        true,
	}
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true), west)

	// Start inside west, outside home.
	assert.Empty(t, tr.Evaluate(positionAtDistance(-400, 0), snap))

	// One position: enters home, exits west — two events from one pass,
	// in registry order.
	events := tr.Evaluate(positionAtDistance(0, 1), snap)
	require.Len(t, events, 2)
	assert.Equal(t, "home", events[0].GeofenceID)
	assert.Equal(t, models.EventEntry, events[0].Kind)
	assert.Equal(t, "west", events[1].GeofenceID)
	assert.Equal(t, models.EventExit, events[1].Kind)
}

func TestEvaluate_OutOfOrderRejection(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	assert.Empty(t, tr.Evaluate(positionAtDistance(200, 10), snap))

	// An older sample inside the geofence: dropped, no state change.
	stale := positionAtDistance(50, 8)
	assert.Empty(t, tr.Evaluate(stale, snap))
	assert.Equal(t, models.ContainmentOutside, tr.Containment("device-7", "home"))

	// A duplicate timestamp is dropped too.
	dup := positionAtDistance(50, 10)
	assert.Empty(t, tr.Evaluate(dup, snap))
	assert.Equal(t, models.ContainmentOutside, tr.Containment("device-7", "home"))
}

func TestEvaluate_ZeroTimestampDuplicateRejected(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	// A producer without a clock sends the zero timestamp. The first
	// sample is accepted like any other first observation.
	first := positionAtDistance(200, 0)
	first.Timestamp = time.Time{}
	assert.Empty(t, tr.Evaluate(first, snap))
	assert.Equal(t, models.ContainmentOutside, tr.Containment("device-7", "home"))

	// A second zero-timestamp sample is a duplicate, not a fresh start:
	// dropped with no state change even though it moved inside.
	dup := positionAtDistance(50, 0)
	dup.Timestamp = time.Time{}
	assert.Empty(t, tr.Evaluate(dup, snap))
	assert.Equal(t, models.ContainmentOutside, tr.Containment("device-7", "home"))
}

// The walkthrough from the product scenario: approach, enter at 50m,
// wander inside, leave at 120m.
func TestEvaluate_HomeScenario(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	distances := []float64{200, 150, 50, 30, 120}
	var events []models.GeofenceEvent
	for i, d := range distances {
		events = append(events, tr.Evaluate(positionAtDistance(d, i), snap)...)
	}

	require.Len(t, events, 2)
	assert.Equal(t, models.EventEntry, events[0].Kind)
	assert.InDelta(t, 50/metersPerDegree, events[0].Position.Longitude, 1e-12)
	assert.Equal(t, models.EventExit, events[1].Kind)
	assert.InDelta(t, 120/metersPerDegree, events[1].Position.Longitude, 1e-12)
}

func TestEvaluate_EvaluatorErrorIsolatedToPair(t *testing.T) {
	// Degenerate geometry that slipped past load-time validation must
	// only cost its own (device, geofence) pair, not the whole pass.
	bad := models.Geofence{
		ID:     "bad",
		Name:   "Bad",
		Shape:  models.Shape{Kind: "triangle"},
		Active: true,
	}
	snap := geofence.NewSnapshot([]models.Geofence{bad, homeCircle(true, true)})
	tr := newTestTracker()

	assert.Empty(t, tr.Evaluate(positionAtDistance(200, 0), snap))
	events := tr.Evaluate(positionAtDistance(50, 1), snap)
	require.Len(t, events, 1)
	assert.Equal(t, "home", events[0].GeofenceID)
	assert.Equal(t, models.EventEntry, events[0].Kind)
	assert.Equal(t, models.ContainmentUnknown, tr.Containment("device-7", "bad"))
}

func TestForget_ResetsToUnknown(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	tr.Evaluate(positionAtDistance(50, 0), snap)
	require.Equal(t, models.ContainmentInside, tr.Containment("device-7", "home"))

	tr.Forget("device-7")
	assert.Equal(t, models.ContainmentUnknown, tr.Containment("device-7", "home"))

	// Re-added device: first observation inside fires nothing.
	events := tr.Evaluate(positionAtDistance(40, 10), snap)
	assert.Empty(t, events)
}

func TestForgetGeofence_DropsStateForOneGeofence(t *testing.T) {
	tr := newTestTracker()
	snap := snapshotOf(t, homeCircle(true, true))

	tr.Evaluate(positionAtDistance(50, 0), snap)
	require.Equal(t, models.ContainmentInside, tr.Containment("device-7", "home"))

	tr.ForgetGeofence("home")
	assert.Equal(t, models.ContainmentUnknown, tr.Containment("device-7", "home"))
}
