package monitor

import (
	"testing"
	"time"

	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const metersPerDegree = 111194.92664455873

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func homeDefs() []models.Geofence {
	return []models.Geofence{{
		ID:   "home",
		Name: "Home",
		Shape: models.Shape{
			Kind:         models.ShapeCircle,
			Center:       models.LatLon{Latitude: 0, Longitude: 0},
			RadiusMeters: 100,
		},
		NotifyOnEnter: true,
		NotifyOnExit:  true,
		Active:        true,
	}}
}

func newTestService(t *testing.T, defs []models.Geofence) *Service {
	t.Helper()
	return NewService(defs, rate.Inf, 1, metrics.NewNop(), zerolog.Nop())
}

func sampleAt(deviceID string, meters float64, step int) models.Position {
	return models.Position{
		DeviceID:  deviceID,
		Latitude:  0,
		Longitude: meters / metersPerDegree,
		Timestamp: baseTime.Add(time.Duration(step) * time.Second),
	}
}

func collect(t *testing.T, ch <-chan models.GeofenceEvent, n int) []models.GeofenceEvent {
	t.Helper()
	var got []models.GeofenceEvent
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case evt := <-ch:
			got = append(got, evt)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(got))
		}
	}
	return got
}

func TestMonitorService_StartStop(t *testing.T) {
	s := newTestService(t, homeDefs())

	require.NoError(t, s.Start())
	err := s.Start()
	require.Error(t, err)
	assert.Equal(t, "monitor service is already running", err.Error())

	require.NoError(t, s.Stop())
	err = s.Stop()
	require.Error(t, err)
	assert.Equal(t, "monitor service is not running", err.Error())
}

func TestMonitorService_SameContainment(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	inside := sampleAt("device-7", 50, 0)
	alsoInside := sampleAt("device-7", 30, 1)
	outside := sampleAt("device-7", 200, 2)

	// Same side of the boundary: safe to coalesce.
	assert.True(t, s.SameContainment(inside, alsoInside))
	assert.True(t, s.SameContainment(outside, sampleAt("device-7", 150, 3)))

	// Opposite sides: the older sample carries a transition.
	assert.False(t, s.SameContainment(inside, outside))
	assert.False(t, s.SameContainment(outside, inside))
}

func TestMonitorService_StartFailsOnBadDefinitions(t *testing.T) {
	bad := homeDefs()
	bad[0].Shape.RadiusMeters = -5

	s := newTestService(t, bad)
	assert.Error(t, s.Start())
}

func TestMonitorService_EndToEndEntryExit(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	sub, err := s.Events().Subscribe("test", 16)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice("device-7"))

	for i, d := range []float64{200, 150, 50, 30, 120} {
		s.Ingest(sampleAt("device-7", d, i))
		// Keep the walkthrough strictly sequential so no sample is
		// coalesced away before its evaluation.
		time.Sleep(10 * time.Millisecond)
	}

	got := collect(t, sub.Events(), 2)
	assert.Equal(t, models.EventEntry, got[0].Kind)
	assert.Equal(t, "home", got[0].GeofenceID)
	assert.Equal(t, "device-7", got[0].DeviceID)
	assert.Equal(t, models.EventExit, got[1].Kind)
}

func TestMonitorService_IngestIgnoredWhenStopped(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())

	sub, err := s.Events().Subscribe("test", 16)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice("device-7"))
	require.NoError(t, s.Stop())

	s.Ingest(sampleAt("device-7", 50, 0))
	s.Ingest(sampleAt("device-7", 200, 1))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.Events())
}

func TestMonitorService_ReloadIdenticalSetKeepsState(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	sub, err := s.Events().Subscribe("test", 16)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice("device-7"))

	s.Ingest(sampleAt("device-7", 200, 0))
	time.Sleep(10 * time.Millisecond)
	s.Ingest(sampleAt("device-7", 50, 1))
	collect(t, sub.Events(), 1)

	// Reloading the identical definitions must not reset containment
	// state or re-trigger events.
	require.NoError(t, s.ReloadGeofences(homeDefs()))

	s.Ingest(sampleAt("device-7", 40, 2))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sub.Events(), "still inside, no event after idempotent reload")

	s.Ingest(sampleAt("device-7", 150, 3))
	got := collect(t, sub.Events(), 1)
	assert.Equal(t, models.EventExit, got[0].Kind)
}

func TestMonitorService_ReloadFailureKeepsPreviousSet(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	bad := homeDefs()
	bad[0].Shape.RadiusMeters = 0
	assert.Error(t, s.ReloadGeofences(bad))

	sub, err := s.Events().Subscribe("test", 16)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice("device-7"))

	// The previous set is still authoritative.
	s.Ingest(sampleAt("device-7", 200, 0))
	time.Sleep(10 * time.Millisecond)
	s.Ingest(sampleAt("device-7", 50, 1))
	got := collect(t, sub.Events(), 1)
	assert.Equal(t, models.EventEntry, got[0].Kind)
}

func TestMonitorService_RemovedGeofenceStateIsPurged(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	sub, err := s.Events().Subscribe("test", 16)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice("device-7"))

	// Put the device inside home.
	s.Ingest(sampleAt("device-7", 200, 0))
	time.Sleep(10 * time.Millisecond)
	s.Ingest(sampleAt("device-7", 50, 1))
	collect(t, sub.Events(), 1)

	// Drop home, then bring it back: the pair restarts at Unknown, so
	// the next inside sample fires nothing and the next outside sample
	// fires nothing either.
	other := []models.Geofence{{
		ID:            "office",
		Name:          "Office",
		Shape:         models.Shape{Kind: models.ShapeCircle, Center: models.LatLon{Latitude: 50, Longitude: 50}, RadiusMeters: 100},
		NotifyOnEnter: true,
		NotifyOnExit:  true,
		Active:        true,
	}}
	require.NoError(t, s.ReloadGeofences(other))
	require.NoError(t, s.ReloadGeofences(homeDefs()))

	s.Ingest(sampleAt("device-7", 40, 2))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sub.Events(), "first observation after purge never fires")

	s.Ingest(sampleAt("device-7", 150, 3))
	got := collect(t, sub.Events(), 1)
	assert.Equal(t, models.EventExit, got[0].Kind)
}

func TestMonitorService_RemoveDeviceResetsState(t *testing.T) {
	s := newTestService(t, homeDefs())
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	sub, err := s.Events().Subscribe("test", 16)
	require.NoError(t, err)
	require.NoError(t, s.AddDevice("device-7"))

	s.Ingest(sampleAt("device-7", 200, 0))
	time.Sleep(10 * time.Millisecond)
	s.Ingest(sampleAt("device-7", 50, 1))
	collect(t, sub.Events(), 1)

	require.NoError(t, s.RemoveDevice("device-7"))
	require.NoError(t, s.AddDevice("device-7"))

	// Re-added device starts clean: a first observation inside is not
	// an entry.
	s.Ingest(sampleAt("device-7", 40, 2))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sub.Events())
}
