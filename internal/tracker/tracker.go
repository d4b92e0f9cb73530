// Package tracker maintains per (device, geofence) containment state and
// turns accepted position samples into geofence transition events.
package tracker

import (
	"sync"
	"time"

	"github.com/benmeehan/geofence-monitor/internal/geofence"
	"github.com/benmeehan/geofence-monitor/internal/geometry"
	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// containmentEntry is the tracked state for one (device, geofence) pair.
type containmentEntry struct {
	state       models.Containment
	evaluatedAt time.Time
}

// deviceState owns everything tracked for one device. Its mutex
// serializes the read-modify-write of the transition table: two positions
// for the same device are never evaluated concurrently.
type deviceState struct {
	mu            sync.Mutex
	seen          bool
	lastTimestamp time.Time
	containment   map[string]containmentEntry
}

// Tracker detects containment transitions. Devices are independent;
// positions for different devices evaluate fully in parallel.
type Tracker struct {
	devices cmap.ConcurrentMap[string, *deviceState]
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(m *metrics.Metrics, logger zerolog.Logger) *Tracker {
	return &Tracker{
		devices: cmap.New[*deviceState](),
		metrics: m,
		logger:  logger,
	}
}

// Evaluate runs one position through the transition table against every
// active geofence in the snapshot and returns the resulting events in
// snapshot order. Out-of-order and duplicate samples are dropped
// silently (counted, not errors). The first observation for a
// (device, geofence) pair records state but never produces an event,
// even when the device is already inside.
func (t *Tracker) Evaluate(pos models.Position, snap *geofence.Snapshot) []models.GeofenceEvent {
	ds := t.deviceState(pos.DeviceID)

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.seen && !pos.Timestamp.After(ds.lastTimestamp) {
		t.metrics.PositionsOutOfOrder.Inc()
		t.logger.Debug().
			Str("device_id", pos.DeviceID).
			Time("timestamp", pos.Timestamp).
			Time("last_accepted", ds.lastTimestamp).
			Msg("Dropping out-of-order position")
		return nil
	}
	ds.seen = true
	ds.lastTimestamp = pos.Timestamp
	t.metrics.PositionsAccepted.Inc()

	var events []models.GeofenceEvent
	for _, g := range snap.Active() {
		nowInside, err := geometry.Contains(pos, g)
		if err != nil {
			t.metrics.EvaluationsFailed.Inc()
			t.logger.Error().Err(err).
				Str("device_id", pos.DeviceID).
				Str("geofence_id", g.ID).
				Msg("Containment evaluation failed, skipping pair")
			continue
		}

		prior := models.ContainmentUnknown
		if entry, ok := ds.containment[g.ID]; ok {
			prior = entry.state
		}

		next := models.ContainmentOutside
		if nowInside {
			next = models.ContainmentInside
		}
		ds.containment[g.ID] = containmentEntry{state: next, evaluatedAt: pos.Timestamp}

		switch {
		case prior == models.ContainmentOutside && nowInside:
			if g.NotifyOnEnter {
				events = append(events, newEvent(models.EventEntry, pos, g))
			}
		case prior == models.ContainmentInside && !nowInside:
			if g.NotifyOnExit {
				events = append(events, newEvent(models.EventExit, pos, g))
			}
		}
	}
	return events
}

// Containment returns the tracked state for a (device, geofence) pair.
func (t *Tracker) Containment(deviceID, geofenceID string) models.Containment {
	ds, ok := t.devices.Get(deviceID)
	if !ok {
		return models.ContainmentUnknown
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if entry, ok := ds.containment[geofenceID]; ok {
		return entry.state
	}
	return models.ContainmentUnknown
}

// Forget drops all state for a device. A re-added device starts from
// Unknown again.
func (t *Tracker) Forget(deviceID string) {
	t.devices.Remove(deviceID)
}

// ForgetGeofence drops every device's state for a removed or deactivated
// geofence, so a later reappearance of the ID starts from Unknown rather
// than firing a spurious transition.
func (t *Tracker) ForgetGeofence(geofenceID string) {
	for _, ds := range t.devices.Items() {
		ds.mu.Lock()
		delete(ds.containment, geofenceID)
		ds.mu.Unlock()
	}
}

func (t *Tracker) deviceState(deviceID string) *deviceState {
	if ds, ok := t.devices.Get(deviceID); ok {
		return ds
	}
	ds := &deviceState{containment: make(map[string]containmentEntry)}
	if !t.devices.SetIfAbsent(deviceID, ds) {
		ds, _ = t.devices.Get(deviceID)
	}
	return ds
}

func newEvent(kind models.EventKind, pos models.Position, g models.Geofence) models.GeofenceEvent {
	return models.GeofenceEvent{
		EventID:      uuid.New().String(),
		DeviceID:     pos.DeviceID,
		GeofenceID:   g.ID,
		GeofenceName: g.Name,
		Kind:         kind,
		Position:     pos,
		Timestamp:    pos.Timestamp,
	}
}
