package models

import (
	"time"
)

// Containment is the tracked relation between a device and a geofence.
type Containment int

const (
	// ContainmentUnknown is the state before any position has been
	// evaluated for a (device, geofence) pair. A first observation never
	// produces an event, even if the device is already inside.
	ContainmentUnknown Containment = iota
	ContainmentInside
	ContainmentOutside
)

// String returns a human-readable containment label.
func (c Containment) String() string {
	switch c {
	case ContainmentInside:
		return "inside"
	case ContainmentOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// EventKind is the direction of a geofence boundary crossing.
type EventKind string

const (
	EventEntry EventKind = "entry"
	EventExit  EventKind = "exit"
)

// GeofenceEvent is emitted exactly once per qualifying containment
// transition. Instances are immutable after creation; subscribers share
// read-only copies.
type GeofenceEvent struct {
	EventID      string    `json:"event_id"`
	DeviceID     string    `json:"device_id"`
	GeofenceID   string    `json:"geofence_id"`
	GeofenceName string    `json:"geofence_name"`
	Kind         EventKind `json:"kind"`
	Position     Position  `json:"position"`
	Timestamp    time.Time `json:"timestamp"`
}
