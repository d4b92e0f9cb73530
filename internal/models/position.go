package models

import (
	"time"
)

// Position represents a single device position sample with associated metadata.
type Position struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
}

// Point returns the position's coordinates as a LatLon.
func (p Position) Point() LatLon {
	return LatLon{Latitude: p.Latitude, Longitude: p.Longitude}
}
