package models

// ShapeKind identifies the geometry of a geofence boundary.
type ShapeKind string

const (
	ShapeCircle  ShapeKind = "circle"
	ShapePolygon ShapeKind = "polygon"
)

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Shape describes a geofence boundary. Exactly one of the circle fields
// (Center + RadiusMeters) or Vertices is meaningful, selected by Kind.
// Polygon rings are implicitly closed; the last vertex connects back to
// the first.
type Shape struct {
	Kind         ShapeKind `json:"kind" yaml:"kind"`
	Center       LatLon    `json:"center,omitempty" yaml:"center,omitempty"`
	RadiusMeters float64   `json:"radius_meters,omitempty" yaml:"radius_meters,omitempty"`
	Vertices     []LatLon  `json:"vertices,omitempty" yaml:"vertices,omitempty"`
}

// Geofence is a named spatial region with independent enter/exit
// notification flags. Definitions are immutable once loaded into a
// registry snapshot; reloads replace the whole set.
type Geofence struct {
	ID            string `json:"geofence_id" yaml:"id"`
	Name          string `json:"geofence_name" yaml:"name"`
	Shape         Shape  `json:"shape" yaml:"shape"`
	NotifyOnEnter bool   `json:"notify_on_enter" yaml:"notify_on_enter"`
	NotifyOnExit  bool   `json:"notify_on_exit" yaml:"notify_on_exit"`
	Active        bool   `json:"active" yaml:"active"`
}
