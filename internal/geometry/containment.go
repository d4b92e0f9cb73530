// Package geometry implements the pure point-in-geofence predicates used
// by the evaluation pipeline. All functions are side-effect free and safe
// to call concurrently.
package geometry

import (
	"fmt"
	"math"

	"github.com/benmeehan/geofence-monitor/internal/models"
)

const (
	// Mean earth radius in meters (IUGG).
	earthRadiusMeters = 6371008.8

	// Tolerance for coordinate comparisons in degrees. Keeps the
	// predicate stable under floating-point noise at polygon edges.
	epsilonDegrees = 1e-9

	// Tolerance for distance comparisons in meters.
	epsilonMeters = 1e-6
)

// Contains reports whether the position lies within the geofence boundary.
// The test is boundary-inclusive: a point exactly on a circle's radius or
// a polygon's edge counts as inside. An error is returned only for
// degenerate geometry that slipped past load-time validation; callers
// should skip the pair and continue the pass.
func Contains(p models.Position, g models.Geofence) (bool, error) {
	switch g.Shape.Kind {
	case models.ShapeCircle:
		if g.Shape.RadiusMeters <= 0 {
			return false, fmt.Errorf("geofence %s: degenerate circle radius %f", g.ID, g.Shape.RadiusMeters)
		}
		d := HaversineMeters(p.Point(), g.Shape.Center)
		return d <= g.Shape.RadiusMeters+epsilonMeters, nil
	case models.ShapePolygon:
		if len(g.Shape.Vertices) < 3 {
			return false, fmt.Errorf("geofence %s: polygon has %d vertices", g.ID, len(g.Shape.Vertices))
		}
		return polygonContains(p.Point(), g.Shape.Vertices), nil
	default:
		return false, fmt.Errorf("geofence %s: unknown shape kind %q", g.ID, g.Shape.Kind)
	}
}

// HaversineMeters returns the great-circle distance between two WGS84
// coordinates in meters.
func HaversineMeters(a, b models.LatLon) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// polygonContains runs an even-odd ray cast along a horizontal ray from
// the point, after an on-edge check so boundary points count as inside.
func polygonContains(pt models.LatLon, ring []models.LatLon) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		if onSegment(pt, ring[i], ring[(i+1)%n]) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := ring[i], ring[j]
		if (vi.Latitude > pt.Latitude) != (vj.Latitude > pt.Latitude) {
			crossLon := vj.Longitude + (pt.Latitude-vj.Latitude)*
				(vi.Longitude-vj.Longitude)/(vi.Latitude-vj.Latitude)
			if pt.Longitude < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether pt lies on the segment [a, b] within
// epsilonDegrees.
func onSegment(pt, a, b models.LatLon) bool {
	cross := (b.Latitude-a.Latitude)*(pt.Longitude-a.Longitude) -
		(b.Longitude-a.Longitude)*(pt.Latitude-a.Latitude)
	if math.Abs(cross) > epsilonDegrees {
		return false
	}
	if pt.Latitude < math.Min(a.Latitude, b.Latitude)-epsilonDegrees ||
		pt.Latitude > math.Max(a.Latitude, b.Latitude)+epsilonDegrees {
		return false
	}
	if pt.Longitude < math.Min(a.Longitude, b.Longitude)-epsilonDegrees ||
		pt.Longitude > math.Max(a.Longitude, b.Longitude)+epsilonDegrees {
		return false
	}
	return true
}
