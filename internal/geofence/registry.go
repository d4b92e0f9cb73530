// Package geofence holds the registry of geofence definitions. The active
// set is an immutable snapshot swapped atomically on load, so evaluation
// passes never observe a half-updated configuration and never take a lock.
package geofence

import (
	"errors"
	"fmt"
	"math"

	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/benmeehan/geofence-monitor/internal/utils"
	"github.com/rs/zerolog"

	"sync/atomic"
)

// ErrEmptyLoad is returned when Load is called with no definitions.
var ErrEmptyLoad = errors.New("geofence load contains no definitions")

// Snapshot is one immutable generation of the geofence configuration.
// Readers iterate Active() in stable load order; a snapshot obtained at
// the start of an evaluation pass stays valid for the whole pass even if
// a reload lands mid-way.
type Snapshot struct {
	active []models.Geofence
	ids    map[string]struct{}
}

// Active returns the active geofences in load order. The returned slice
// is shared and must not be mutated.
func (s *Snapshot) Active() []models.Geofence {
	if s == nil {
		return nil
	}
	return s.active
}

// Has reports whether the snapshot contains an active geofence with the
// given ID.
func (s *Snapshot) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// NewSnapshot builds a snapshot directly from an active set that is
// already validated. Load is the normal path; this exists for callers
// that assemble configurations programmatically.
func NewSnapshot(active []models.Geofence) *Snapshot {
	ids := make(map[string]struct{}, len(active))
	for _, g := range active {
		ids[g.ID] = struct{}{}
	}
	return &Snapshot{active: active, ids: ids}
}

// Registry manages the lifecycle of geofence definitions: load, reload,
// and the diffing that drives containment-state cleanup.
type Registry struct {
	current atomic.Pointer[Snapshot]
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{logger: logger}
	r.current.Store(&Snapshot{ids: map[string]struct{}{}})
	return r
}

// Load validates and atomically replaces the active geofence set. The
// swap is all-or-nothing: if any definition is malformed the previous
// set stays authoritative and the error describes every rejected
// definition. The returned slice holds the IDs of geofences that were
// active before the load but are no longer (removed or deactivated), so
// the caller can purge per-device containment state for them.
func (r *Registry) Load(defs []models.Geofence) ([]string, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyLoad
	}

	var loadErrs []error
	seen := make(map[string]struct{}, len(defs))
	active := make([]models.Geofence, 0, len(defs))
	for _, g := range defs {
		if err := Validate(g); err != nil {
			loadErrs = append(loadErrs, err)
			continue
		}
		if _, dup := seen[g.ID]; dup {
			loadErrs = append(loadErrs, fmt.Errorf("duplicate geofence id %q", g.ID))
			continue
		}
		seen[g.ID] = struct{}{}
		if g.Active {
			active = append(active, g)
		}
	}
	if len(loadErrs) > 0 {
		err := errors.Join(loadErrs...)
		r.logger.Error().Err(err).Int("definitions", len(defs)).Msg("Geofence load rejected, previous set retained")
		return nil, err
	}

	activeIDs := make([]string, len(active))
	for i, g := range active {
		activeIDs[i] = g.ID
	}
	next := &Snapshot{active: active, ids: utils.SliceToSet(activeIDs)}
	prev := r.current.Swap(next)

	removed := utils.SetDiff(prev.ids, next.ids)
	r.logger.Info().
		Int("active", len(active)).
		Int("removed", len(removed)).
		Msg("Geofence set loaded")
	return removed, nil
}

// Snapshot returns the current configuration generation.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Active returns the currently active geofences in load order.
func (r *Registry) Active() []models.Geofence {
	return r.current.Load().Active()
}

// Validate checks a single geofence definition for the degeneracies the
// evaluator cannot tolerate.
func Validate(g models.Geofence) error {
	if g.ID == "" {
		return errors.New("geofence with empty id")
	}
	switch g.Shape.Kind {
	case models.ShapeCircle:
		if g.Shape.RadiusMeters <= 0 {
			return fmt.Errorf("geofence %q: circle radius must be > 0, got %f", g.ID, g.Shape.RadiusMeters)
		}
		if !finiteCoord(g.Shape.Center) {
			return fmt.Errorf("geofence %q: circle center is not a finite coordinate", g.ID)
		}
	case models.ShapePolygon:
		if len(g.Shape.Vertices) < 3 {
			return fmt.Errorf("geofence %q: polygon needs at least 3 vertices, got %d", g.ID, len(g.Shape.Vertices))
		}
		for i, v := range g.Shape.Vertices {
			if !finiteCoord(v) {
				return fmt.Errorf("geofence %q: vertex %d is not a finite coordinate", g.ID, i)
			}
		}
	default:
		return fmt.Errorf("geofence %q: unknown shape kind %q", g.ID, g.Shape.Kind)
	}
	return nil
}

func finiteCoord(c models.LatLon) bool {
	return !math.IsNaN(c.Latitude) && !math.IsInf(c.Latitude, 0) &&
		!math.IsNaN(c.Longitude) && !math.IsInf(c.Longitude, 0)
}
