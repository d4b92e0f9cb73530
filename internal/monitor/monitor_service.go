package monitor

import (
	"errors"
	"sync"

	"github.com/benmeehan/geofence-monitor/internal/events"
	"github.com/benmeehan/geofence-monitor/internal/feed"
	"github.com/benmeehan/geofence-monitor/internal/geofence"
	"github.com/benmeehan/geofence-monitor/internal/geometry"
	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/benmeehan/geofence-monitor/internal/tracker"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Service orchestrates the geofence evaluation pipeline: registry,
// containment tracker, position feed and event stream. It is the
// component callers start/stop, feed positions into, and subscribe to
// events from.
type Service struct {
	// Configuration fields
	definitions []models.Geofence
	evalRate    rate.Limit
	evalBurst   int

	// Dependencies
	registry *geofence.Registry
	tracker  *tracker.Tracker
	stream   *events.Stream
	feed     *feed.Coordinator
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// Internal state management
	mu      sync.Mutex
	running bool
}

// NewService creates a monitor service with the initial geofence
// definitions, wiring the feed coordinator's sink and removal hook back
// into the pipeline.
func NewService(definitions []models.Geofence, evalRate rate.Limit, evalBurst int,
	m *metrics.Metrics, logger zerolog.Logger) *Service {
	s := &Service{
		definitions: definitions,
		evalRate:    evalRate,
		evalBurst:   evalBurst,
		registry:    geofence.NewRegistry(logger),
		tracker:     tracker.NewTracker(m, logger),
		stream:      events.NewStream(m, logger),
		metrics:     m,
		logger:      logger,
	}
	s.feed = feed.NewCoordinator(s, evalRate, evalBurst, s.tracker.Forget, m, logger)
	return s
}

// Start loads the geofence registry and begins accepting positions.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn().Msg("MonitorService is already running")
		return errors.New("monitor service is already running")
	}

	if _, err := s.registry.Load(s.definitions); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load initial geofence definitions")
		return err
	}

	s.running = true
	s.logger.Info().
		Int("geofences", len(s.registry.Active())).
		Msg("MonitorService started")
	return nil
}

// Stop stops accepting new positions and detaches every device
// subscription. A position already admitted completes its evaluation;
// nothing is interrupted mid-transition.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Warn().Msg("MonitorService is not running")
		return errors.New("monitor service is not running")
	}

	s.running = false
	s.feed.Close()
	s.logger.Info().Msg("MonitorService stopped")
	return nil
}

// ReloadGeofences atomically swaps the active geofence set. On a
// malformed load the previous set stays authoritative and the error is
// returned to the caller; the running pipeline is unaffected. State for
// removed or deactivated geofences is purged so an ID that reappears
// starts from Unknown.
func (s *Service) ReloadGeofences(defs []models.Geofence) error {
	removed, err := s.registry.Load(defs)
	if err != nil {
		return err
	}
	for _, id := range removed {
		s.tracker.ForgetGeofence(id)
	}
	return nil
}

// Events returns the stream callers subscribe to. Subscribers only see
// events published after they subscribe.
func (s *Service) Events() *events.Stream {
	return s.stream
}

// AddDevice begins monitoring a device from its next position onward.
func (s *Service) AddDevice(deviceID string) error {
	return s.feed.AddDevice(deviceID)
}

// RemoveDevice stops monitoring a device and discards its containment
// state, so a later re-add starts clean.
func (s *Service) RemoveDevice(deviceID string) error {
	return s.feed.RemoveDevice(deviceID)
}

// Ingest is the inbound position entry point used by position sources.
// Positions arriving while the service is stopped are ignored.
func (s *Service) Ingest(pos models.Position) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		s.logger.Debug().Str("device_id", pos.DeviceID).Msg("Position ignored, monitor not running")
		return
	}
	s.feed.Offer(pos)
}

// SameContainment reports whether two positions fall on the same side
// of every active geofence boundary. The feed uses it to decide whether
// a pending sample may be coalesced away: a sample the replacement
// disagrees with carries a transition and must still be evaluated. An
// evaluation error counts as disagreement so the sample is kept.
func (s *Service) SameContainment(a, b models.Position) bool {
	snap := s.registry.Snapshot()
	for _, g := range snap.Active() {
		inA, errA := geometry.Contains(a, g)
		inB, errB := geometry.Contains(b, g)
		if errA != nil || errB != nil || inA != inB {
			return false
		}
	}
	return true
}

// HandlePosition runs one accepted position through the tracker and
// publishes the resulting events in registry order. The feed guarantees
// it is never called concurrently for the same device.
func (s *Service) HandlePosition(pos models.Position) {
	snap := s.registry.Snapshot()
	for _, evt := range s.tracker.Evaluate(pos, snap) {
		s.stream.Publish(evt)
		s.logger.Info().
			Str("device_id", evt.DeviceID).
			Str("geofence", evt.GeofenceName).
			Str("kind", string(evt.Kind)).
			Msg("Geofence transition")
	}
}
