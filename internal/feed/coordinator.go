// Package feed bridges push-based device position streams into the
// monitor's evaluation entry point. Each monitored device owns a
// mailbox drained by its own goroutine, which gives the pipeline
// per-device serialization and non-blocking ingestion: a producer is
// never stalled, and under load same-state repeats coalesce while any
// sample that crosses a boundary is still evaluated.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sink receives accepted positions, one call at a time per device.
// SameContainment reports whether two positions fall on the same side of
// every active geofence boundary; it gates coalescing so a sample that
// crosses a boundary is never collapsed away unevaluated.
type Sink interface {
	HandlePosition(pos models.Position)
	SameContainment(a, b models.Position) bool
}

// deviceFeed is one device's subscription: a pending queue plus the
// goroutine draining it. Same-state samples collapse onto the queue
// tail; boundary-crossing samples append so each crossing is evaluated.
type deviceFeed struct {
	deviceID string

	mu      sync.Mutex
	pending []models.Position

	notify  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	drained chan struct{}
	limiter *rate.Limiter
}

// Coordinator manages the set of monitored devices and their feeds.
type Coordinator struct {
	devices cmap.ConcurrentMap[string, *deviceFeed]
	sink    Sink

	// onRemove unlinks downstream per-device state when a device is
	// unsubscribed, so a re-added device starts from Unknown.
	onRemove func(deviceID string)

	evalLimit rate.Limit
	evalBurst int

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCoordinator creates a coordinator delivering to sink. evalRate
// bounds how often a single device is evaluated (same-state samples
// arriving faster coalesce in the mailbox, boundary crossings queue);
// rate.Inf disables throttling. onRemove may be nil.
func NewCoordinator(sink Sink, evalRate rate.Limit, burst int, onRemove func(deviceID string),
	m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	if burst < 1 {
		burst = 1
	}
	return &Coordinator{
		devices:   cmap.New[*deviceFeed](),
		sink:      sink,
		onRemove:  onRemove,
		evalLimit: evalRate,
		evalBurst: burst,
		metrics:   m,
		logger:    logger,
	}
}

// AddDevice subscribes a device mid-session. Evaluation starts from the
// device's next position; there is no retroactive evaluation of history.
func (c *Coordinator) AddDevice(deviceID string) error {
	if deviceID == "" {
		return errors.New("device id is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	df := &deviceFeed{
		deviceID: deviceID,
		notify:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		drained:  make(chan struct{}),
		limiter:  rate.NewLimiter(c.evalLimit, c.evalBurst),
	}
	if !c.devices.SetIfAbsent(deviceID, df) {
		cancel()
		return errors.New("device " + deviceID + " is already monitored")
	}

	go c.drain(df)
	c.logger.Info().Str("device_id", deviceID).Msg("Device subscribed to position feed")
	return nil
}

// RemoveDevice unsubscribes a device, waits for any in-flight evaluation
// to finish, and synchronously drops its downstream state.
func (c *Coordinator) RemoveDevice(deviceID string) error {
	df, ok := c.devices.Pop(deviceID)
	if !ok {
		return errors.New("device " + deviceID + " is not monitored")
	}

	df.cancel()
	<-df.drained

	if c.onRemove != nil {
		c.onRemove(deviceID)
	}
	c.logger.Info().Str("device_id", deviceID).Msg("Device unsubscribed from position feed")
	return nil
}

// Monitored reports whether the device currently has a subscription.
func (c *Coordinator) Monitored(deviceID string) bool {
	return c.devices.Has(deviceID)
}

// Offer hands a raw position to the device's mailbox. It never blocks
// the producer. A pending sample on the same side of every boundary as
// the new one is superseded (counted as coalesced); a pending sample the
// new one disagrees with is kept queued so its transition is still
// evaluated. Positions for unmonitored devices are ignored.
func (c *Coordinator) Offer(pos models.Position) {
	df, ok := c.devices.Get(pos.DeviceID)
	if !ok {
		c.logger.Debug().Str("device_id", pos.DeviceID).Msg("Position for unmonitored device ignored")
		return
	}

	df.mu.Lock()
	if n := len(df.pending); n > 0 && c.sink.SameContainment(df.pending[n-1], pos) {
		df.pending[n-1] = pos
		c.metrics.PositionsCoalesced.Inc()
	} else {
		df.pending = append(df.pending, pos)
	}
	df.mu.Unlock()

	select {
	case df.notify <- struct{}{}:
	default:
	}
}

// Close unsubscribes every device. Pending samples that were never
// handed to the sink are discarded.
func (c *Coordinator) Close() {
	for _, deviceID := range c.devices.Keys() {
		_ = c.RemoveDevice(deviceID)
	}
}

// drain delivers queued samples to the sink, one position at a time,
// respecting the device's rate limit. The sample stays on the queue
// during the limiter wait so late same-state arrivals can still coalesce
// onto it.
func (c *Coordinator) drain(df *deviceFeed) {
	defer close(df.drained)

	for {
		select {
		case <-df.ctx.Done():
			return
		case <-df.notify:
		}

		for df.queued() {
			if err := df.limiter.Wait(df.ctx); err != nil {
				return
			}
			pos, ok := df.take()
			if !ok {
				break
			}
			c.sink.HandlePosition(pos)
		}
	}
}

func (df *deviceFeed) queued() bool {
	df.mu.Lock()
	defer df.mu.Unlock()
	return len(df.pending) > 0
}

func (df *deviceFeed) take() (models.Position, bool) {
	df.mu.Lock()
	defer df.mu.Unlock()
	if len(df.pending) == 0 {
		return models.Position{}, false
	}
	pos := df.pending[0]
	df.pending = df.pending[1:]
	return pos, true
}
