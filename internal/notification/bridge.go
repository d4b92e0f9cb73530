package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/geofence-monitor/internal/events"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/benmeehan/geofence-monitor/internal/utils"
	"github.com/benmeehan/geofence-monitor/pkg/geocode"
	"github.com/benmeehan/geofence-monitor/pkg/identity"
	"github.com/benmeehan/geofence-monitor/pkg/presenter"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Bridge subscribes to the event stream, enriches transition events with
// presentation data (device display name and, when a geocoder is
// configured, a street address) and forwards notification payloads to
// the presenter. Enter/exit gating already happened in the tracker; the
// bridge only formats and forwards.
type Bridge struct {
	// Configuration fields
	subscriberName string
	bufferSize     int
	workers        int

	// Dependencies
	stream    *events.Stream
	directory identity.DeviceDirectory
	geocoder  geocode.Geocoder
	presenter presenter.Presenter
	logger    zerolog.Logger

	// Internal state management
	nameCache cmap.ConcurrentMap[string, string]
	sub       *events.Subscription
	pool      *utils.WorkerPool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

// NewBridge creates a notification bridge. The geocoder may be nil, in
// which case notification bodies carry raw coordinates.
func NewBridge(stream *events.Stream, directory identity.DeviceDirectory, geocoder geocode.Geocoder,
	p presenter.Presenter, bufferSize, workers int, logger zerolog.Logger) *Bridge {
	if workers < 1 {
		workers = 1
	}
	return &Bridge{
		subscriberName: "notification-bridge",
		bufferSize:     bufferSize,
		workers:        workers,
		stream:         stream,
		directory:      directory,
		geocoder:       geocoder,
		presenter:      p,
		logger:         logger,
		nameCache:      cmap.New[string](),
	}
}

// Start subscribes to the event stream and begins forwarding
// notifications.
func (b *Bridge) Start() error {
	if b.running {
		b.logger.Warn().Msg("NotificationBridge is already running")
		return errors.New("notification bridge is already running")
	}

	sub, err := b.stream.Subscribe(b.subscriberName, b.bufferSize)
	if err != nil {
		return err
	}
	b.sub = sub
	b.pool = utils.NewWorkerPool(b.workers)
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.running = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		for {
			select {
			case evt, ok := <-b.sub.Events():
				if !ok {
					b.logger.Info().Msg("Event stream closed, NotificationBridge loop exiting")
					return
				}
				b.handleEvent(evt)
			case <-b.ctx.Done():
				return
			}
		}
	}()

	b.logger.Info().
		Int("buffer", b.bufferSize).
		Int("workers", b.workers).
		Msg("NotificationBridge started")
	return nil
}

// Stop detaches from the event stream and drains the dispatch pool.
func (b *Bridge) Stop() error {
	if !b.running {
		b.logger.Warn().Msg("NotificationBridge is not running")
		return errors.New("notification bridge is not running")
	}

	b.cancel()
	b.sub.Close()
	b.wg.Wait()
	b.pool.Shutdown()

	b.running = false
	b.logger.Info().Msg("NotificationBridge stopped")
	return nil
}

// handleEvent hands the event to the dispatch pool. Enrichment runs
// inside the pooled task too: the directory lookup and reverse geocode
// can block, and a slow one must stall a worker, not the event loop.
func (b *Bridge) handleEvent(evt models.GeofenceEvent) {
	b.pool.Submit(func() {
		n := models.Notification{
			Title: b.title(evt),
			Body:  b.body(evt),
			Event: evt,
		}
		if err := b.presenter.Present(b.ctx, n); err != nil {
			b.logger.Error().Err(err).
				Str("device_id", evt.DeviceID).
				Str("geofence_id", evt.GeofenceID).
				Msg("Failed to present notification")
		}
	})
}

func (b *Bridge) title(evt models.GeofenceEvent) string {
	verb := "entered"
	if evt.Kind == models.EventExit {
		verb = "left"
	}
	return fmt.Sprintf("%s %s %s", b.resolveName(evt.DeviceID), verb, evt.GeofenceName)
}

func (b *Bridge) body(evt models.GeofenceEvent) string {
	place := fmt.Sprintf("%.6f, %.6f", evt.Position.Latitude, evt.Position.Longitude)
	if b.geocoder != nil {
		if addr, err := b.geocoder.ReverseGeocode(b.ctx, evt.Position.Latitude, evt.Position.Longitude); err == nil {
			place = addr
		} else {
			b.logger.Debug().Err(err).Msg("Reverse geocoding failed, using raw coordinates")
		}
	}
	return fmt.Sprintf("At %s on %s", place, evt.Timestamp.Format("2006-01-02 15:04:05 UTC"))
}

// resolveName looks the device up in the read-through name cache. A
// directory miss or failure degrades to a placeholder label and is not
// cached, so a later lookup can recover.
func (b *Bridge) resolveName(deviceID string) string {
	if name, ok := b.nameCache.Get(deviceID); ok {
		return name
	}

	name, err := b.directory.LookupName(deviceID)
	if err != nil {
		b.logger.Warn().Err(err).
			Str("device_id", deviceID).
			Msg("Device directory lookup failed, using placeholder")
		return fmt.Sprintf("Device %s", deviceID)
	}

	b.nameCache.Set(deviceID, name)
	return name
}
