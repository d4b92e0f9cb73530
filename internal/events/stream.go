// Package events implements the transition-event broadcast: an ordered,
// multi-subscriber fan-out with bounded per-subscriber queues. A slow
// subscriber loses its oldest unread events instead of stalling the
// evaluation pipeline (at-most-once per subscriber under backpressure).
package events

import (
	"errors"
	"sync"

	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/rs/zerolog"
)

// DefaultSubscriberBuffer is used when a subscriber asks for a
// non-positive queue size.
const DefaultSubscriberBuffer = 64

// Subscription is one subscriber's bounded view of the stream.
type Subscription struct {
	name   string
	ch     chan models.GeofenceEvent
	stream *Stream
	once   sync.Once
}

// Events returns the subscriber's receive channel. The channel is closed
// when the subscription is closed or the stream shuts down.
func (s *Subscription) Events() <-chan models.GeofenceEvent {
	return s.ch
}

// Close detaches the subscription from the stream.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.stream.unsubscribe(s.name)
	})
}

// Stream broadcasts every published event to every current subscriber.
// Subscribers only see events published after they subscribe; there is
// no replay.
type Stream struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	closed      bool
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewStream creates an empty stream.
func NewStream(m *metrics.Metrics, logger zerolog.Logger) *Stream {
	return &Stream{
		subscribers: make(map[string]*Subscription),
		metrics:     m,
		logger:      logger,
	}
}

// Subscribe registers a named subscriber with its own bounded queue.
// Names must be unique; subscribing an existing name returns an error.
func (s *Stream) Subscribe(name string, buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("event stream is closed")
	}
	if _, exists := s.subscribers[name]; exists {
		return nil, errors.New("subscriber " + name + " already registered")
	}

	sub := &Subscription{
		name:   name,
		ch:     make(chan models.GeofenceEvent, buffer),
		stream: s,
	}
	s.subscribers[name] = sub
	s.logger.Info().Str("subscriber", name).Int("buffer", buffer).Msg("Event subscriber registered")
	return sub, nil
}

// Publish delivers the event to every current subscriber. A full
// subscriber queue sheds its oldest unread event to make room; the drop
// is counted and logged, never propagated as an error.
func (s *Stream) Publish(evt models.GeofenceEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	s.metrics.EventsPublished.Inc()
	for _, sub := range s.subscribers {
		select {
		case sub.ch <- evt:
			continue
		default:
		}

		// Queue full: shed the oldest unread event, then retry once.
		select {
		case <-sub.ch:
			s.metrics.SubscriberEventsDropped.Inc()
			s.logger.Warn().
				Str("subscriber", sub.name).
				Str("device_id", evt.DeviceID).
				Msg("Slow subscriber, dropped oldest unread event")
		default:
		}
		select {
		case sub.ch <- evt:
		default:
			s.metrics.SubscriberEventsDropped.Inc()
		}
	}
}

// Close shuts the stream down and closes every subscriber channel.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for name, sub := range s.subscribers {
		close(sub.ch)
		delete(s.subscribers, name)
	}
	s.logger.Info().Msg("Event stream closed")
}

func (s *Stream) unsubscribe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[name]
	if !ok {
		return
	}
	delete(s.subscribers, name)
	close(sub.ch)
	s.logger.Info().Str("subscriber", name).Msg("Event subscriber removed")
}
