// Package presenter is the outbound "show notification" boundary. The
// bridge hands it resolved title/body payloads; how they surface (local
// log, mail, push) is an implementation detail behind the Presenter
// interface.
package presenter

import (
	"context"

	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Presenter surfaces a notification to the user-facing layer.
type Presenter interface {
	Present(ctx context.Context, n models.Notification) error
}

// LogPresenter writes notifications to the structured log. Useful as the
// default sink and in development.
type LogPresenter struct {
	logger zerolog.Logger
}

// NewLogPresenter creates a LogPresenter.
func NewLogPresenter(logger zerolog.Logger) *LogPresenter {
	return &LogPresenter{logger: logger}
}

// Present logs the notification.
func (p *LogPresenter) Present(_ context.Context, n models.Notification) error {
	p.logger.Info().
		Str("title", n.Title).
		Str("body", n.Body).
		Str("device_id", n.Event.DeviceID).
		Str("geofence_id", n.Event.GeofenceID).
		Str("kind", string(n.Event.Kind)).
		Msg("Notification")
	return nil
}
