// Package positionsource contains the inbound adapters that feed raw
// device positions into the monitor: an MQTT telemetry subscriber for a
// fleet of remote devices and a serial NMEA reader for a locally
// attached GPS receiver.
package positionsource

import (
	"github.com/benmeehan/geofence-monitor/internal/models"
)

// Ingestor accepts raw positions from a source. Implemented by the
// monitor service.
type Ingestor interface {
	Ingest(pos models.Position)
}
