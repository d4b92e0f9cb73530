package positionsource

import (
	"fmt"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benmeehan/geofence-monitor/internal/models"
)

// nowFn is swapped in tests for sentences that carry no date.
var nowFn = time.Now

// decodeNMEA converts a raw NMEA sentence into a position for the given
// device. RMC sentences carry their own date and time; GGA sentences
// only carry a time of day, so the sample is stamped with the current
// UTC date.
func decodeNMEA(deviceID, line string) (models.Position, error) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		return models.Position{}, fmt.Errorf("failed to parse NMEA sentence: %w", err)
	}

	switch s := sentence.(type) {
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return models.Position{}, fmt.Errorf("RMC sentence has no valid fix")
		}
		ts := time.Date(2000+s.Date.YY, time.Month(s.Date.MM), s.Date.DD,
			s.Time.Hour, s.Time.Minute, s.Time.Second, s.Time.Millisecond*int(time.Millisecond), time.UTC)
		return models.Position{
			DeviceID:  deviceID,
			Timestamp: ts,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		}, nil
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return models.Position{}, fmt.Errorf("GGA sentence has no valid fix")
		}
		now := nowFn().UTC()
		ts := time.Date(now.Year(), now.Month(), now.Day(),
			s.Time.Hour, s.Time.Minute, s.Time.Second, s.Time.Millisecond*int(time.Millisecond), time.UTC)
		return models.Position{
			DeviceID:  deviceID,
			Timestamp: ts,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.HDOP,
		}, nil
	default:
		return models.Position{}, fmt.Errorf("unsupported NMEA sentence type %s", sentence.DataType())
	}
}
