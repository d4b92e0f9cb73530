package positionsource

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// SerialGPSSource reads NMEA sentences from a GPS receiver on a serial
// port and feeds them into the monitor as positions for one device.
type SerialGPSSource struct {
	// Configuration fields
	deviceID string
	port     string
	baudRate int

	// Dependencies
	ingestor Ingestor
	logger   zerolog.Logger

	// Internal state management
	serialPort *serial.Port
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewSerialGPSSource creates a source for the GPS device on the given
// port, attributing its fixes to deviceID.
func NewSerialGPSSource(deviceID, port string, baudRate int, ingestor Ingestor, logger zerolog.Logger) *SerialGPSSource {
	return &SerialGPSSource{
		deviceID: deviceID,
		port:     port,
		baudRate: baudRate,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Start opens the serial port and begins streaming fixes.
func (s *SerialGPSSource) Start() error {
	if s.running {
		s.logger.Warn().Msg("SerialGPSSource is already running")
		return errors.New("serial gps source is already running")
	}

	port, err := serial.OpenPort(&serial.Config{Name: s.port, Baud: s.baudRate})
	if err != nil {
		s.logger.Error().Err(err).Str("port", s.port).Msg("Failed to open GPS serial port")
		return err
	}
	s.serialPort = port
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		scanner := bufio.NewScanner(s.serialPort)
		for scanner.Scan() {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			pos, err := decodeNMEA(s.deviceID, line)
			if err != nil {
				s.logger.Debug().Err(err).Msg("Skipping unusable NMEA sentence")
				continue
			}
			s.ingestor.Ingest(pos)
		}

		if err := scanner.Err(); err != nil {
			s.logger.Error().Err(err).Msg("GPS serial read failed")
		}
	}()

	s.logger.Info().
		Str("port", s.port).
		Int("baud_rate", s.baudRate).
		Str("device_id", s.deviceID).
		Msg("SerialGPSSource started")
	return nil
}

// Stop closes the serial port and waits for the read loop to exit.
func (s *SerialGPSSource) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("SerialGPSSource is not running")
		return errors.New("serial gps source is not running")
	}

	s.cancel()
	// Closing the port unblocks the scanner.
	if err := s.serialPort.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to close GPS serial port")
	}
	s.wg.Wait()

	s.running = false
	s.logger.Info().Msg("SerialGPSSource stopped")
	return nil
}
