package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/benmeehan/geofence-monitor/internal/monitor"
	"github.com/benmeehan/geofence-monitor/internal/notification"
	"github.com/benmeehan/geofence-monitor/internal/registry"
	"github.com/benmeehan/geofence-monitor/internal/utils"
	"github.com/benmeehan/geofence-monitor/pkg/file"
	"github.com/benmeehan/geofence-monitor/pkg/geocode"
	"github.com/benmeehan/geofence-monitor/pkg/identity"
	"github.com/benmeehan/geofence-monitor/pkg/mqtt"
	"github.com/benmeehan/geofence-monitor/pkg/positionsource"
	"github.com/benmeehan/geofence-monitor/pkg/presenter"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ServiceRegistry manages the lifecycle of the system's services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations,
	m *metrics.Metrics, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		fileClient: fileClient,
		metrics:    m,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds and registers the monitor, the enabled position
// sources and the notification bridge, in start order. The monitor
// service is returned so the caller can manage devices and reloads.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, defs []models.Geofence) (*monitor.Service, error) {
	evalRate := rate.Inf
	if config.Monitor.EvalRateHz > 0 {
		evalRate = rate.Limit(config.Monitor.EvalRateHz)
	}
	monitorService := monitor.NewService(defs, evalRate, config.Monitor.EvalBurst, sr.metrics, sr.Logger)
	sr.RegisterService("monitor", monitorService)

	if config.Sources.Telemetry.Enabled {
		sr.RegisterService("telemetry", positionsource.NewMQTTSource(
			config.Sources.Telemetry.Topic,
			config.Sources.Telemetry.QOS,
			sr.mqttClient,
			monitorService,
			sr.Logger,
		))
	}

	if config.Sources.GPS.Enabled {
		sr.RegisterService("gps", positionsource.NewSerialGPSSource(
			config.Sources.GPS.DeviceID,
			config.Sources.GPS.Port,
			config.Sources.GPS.BaudRate,
			monitorService,
			sr.Logger,
		))
	}

	if config.Notifications.Enabled {
		directory := identity.NewFileDirectory(config.Notifications.DirectoryFile, sr.fileClient)
		if err := directory.Load(); err != nil {
			sr.Logger.Error().Err(err).Msg("Failed to load device directory")
			return nil, err
		}

		var geocoder geocode.Geocoder
		if config.Notifications.MapsAPIKey != "" {
			g, err := geocode.NewGoogleGeocoder(config.Notifications.MapsAPIKey)
			if err != nil {
				sr.Logger.Error().Err(err).Msg("Failed to create reverse geocoder")
				return nil, err
			}
			geocoder = g
		}

		var p presenter.Presenter
		if config.Notifications.Mail.Enabled {
			p = presenter.NewMailPresenter(
				config.Notifications.Mail.SMTPHost,
				config.Notifications.Mail.SMTPPort,
				config.Notifications.Mail.SMTPUser,
				config.Notifications.Mail.SMTPPassword,
				config.Notifications.Mail.Recipients,
			)
		} else {
			p = presenter.NewLogPresenter(sr.Logger)
		}

		sr.RegisterService("notification-bridge", notification.NewBridge(
			monitorService.Events(),
			directory,
			geocoder,
			p,
			config.Notifications.Buffer,
			config.Notifications.Workers,
			sr.Logger,
		))
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", sr.serviceKeys)
	return monitorService, nil
}
