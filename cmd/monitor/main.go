package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/geofence-monitor/internal/metrics"
	"github.com/benmeehan/geofence-monitor/internal/service_registry"
	"github.com/benmeehan/geofence-monitor/internal/utils"
	"github.com/benmeehan/geofence-monitor/pkg/file"
	"github.com/benmeehan/geofence-monitor/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Load the geofence definition set
	defs, err := utils.LoadGeofenceDefinitions(config.Geofences.DefinitionsFile, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load geofence definitions")
	}

	// Register the pipeline counters and expose them when configured
	promRegistry := prometheus.NewRegistry()
	pipelineMetrics := metrics.New(promRegistry)
	if config.Monitor.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(config.Monitor.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	// Initialize the shared MQTT connection when the telemetry source is on
	mqttClient := mqtt.NewMqttService(fileClient)
	if config.Sources.Telemetry.Enabled {
		// Generate a unique MQTT Client ID by appending a UUID
		config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

		err = mqttClient.Initialize(config.MQTT.Broker, config.MQTT.ClientID, config.MQTT.CACertificate)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, pipelineMetrics, logger)

	// Register the monitor, position sources and notification bridge
	monitorService, err := serviceRegistry.RegisterServices(config, defs)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Subscribe the configured devices to the position feed
	for _, deviceID := range config.Monitor.Devices {
		if err := monitorService.AddDevice(deviceID); err != nil {
			logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to add device")
		}
	}

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Service shutdown reported errors")
	}
	if config.Sources.Telemetry.Enabled {
		mqttClient.Disconnect(250)
	}
}
