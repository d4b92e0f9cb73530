package utils

import (
	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/benmeehan/geofence-monitor/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate (empty for plain TCP)
	} `yaml:"mqtt"`

	Geofences struct {
		DefinitionsFile string `yaml:"definitions_file"` // Path to the YAML geofence definitions file
	} `yaml:"geofences"`

	Monitor struct {
		Devices     []string `yaml:"devices"`      // Device IDs monitored at startup
		EvalRateHz  float64  `yaml:"eval_rate_hz"` // Max evaluations per second per device (0 = unthrottled)
		EvalBurst   int      `yaml:"eval_burst"`   // Rate limiter burst per device
		MetricsAddr string   `yaml:"metrics_addr"` // Listen address for /metrics (empty disables)
	} `yaml:"monitor"`

	Sources struct {
		Telemetry struct {
			Enabled bool   `yaml:"enabled"` // Enable/disable the MQTT telemetry source
			Topic   string `yaml:"topic"`   // MQTT topic filter for device positions
			QOS     int    `yaml:"qos"`     // MQTT QoS level for the position subscription
		} `yaml:"telemetry"`

		GPS struct {
			Enabled  bool   `yaml:"enabled"`   // Enable/disable the local serial GPS source
			DeviceID string `yaml:"device_id"` // Device ID the local GPS fixes are attributed to
			Port     string `yaml:"port"`      // UNIX port where the GPS sensor is mounted
			BaudRate int    `yaml:"baud_rate"` // The baud rate for the GPS sensor
		} `yaml:"gps"`
	} `yaml:"sources"`

	Notifications struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable the notification bridge
		Buffer        int    `yaml:"buffer"`         // Bounded event queue size for the bridge
		Workers       int    `yaml:"workers"`        // Dispatch pool size for presenting notifications
		DirectoryFile string `yaml:"directory_file"` // Path to the device directory JSON file
		MapsAPIKey    string `yaml:"maps_api_key"`   // Google Maps API key (empty disables reverse geocoding)

		Mail struct {
			Enabled      bool     `yaml:"enabled"`       // Deliver notifications over SMTP instead of the log
			SMTPHost     string   `yaml:"smtp_host"`     // SMTP server host
			SMTPPort     int      `yaml:"smtp_port"`     // SMTP server port
			SMTPUser     string   `yaml:"smtp_user"`     // SMTP sender account
			SMTPPassword string   `yaml:"smtp_password"` // SMTP sender password
			Recipients   []string `yaml:"recipients"`    // Notification recipients
		} `yaml:"mail"`
	} `yaml:"notifications"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// GeofenceDefinitions is the on-disk shape of the geofence definitions file.
type GeofenceDefinitions struct {
	Geofences []models.Geofence `yaml:"geofences"`
}

// LoadGeofenceDefinitions loads the geofence definition set from a YAML file.
func LoadGeofenceDefinitions(filename string, fileClient file.FileOperations) ([]models.Geofence, error) {
	var defs GeofenceDefinitions
	if err := fileClient.ReadYamlFile(filename, &defs); err != nil {
		return nil, err
	}

	return defs.Geofences, nil
}
