package mesh

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by LoadConfig when the file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// DefaultConfig returns a configuration that serves maps from ./maps with
// the default profile document and no MQTT.
func DefaultConfig() *Config {
	return &Config{
		Maps: MapsConfig{
			Dir:         "maps",
			ProfileFile: DefaultProfileDocName,
		},
		Viewer: ViewerConfig{
			WallHeight:      DefaultWallHeight,
			ObstacleSpacing: DefaultObstacleSpacing,
			ObstacleMode:    ObstacleGrid,
			MarkerHeight:    DefaultMarkerHeight,
		},
		MQTT: MQTTConfig{
			PublishPrefix: DefaultPublishPrefix,
			ClientID:      DefaultMQTTClientID,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML config file over DefaultConfig, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	ApplyEnvOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnvOverrides replaces config values with any that are set in the
// environment.
func ApplyEnvOverrides(config *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"SLAMVIEW_DATA_DIR", &config.Maps.Dir},
		{"SLAMVIEW_MAPS_URL", &config.Maps.BaseURL},
		{"SLAMVIEW_PROFILE", &config.Maps.Profile},
		{"SLAMVIEW_POSE_URL", &config.Pose.URL},
		{"SLAMVIEW_LOG_LEVEL", &config.Log.Level},
		{"MQTT_BROKER", &config.MQTT.Broker},
		{"MQTT_CLIENT_ID", &config.MQTT.ClientID},
		{"MQTT_USERNAME", &config.MQTT.Username},
		{"MQTT_PASSWORD", &config.MQTT.Password},
		{"MQTT_PUBLISH_PREFIX", &config.MQTT.PublishPrefix},
		{"MQTT_POSE_TOPIC", &config.MQTT.PoseTopic},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate checks that the configuration can be served.
func (c *Config) Validate() error {
	if c.Maps.Dir == "" && c.Maps.BaseURL == "" {
		return fmt.Errorf("maps.dir or maps.baseUrl is required")
	}
	if c.Maps.BaseURL != "" {
		u, err := url.Parse(c.Maps.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("maps.baseUrl must be an http(s) URL, got %q", c.Maps.BaseURL)
		}
	}

	if c.Viewer.WallHeight <= 0 {
		return fmt.Errorf("viewer.wallHeight must be positive, got %v", c.Viewer.WallHeight)
	}
	if c.Viewer.ObstacleSpacing <= 0 {
		return fmt.Errorf("viewer.obstacleSpacing must be positive, got %v", c.Viewer.ObstacleSpacing)
	}
	switch c.Viewer.ObstacleMode {
	case ObstacleCentroid, ObstacleGrid:
	default:
		return fmt.Errorf("viewer.obstacleMode must be %q or %q, got %q", ObstacleCentroid, ObstacleGrid, c.Viewer.ObstacleMode)
	}
	if c.Viewer.MarkerHeight < 0 {
		return fmt.Errorf("viewer.markerHeight must not be negative")
	}
	if c.Viewer.Display != nil && !c.Viewer.Display.Valid() {
		return fmt.Errorf("viewer.display dimensions must all be positive")
	}

	if c.Pose.URL != "" {
		u, err := url.Parse(c.Pose.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("pose.url must be a ws:// or wss:// URL, got %q", c.Pose.URL)
		}
	}

	if c.MQTT.Broker != "" && c.MQTT.PublishPrefix == "" {
		return fmt.Errorf("mqtt.publishPrefix is required when mqtt.broker is set")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
