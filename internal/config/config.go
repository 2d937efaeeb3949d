/*
Configuration for the g3go command-line tools.

Settings load from a YAML file with G3-prefixed environment variable
overrides on top of built-in defaults, and are validated before use.
*/

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tobiipro/g3go/logging"
)

// Config is the root configuration.
type Config struct {
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Streams   StreamsConfig   `mapstructure:"streams" yaml:"streams"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`
}

// DeviceConfig selects the device and its URLs. Explicit URLs override
// the hostname-derived defaults.
type DeviceConfig struct {
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
	WSURL    string `mapstructure:"ws_url" yaml:"ws_url"`
	RTSPURL  string `mapstructure:"rtsp_url" yaml:"rtsp_url"`
	HTTPURL  string `mapstructure:"http_url" yaml:"http_url"`
	UseIP    bool   `mapstructure:"use_ip" yaml:"use_ip"`
}

// DiscoveryConfig tunes mDNS discovery.
type DiscoveryConfig struct {
	TimeoutSeconds float64 `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// StreamsConfig selects the default live streams.
type StreamsConfig struct {
	SceneCamera bool `mapstructure:"scene_camera" yaml:"scene_camera"`
	EyeCameras  bool `mapstructure:"eye_cameras" yaml:"eye_cameras"`
	Gaze        bool `mapstructure:"gaze" yaml:"gaze"`

	SubscriberQueueSize int `mapstructure:"subscriber_queue_size" yaml:"subscriber_queue_size"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{TimeoutSeconds: 3},
		Streams: StreamsConfig{
			SceneCamera:         true,
			SubscriberQueueSize: 100,
		},
		Logging: logging.Config{
			Level:          "info",
			Format:         "text",
			ConsoleEnabled: true,
			MaxFileSizeMB:  10,
			BackupCount:    3,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Discovery.TimeoutSeconds <= 0 {
		return fmt.Errorf("discovery.timeout_seconds must be positive, got %v", c.Discovery.TimeoutSeconds)
	}
	if c.Streams.SubscriberQueueSize <= 0 {
		return fmt.Errorf("streams.subscriber_queue_size must be positive, got %d", c.Streams.SubscriberQueueSize)
	}
	return nil
}

// WriteDefault writes the default configuration to the given path as
// YAML.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}
