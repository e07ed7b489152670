package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"gopkg.in/yaml.v3"
)

// EnvPrefix selects environment overrides: FILTERSHOW_HTTP__ADDR → http.addr.
const EnvPrefix = "FILTERSHOW_"

// Config represents the complete filtershow daemon configuration
type Config struct {
	InstanceID       string           `koanf:"instance_id" yaml:"instance_id"`
	ShutdownTimeoutS int              `koanf:"shutdown_timeout_s" yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	HTTP             HTTPConfig       `koanf:"http" yaml:"http"`
	Pipeline         PipelineConfig   `koanf:"pipeline" yaml:"pipeline"`
	Processing       ProcessingConfig `koanf:"processing" yaml:"processing"`
	MQTT             MQTTConfig       `koanf:"mqtt" yaml:"mqtt"`
}

// HTTPConfig contains the API listener settings
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// PipelineConfig contains preview render settings
type PipelineConfig struct {
	PreviewWidth  int     `koanf:"preview_width" yaml:"preview_width"`
	PreviewHeight int     `koanf:"preview_height" yaml:"preview_height"`
	DisplayFPS    float64 `koanf:"display_fps" yaml:"display_fps"`   // display tick rate
	JPEGQuality   int     `koanf:"jpeg_quality" yaml:"jpeg_quality"` // preview encode quality
	PoolSize      int     `koanf:"pool_size" yaml:"pool_size"`       // reusable images per dimension
}

// ProcessingConfig contains save service settings
type ProcessingConfig struct {
	QueueSize         int     `koanf:"queue_size" yaml:"queue_size"` // pending saves before rejection
	OutputDir         string  `koanf:"output_dir" yaml:"output_dir"`
	SpoolDir          string  `koanf:"spool_dir" yaml:"spool_dir"` // pending requests, redelivered on restart
	JPEGQuality       int     `koanf:"jpeg_quality" yaml:"jpeg_quality"`
	ProgressRateHz    float64 `koanf:"progress_rate_hz" yaml:"progress_rate_hz"`
	WriteRetryS       int     `koanf:"write_retry_s" yaml:"write_retry_s"` // max elapsed time retrying a write
	DeliveryTimeoutMS int     `koanf:"delivery_timeout_ms" yaml:"delivery_timeout_ms"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled bool       `koanf:"enabled" yaml:"enabled"`
	Broker  string     `koanf:"broker" yaml:"broker"`
	Topics  MQTTTopics `koanf:"topics" yaml:"topics"`
	QoS     byte       `koanf:"qos" yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `koanf:"control" yaml:"control"`
	Events  string `koanf:"events" yaml:"events"`
	Status  string `koanf:"status" yaml:"status"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		InstanceID:       "filtershow",
		ShutdownTimeoutS: 5,
		HTTP:             HTTPConfig{Addr: ":8080"},
		Pipeline: PipelineConfig{
			PreviewWidth:  640,
			PreviewHeight: 480,
			DisplayFPS:    30,
			JPEGQuality:   80,
			PoolSize:      4,
		},
		Processing: ProcessingConfig{
			QueueSize:         8,
			OutputDir:         "output",
			SpoolDir:          "spool",
			JPEGQuality:       95,
			ProgressRateHz:    10,
			WriteRetryS:       3,
			DeliveryTimeoutMS: 5000,
		},
		MQTT: MQTTConfig{QoS: 1},
	}
}

// Load reads defaults, then the YAML file at path (if non-empty), then
// FILTERSHOW_ environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Dump renders the effective configuration as YAML.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}
