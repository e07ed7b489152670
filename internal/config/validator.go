package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills derived defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	p := &cfg.Pipeline
	if p.PreviewWidth <= 0 || p.PreviewHeight <= 0 {
		return fmt.Errorf("pipeline preview size must be > 0, got %dx%d", p.PreviewWidth, p.PreviewHeight)
	}
	if p.DisplayFPS <= 0 || p.DisplayFPS > 120 {
		return fmt.Errorf("pipeline.display_fps must be in (0, 120], got %.2f", p.DisplayFPS)
	}
	if err := validateQuality("pipeline.jpeg_quality", p.JPEGQuality); err != nil {
		return err
	}
	if p.PoolSize <= 0 {
		p.PoolSize = 4
	}

	pr := &cfg.Processing
	if pr.QueueSize <= 0 {
		return fmt.Errorf("processing.queue_size must be > 0")
	}
	if pr.OutputDir == "" {
		return fmt.Errorf("processing.output_dir is required")
	}
	if err := validateQuality("processing.jpeg_quality", pr.JPEGQuality); err != nil {
		return err
	}
	if pr.ProgressRateHz <= 0 {
		pr.ProgressRateHz = 10
	}
	if pr.WriteRetryS < 0 {
		return fmt.Errorf("processing.write_retry_s must be >= 0")
	}
	if pr.DeliveryTimeoutMS <= 0 {
		pr.DeliveryTimeoutMS = 5000
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Set default topics if not provided
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("filtershow/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Events == "" {
		cfg.MQTT.Topics.Events = fmt.Sprintf("filtershow/events/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Status == "" {
		cfg.MQTT.Topics.Status = fmt.Sprintf("filtershow/status/%s", cfg.InstanceID)
	}

	return nil
}

func validateQuality(field string, q int) error {
	if q < 1 || q > 100 {
		return fmt.Errorf("%s must be 1-100, got %d", field, q)
	}
	return nil
}
