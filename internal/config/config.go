// Package config loads the JSON runtime configuration. Every tunable is
// optional; omitted fields fall back to defaults through the Get*
// accessors, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration, mirroring the sections of the
// deployment: camera, processing, database, mqtt, realtime.
type Config struct {
	Camera     CameraConfig     `json:"camera"`
	Processing ProcessingConfig `json:"processing"`
	Database   DatabaseConfig   `json:"database"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Realtime   RealtimeConfig   `json:"realtime_optimization"`
}

// CameraConfig selects and tunes the capture source.
type CameraConfig struct {
	// SourceURL is a device index ("0"), file path, or stream URL.
	SourceURL  string  `json:"source_url"`
	BufferSize *int    `json:"buffer_size,omitempty"`
	Location   *string `json:"location,omitempty"`
}

// ProcessingConfig tunes detection and recognition.
type ProcessingConfig struct {
	ModelPath           string   `json:"model_path"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	PlateConfidenceMin  *float64 `json:"plate_confidence_min,omitempty"`
	DetectionCooldown   *string  `json:"detection_cooldown,omitempty"` // duration string like "500ms"
	OCRLanguage         *string  `json:"ocr_language,omitempty"`
}

// DatabaseConfig locates the sqlite file. An empty path disables
// persistence.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MQTTConfig configures the detection notifier. An empty broker disables
// publishing.
type MQTTConfig struct {
	Broker   string  `json:"broker"`
	ClientID *string `json:"client_id,omitempty"`
	Topic    *string `json:"topic,omitempty"`
}

// RealtimeConfig trades recognition coverage for latency.
type RealtimeConfig struct {
	AIProcessEvery *int `json:"ai_process_every,omitempty"`
	QueueSize      *int `json:"queue_size,omitempty"`
}

// Default returns a Config with every optional field unset, yielding the
// Get* defaults.
func Default() *Config {
	return &Config{}
}

// Load reads and validates a JSON config file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks set fields for sane values.
func (c *Config) Validate() error {
	if v := c.Processing.ConfidenceThreshold; v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *v)
	}
	if v := c.Processing.PlateConfidenceMin; v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("plate_confidence_min must be between 0 and 1, got %f", *v)
	}
	if v := c.Processing.DetectionCooldown; v != nil && *v != "" {
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid detection_cooldown %q: %w", *v, err)
		}
	}
	if v := c.Realtime.AIProcessEvery; v != nil && *v < 1 {
		return fmt.Errorf("ai_process_every must be at least 1, got %d", *v)
	}
	if v := c.Realtime.QueueSize; v != nil && *v < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *v)
	}
	if v := c.Camera.BufferSize; v != nil && *v < 1 {
		return fmt.Errorf("buffer_size must be at least 1, got %d", *v)
	}
	return nil
}

// GetBufferSize returns the capture buffer capacity or the default.
func (c *Config) GetBufferSize() int {
	if c.Camera.BufferSize == nil {
		return 2
	}
	return *c.Camera.BufferSize
}

// GetLocation returns the camera location tag or the default.
func (c *Config) GetLocation() string {
	if c.Camera.Location == nil {
		return "entrada_principal"
	}
	return *c.Camera.Location
}

// GetConfidenceThreshold returns the detector threshold or the default.
func (c *Config) GetConfidenceThreshold() float64 {
	if c.Processing.ConfidenceThreshold == nil {
		return 0.30
	}
	return *c.Processing.ConfidenceThreshold
}

// GetPlateConfidenceMin returns the OCR acceptance floor or the default.
func (c *Config) GetPlateConfidenceMin() float64 {
	if c.Processing.PlateConfidenceMin == nil {
		return 0.25
	}
	return *c.Processing.PlateConfidenceMin
}

// GetDetectionCooldown parses the cooldown window or returns the default.
func (c *Config) GetDetectionCooldown() time.Duration {
	if c.Processing.DetectionCooldown == nil || *c.Processing.DetectionCooldown == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.Processing.DetectionCooldown)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetOCRLanguage returns the Tesseract language or the default.
func (c *Config) GetOCRLanguage() string {
	if c.Processing.OCRLanguage == nil {
		return "eng"
	}
	return *c.Processing.OCRLanguage
}

// GetClientID returns the MQTT client id or the default.
func (c *Config) GetClientID() string {
	if c.MQTT.ClientID == nil {
		return "plategate"
	}
	return *c.MQTT.ClientID
}

// GetTopic returns the MQTT topic or the default.
func (c *Config) GetTopic() string {
	if c.MQTT.Topic == nil {
		return "plategate/detections"
	}
	return *c.MQTT.Topic
}

// GetAIProcessEvery returns the inference throttle or the default.
func (c *Config) GetAIProcessEvery() int {
	if c.Realtime.AIProcessEvery == nil {
		return 2
	}
	return *c.Realtime.AIProcessEvery
}

// GetQueueSize returns the inter-stage queue capacity or the default.
func (c *Config) GetQueueSize() int {
	if c.Realtime.QueueSize == nil {
		return 3
	}
	return *c.Realtime.QueueSize
}
