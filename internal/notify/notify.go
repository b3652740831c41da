// Package notify publishes accepted detections to an MQTT broker.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vigia-labs/plategate/internal/monitoring"
	"github.com/vigia-labs/plategate/internal/pipeline"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config identifies the broker and topic.
type Config struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string
	Topic    string
}

// detectionMessage is the wire shape of a published detection.
type detectionMessage struct {
	ID                 string    `json:"id"`
	Plate              string    `json:"plate"`
	Kind               string    `json:"kind"`
	Valid              bool      `json:"valid"`
	Authorized         bool      `json:"authorized"`
	DetectorConfidence float64   `json:"detector_confidence"`
	OCRConfidence      float64   `json:"ocr_confidence"`
	FormatScore        float64   `json:"format_score"`
	Location           string    `json:"location"`
	Timestamp          time.Time `json:"timestamp"`
}

// Publisher implements the pipeline's Notifier capability over MQTT.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// New connects to the broker. The client auto-reconnects after transient
// broker loss; publishes while disconnected fail fast.
func New(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		cfg.Topic = "plategate/detections"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		monitoring.Logf("notify: connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("notify: connection lost (%v), reconnecting", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("notify: connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: connect to %s: %w", cfg.Broker, err)
	}

	return &Publisher{client: client, topic: cfg.Topic}, nil
}

// PublishDetection sends r as JSON on the configured topic.
func (p *Publisher) PublishDetection(r pipeline.Result) error {
	payload, err := json.Marshal(detectionMessage{
		ID:                 r.ID,
		Plate:              r.Plate,
		Kind:               r.Kind,
		Valid:              r.Valid,
		Authorized:         r.Authorized,
		DetectorConfidence: r.DetectorConfidence,
		OCRConfidence:      r.OCRConfidence,
		FormatScore:        r.FormatScore,
		Location:           r.Location,
		Timestamp:          r.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", r.Plate, err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("notify: publish %s: timeout", r.Plate)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", r.Plate, err)
	}
	return nil
}

// Close disconnects from the broker with a short grace period.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
