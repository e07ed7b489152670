// Package emitter forwards save notifications from the notification bus to
// an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/filtershow/internal/config"
	"github.com/e7canasta/filtershow/modules/notifybus"
)

// subscriberID is the emitter's name on the notification bus.
const subscriberID = "mqtt"

// Message is the JSON payload published for one event.
type Message struct {
	Kind string `json:"kind"`
	notifybus.Event
}

// MQTTEmitter publishes save events to MQTT
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane
	logger *slog.Logger

	bus    notifybus.Bus
	events chan notifybus.Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	published map[string]uint64 // count per kind
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		cfg:       cfg,
		logger:    logger.With("component", "emitter"),
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker)
	}

	e.Client = mqtt.NewClient(opts)

	e.logger.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Start subscribes to the bus and forwards every event until Stop.
func (e *MQTTEmitter) Start(bus notifybus.Bus) error {
	e.events = make(chan notifybus.Event, 64)
	e.done = make(chan struct{})

	if err := bus.Subscribe(subscriberID, e.events); err != nil {
		return fmt.Errorf("failed to subscribe emitter: %w", err)
	}
	e.bus = bus

	e.wg.Add(1)
	go e.forward()

	e.logger.Info("event emitter started", "topic", e.cfg.MQTT.Topics.Events+"/<request-id>")
	return nil
}

// Stop unsubscribes from the bus and waits for the forwarder to publish
// every event already received.
func (e *MQTTEmitter) Stop() error {
	if e.bus == nil {
		return nil
	}
	if err := e.bus.Unsubscribe(subscriberID); err != nil {
		e.logger.Debug("emitter unsubscribe", "error", err)
	}
	e.bus = nil

	close(e.done)
	e.wg.Wait()
	return nil
}

func (e *MQTTEmitter) forward() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			// Unsubscribed: nothing new arrives, flush what is buffered.
			for {
				select {
				case ev := <-e.events:
					e.forwardOne(ev)
				default:
					return
				}
			}
		case ev := <-e.events:
			e.forwardOne(ev)
		}
	}
}

func (e *MQTTEmitter) forwardOne(ev notifybus.Event) {
	if err := e.Publish(ev); err != nil {
		e.logger.Warn("event publish failed",
			"request_id", ev.RequestID,
			"kind", ev.Kind.String(),
			"error", err)
	}
}

// Publish publishes one event to <events>/<request-id>
func (e *MQTTEmitter) Publish(ev notifybus.Event) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.MQTT.Topics.Events, ev.RequestID)

	payload, err := json.Marshal(Message{Kind: ev.Kind.String(), Event: ev})
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Terminal events are retained so late subscribers learn the outcome.
	retained := ev.Terminal()

	token := e.Client.Publish(topic, e.cfg.MQTT.QoS, retained, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[ev.Kind.String()]++
	e.mu.Unlock()

	e.logger.Debug("event published",
		"topic", topic,
		"kind", ev.Kind.String(),
		"size", len(payload))
	return nil
}

// PublishStatus publishes a status payload
func (e *MQTTEmitter) PublishStatus(payload []byte) error {
	if !e.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	token := e.Client.Publish(e.cfg.MQTT.Topics.Status, e.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
