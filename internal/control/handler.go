// Package control implements the MQTT control plane: save requests, status
// queries and preview commands arrive as JSON commands and are answered on
// the status topic.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/filtershow/internal/config"
	"github.com/e7canasta/filtershow/internal/processing"
)

// Command represents a control plane command
type Command struct {
	Command string `json:"command"`
	// Params is kept raw so preset payloads keep their filter order.
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// PreviewParams are the parameters of set_preview.
type PreviewParams struct {
	Source string          `json:"source"`
	Preset json.RawMessage `json:"preset,omitempty"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnSave       func(ctx context.Context, req processing.SaveRequest) (string, error)
	OnGetStatus  func() map[string]interface{}
	OnInvalidate func() error
	OnSetPreview func(params PreviewParams) error
}

// Handler handles control plane commands
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	logger   *slog.Logger
	commands chan Command

	callbacks CommandCallbacks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		client:    client,
		logger:    logger.With("component", "control"),
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS

	h.logger.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	h.ctx, h.cancel = context.WithCancel(ctx)

	h.wg.Add(1)
	go h.processCommands()

	h.logger.Info("control plane handler started")
	return nil
}

// Stop stops the control plane handler
func (h *Handler) Stop() error {
	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
		token.WaitTimeout(2 * time.Second)
	}

	if h.cancel != nil {
		h.cancel()
		h.wg.Wait()
	}

	h.logger.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	h.logger.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		h.logger.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case cmd := <-h.commands:
			h.sendResponse(h.handleCommand(h.ctx, cmd))
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(ctx context.Context, cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	fail := func(err string) Response {
		resp.Status = "error"
		resp.Error = err
		return resp
	}

	switch cmd.Command {
	case "save":
		if h.callbacks.OnSave == nil {
			return fail("save not implemented")
		}
		var req processing.SaveRequest
		if err := json.Unmarshal(cmd.Params, &req); err != nil {
			return fail(fmt.Sprintf("invalid save params: %v", err))
		}
		id, err := h.callbacks.OnSave(ctx, req)
		if err != nil {
			return fail(err.Error())
		}
		resp.Status = "accepted"
		resp.Data = map[string]interface{}{"id": id}

	case "get_status", "status":
		if h.callbacks.OnGetStatus == nil {
			return fail("get_status not implemented")
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "invalidate":
		if h.callbacks.OnInvalidate == nil {
			return fail("invalidate not implemented")
		}
		if err := h.callbacks.OnInvalidate(); err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"

	case "set_preview":
		if h.callbacks.OnSetPreview == nil {
			return fail("set_preview not implemented")
		}
		var params PreviewParams
		if err := json.Unmarshal(cmd.Params, &params); err != nil || params.Source == "" {
			return fail("missing or invalid 'source' parameter")
		}
		if err := h.callbacks.OnSetPreview(params); err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"source": params.Source}

	default:
		return fail(fmt.Sprintf("unknown command: %s", cmd.Command))
	}

	return resp
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.MQTT.Topics.Status, h.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		h.logger.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		h.logger.Error("failed to publish response", "error", err)
		return
	}

	h.logger.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
