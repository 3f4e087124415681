package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alnorlabs/alnor-core/internal/coordinator"
	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/humidity"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/mqtt"
	"github.com/alnorlabs/alnor-core/internal/transport"
)

// commandTimeout bounds one command dispatch, including a transport
// fallback and the follow-up refresh poll.
const commandTimeout = 15 * time.Second

// Availability payloads for the retained availability topics.
const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Commander dispatches device commands. Satisfied by *coordinator.Coordinator.
type Commander interface {
	Apply(ctx context.Context, cmd *device.Command) error
}

// HumidityControl exposes the humidity controllers' runtime switches.
// Satisfied by *humidity.Manager.
type HumidityControl interface {
	SetEnabled(ctx context.Context, deviceID string, enabled bool) error
	SetTarget(ctx context.Context, deviceID string, target int) error
	Status(deviceID string) (humidity.Status, bool)
}

// Bridge exposes the coordinator's device state over MQTT and accepts
// commands back from the broker:
//
//   - alnor/state/{id} (retained): the latest reading as JSON
//   - alnor/availability/{id} (retained): "online" / "offline"
//   - alnor/command/{id}: inbound command JSON
//   - alnor/ack/{id}: per-command acknowledgement
//   - alnor/humidity/{id}/state (retained): last humidity controller decision
//
// State and availability publishes are deduplicated so a broker restart
// or a steady device does not generate redundant retained traffic.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt      MQTTClient
	commander Commander
	humidity  HumidityControl
	topics    mqtt.Topics
	qos       byte

	// Publish deduplication caches.
	lastState map[string][]byte
	lastAvail map[string]string
	cacheMu   sync.Mutex

	// ctx is the bridge-level context set by Start, parent of every
	// per-command context.
	ctx   context.Context
	ctxMu sync.RWMutex

	logger Logger
}

// New creates a bridge over an MQTT client and a command dispatcher.
// qos applies to every publish and to the command subscription.
func New(client MQTTClient, commander Commander, qos byte) *Bridge {
	return &Bridge{
		mqtt:      client,
		commander: commander,
		qos:       qos,
		lastState: make(map[string][]byte),
		lastAvail: make(map[string]string),
		ctx:       context.Background(),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// SetHumidityControl exposes humidity controller switches over MQTT.
// Must be called before Start; nil leaves the humidity command topic
// unsubscribed.
func (b *Bridge) SetHumidityControl(hc HumidityControl) {
	b.humidity = hc
}

// Start subscribes to the command topics. The context bounds every
// command the bridge dispatches from then on; cancel it on shutdown.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctxMu.Lock()
	b.ctx = ctx
	b.ctxMu.Unlock()

	if err := b.mqtt.Subscribe(b.topics.AllCommands(), b.qos, b.handleCommand); err != nil {
		return err
	}

	if b.humidity != nil {
		if err := b.mqtt.Subscribe(b.topics.AllHumidityCommands(), b.qos, b.handleHumidityCommand); err != nil {
			return err
		}
	}

	b.logger.Info("mqtt bridge started", "command_topic", b.topics.AllCommands())
	return nil
}

// OnSnapshot publishes one snapshot change to MQTT. It matches
// coordinator.Listener so it can be registered directly:
//
//	coord.AddListener(bridge.OnSnapshot)
func (b *Bridge) OnSnapshot(dev device.Device, snap coordinator.Snapshot) {
	b.publishAvailability(dev.ID, snap.Available)

	if snap.Reading == nil {
		return
	}

	payload, err := json.Marshal(snap.Reading)
	if err != nil {
		b.logger.Error("marshaling device state", "device_id", dev.ID, "error", err)
		return
	}

	b.cacheMu.Lock()
	unchanged := bytes.Equal(b.lastState[dev.ID], payload)
	if !unchanged {
		b.lastState[dev.ID] = payload
	}
	b.cacheMu.Unlock()

	if unchanged {
		return
	}

	if err := b.mqtt.Publish(b.topics.DeviceState(dev.ID), payload, b.qos, true); err != nil {
		b.logger.Warn("publishing device state", "device_id", dev.ID, "error", err)
	}
}

// publishAvailability publishes the retained availability flag, skipping
// publishes that would not change the retained value.
func (b *Bridge) publishAvailability(deviceID string, available bool) {
	payload := payloadOffline
	if available {
		payload = payloadOnline
	}

	b.cacheMu.Lock()
	unchanged := b.lastAvail[deviceID] == payload
	if !unchanged {
		b.lastAvail[deviceID] = payload
	}
	b.cacheMu.Unlock()

	if unchanged {
		return
	}

	if err := b.mqtt.Publish(b.topics.DeviceAvailability(deviceID), []byte(payload), b.qos, true); err != nil {
		b.logger.Warn("publishing availability", "device_id", deviceID, "error", err)
	}
}

// WriteHumidityDecision publishes a retained humidity controller decision.
// It satisfies humidity.Recorder so the controllers can report through
// the bridge directly.
func (b *Bridge) WriteHumidityDecision(deviceID, mode string, observed float64) {
	msg := HumidityStateMessage{
		DeviceID:         deviceID,
		Timestamp:        time.Now().UTC(),
		Enabled:          true,
		Mode:             mode,
		ObservedHumidity: &observed,
	}
	if b.humidity != nil {
		if status, ok := b.humidity.Status(deviceID); ok {
			msg.Enabled = status.Enabled
			msg.Target = status.Target
		}
	}

	b.publishHumidityState(msg)
}

// handleHumidityCommand processes one humidity controller switch or
// target update.
func (b *Bridge) handleHumidityCommand(topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromHumidityCommandTopic(topic)
	if deviceID == "" {
		b.logger.Warn("humidity command on unexpected topic", "topic", topic)
		return nil
	}

	var cmd HumidityCommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("unparseable humidity command", "topic", topic, "error", err)
		return nil
	}
	if cmd.Enabled == nil && cmd.Target == nil {
		b.logger.Warn("humidity command requests nothing", "topic", topic)
		return nil
	}

	b.ctxMu.RLock()
	parent := b.ctx
	b.ctxMu.RUnlock()

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	if cmd.Enabled != nil {
		if err := b.humidity.SetEnabled(ctx, deviceID, *cmd.Enabled); err != nil {
			b.logger.Warn("humidity switch update failed", "device_id", deviceID, "error", err)
			return nil
		}
	}
	if cmd.Target != nil {
		if err := b.humidity.SetTarget(ctx, deviceID, *cmd.Target); err != nil {
			b.logger.Warn("humidity target update failed", "device_id", deviceID, "error", err)
			return nil
		}
	}

	// Confirm the new state on the retained topic.
	if status, ok := b.humidity.Status(deviceID); ok {
		b.publishHumidityState(HumidityStateMessage{
			DeviceID:  deviceID,
			Timestamp: time.Now().UTC(),
			Enabled:   status.Enabled,
			Target:    status.Target,
			Mode:      string(status.LastMode),
		})
	}
	return nil
}

// publishHumidityState publishes one retained humidity control state.
func (b *Bridge) publishHumidityState(msg HumidityStateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshaling humidity state", "device_id", msg.DeviceID, "error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.HumidityState(msg.DeviceID), payload, b.qos, true); err != nil {
		b.logger.Warn("publishing humidity state", "device_id", msg.DeviceID, "error", err)
	}
}

// handleCommand processes one inbound command message.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromCommandTopic(topic)
	if deviceID == "" {
		b.logger.Warn("command on unexpected topic", "topic", topic)
		return nil
	}

	var cmd device.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		// Without a parsed command ID there is nothing to correlate an
		// ack against, so the error only goes to the log.
		b.logger.Warn("unparseable command payload", "topic", topic, "error", err)
		return nil
	}

	// The topic is authoritative for the target device.
	cmd.DeviceID = deviceID
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	b.ctxMu.RLock()
	parent := b.ctx
	b.ctxMu.RUnlock()

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	if err := b.commander.Apply(ctx, &cmd); err != nil {
		b.publishAckError(&cmd, err)
		return nil
	}

	b.publishAck(newAck(&cmd))
	return nil
}

// publishAckError classifies a command failure and publishes the ack.
func (b *Bridge) publishAckError(cmd *device.Command, err error) {
	code := ErrCodeBridgeError
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		code = ErrCodeUnknownDevice
	case errors.Is(err, coordinator.ErrDeviceBusy):
		code = ErrCodeDeviceBusy
	case errors.Is(err, transport.ErrUnreachable):
		code = ErrCodeDeviceUnreachable
	case errors.Is(err, device.ErrInvalidCommand),
		errors.Is(err, device.ErrInvalidMode),
		errors.Is(err, device.ErrInvalidSpeed),
		errors.Is(err, device.ErrUnsupportedOperation):
		code = ErrCodeInvalidCommand
	}

	b.logger.Warn("command failed",
		"device_id", cmd.DeviceID,
		"command_id", cmd.ID,
		"code", code,
		"error", err,
	)

	b.publishAck(newAckError(cmd, code, err.Error()))
}

// publishAck publishes one acknowledgement. Acks are never retained.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshaling ack", "command_id", ack.CommandID, "error", err)
		return
	}

	if err := b.mqtt.Publish(b.topics.DeviceAck(ack.DeviceID), payload, b.qos, false); err != nil {
		b.logger.Warn("publishing ack", "command_id", ack.CommandID, "error", err)
	}
}
