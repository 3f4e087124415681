package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alnorlabs/alnor-core/internal/coordinator"
	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/humidity"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/mqtt"
)

// publication records one Publish call.
type publication struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT captures publishes and subscription handlers.
type mockMQTT struct {
	mu           sync.Mutex
	publications []publication
	handlers     map[string]mqtt.MessageHandler
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publications = append(m.publications, publication{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) handler(t *testing.T, pattern string) mqtt.MessageHandler {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[pattern]
	if !ok {
		t.Fatalf("no subscription for %q", pattern)
	}
	return h
}

func (m *mockMQTT) IsConnected() bool { return true }

func (m *mockMQTT) published(topic string) []publication {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publication
	for _, p := range m.publications {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// mockCommander records applied commands and returns a scripted error.
type mockCommander struct {
	mu       sync.Mutex
	commands []*device.Command
	err      error
}

func (m *mockCommander) Apply(_ context.Context, cmd *device.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func testSnapshot(available bool, humidity float64) coordinator.Snapshot {
	return coordinator.Snapshot{
		Reading: &device.Reading{
			DeviceID:  "hru-1",
			Transport: device.TransportModbus,
			Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Mode:      device.ModeHome,
			Power:     true,
			Speed:     60,
			Humidity:  &humidity,
		},
		Available: available,
		UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOnSnapshotPublishesStateAndAvailability(t *testing.T) {
	client := &mockMQTT{}
	b := New(client, &mockCommander{}, 1)

	b.OnSnapshot(device.Device{ID: "hru-1"}, testSnapshot(true, 52))

	states := client.published("alnor/state/hru-1")
	if len(states) != 1 {
		t.Fatalf("state publishes = %d, want 1", len(states))
	}
	if !states[0].retained {
		t.Error("state must be retained")
	}

	var reading device.Reading
	if err := json.Unmarshal(states[0].payload, &reading); err != nil {
		t.Fatalf("state payload is not valid JSON: %v", err)
	}
	if reading.Mode != device.ModeHome || reading.Speed != 60 {
		t.Errorf("reading = %+v, want home/60", reading)
	}

	avail := client.published("alnor/availability/hru-1")
	if len(avail) != 1 || string(avail[0].payload) != "online" || !avail[0].retained {
		t.Fatalf("availability = %+v, want one retained online", avail)
	}
}

func TestOnSnapshotDeduplicatesUnchangedState(t *testing.T) {
	client := &mockMQTT{}
	b := New(client, &mockCommander{}, 1)
	dev := device.Device{ID: "hru-1"}

	b.OnSnapshot(dev, testSnapshot(true, 52))
	b.OnSnapshot(dev, testSnapshot(true, 52))

	if n := len(client.published("alnor/state/hru-1")); n != 1 {
		t.Errorf("state publishes = %d, want 1 for unchanged reading", n)
	}
	if n := len(client.published("alnor/availability/hru-1")); n != 1 {
		t.Errorf("availability publishes = %d, want 1 for unchanged flag", n)
	}
}

func TestOnSnapshotAvailabilityFlip(t *testing.T) {
	client := &mockMQTT{}
	b := New(client, &mockCommander{}, 1)
	dev := device.Device{ID: "hru-1"}

	b.OnSnapshot(dev, testSnapshot(true, 52))
	b.OnSnapshot(dev, testSnapshot(false, 52))

	avail := client.published("alnor/availability/hru-1")
	if len(avail) != 2 {
		t.Fatalf("availability publishes = %d, want 2", len(avail))
	}
	if string(avail[1].payload) != "offline" {
		t.Errorf("second availability = %q, want offline", avail[1].payload)
	}
}

func TestCommandDispatchAndAck(t *testing.T) {
	client := &mockMQTT{}
	commander := &mockCommander{}
	b := New(client, commander, 1)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	payload := []byte(`{"mode": "home_plus", "speed_tier": "high"}`)
	if err := client.handler(t, "alnor/command/+")("alnor/command/hru-1", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(commander.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(commander.commands))
	}
	cmd := commander.commands[0]
	if cmd.DeviceID != "hru-1" {
		t.Errorf("device = %q, want hru-1 from topic", cmd.DeviceID)
	}
	if cmd.ID == "" {
		t.Error("missing command ID must be generated")
	}
	if cmd.Mode == nil || *cmd.Mode != device.ModeHomePlus {
		t.Errorf("mode = %v, want home_plus", cmd.Mode)
	}

	acks := client.published("alnor/ack/hru-1")
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	if acks[0].retained {
		t.Error("acks must not be retained")
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
		t.Fatalf("ack payload is not valid JSON: %v", err)
	}
	if ack.Status != AckAccepted || ack.CommandID != cmd.ID {
		t.Errorf("ack = %+v, want accepted for %s", ack, cmd.ID)
	}
}

func TestCommandFailureAckCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"busy", fmt.Errorf("hru-1: %w", coordinator.ErrDeviceBusy), ErrCodeDeviceBusy},
		{"unknown device", device.ErrDeviceNotFound, ErrCodeUnknownDevice},
		{"invalid mode", device.ErrInvalidMode, ErrCodeInvalidCommand},
		{"other", fmt.Errorf("boom"), ErrCodeBridgeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockMQTT{}
			b := New(client, &mockCommander{err: tt.err}, 1)
			if err := b.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			if err := client.handler(t, "alnor/command/+")("alnor/command/hru-1", []byte(`{"mode": "home"}`)); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			acks := client.published("alnor/ack/hru-1")
			if len(acks) != 1 {
				t.Fatalf("acks = %d, want 1", len(acks))
			}
			var ack AckMessage
			if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
				t.Fatalf("ack payload is not valid JSON: %v", err)
			}
			if ack.Status != AckFailed {
				t.Errorf("status = %s, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", ack.Error, tt.code)
			}
		})
	}
}

func TestMalformedCommandIsLoggedNotAcked(t *testing.T) {
	client := &mockMQTT{}
	commander := &mockCommander{}
	b := New(client, commander, 1)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := client.handler(t, "alnor/command/+")("alnor/command/hru-1", []byte(`{not json`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(commander.commands) != 0 {
		t.Error("malformed command must not reach the coordinator")
	}
	if n := len(client.published("alnor/ack/hru-1")); n != 0 {
		t.Errorf("acks = %d, want 0 without a command ID to correlate", n)
	}
}

// mockHumidityControl records switch and target updates.
type mockHumidityControl struct {
	mu      sync.Mutex
	enabled bool
	target  int
	known   string
}

func (m *mockHumidityControl) SetEnabled(_ context.Context, deviceID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if deviceID != m.known {
		return humidity.ErrNotConfigured
	}
	m.enabled = enabled
	return nil
}

func (m *mockHumidityControl) SetTarget(_ context.Context, deviceID string, target int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if deviceID != m.known {
		return humidity.ErrNotConfigured
	}
	m.target = target
	return nil
}

func (m *mockHumidityControl) Status(deviceID string) (humidity.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if deviceID != m.known {
		return humidity.Status{}, false
	}
	return humidity.Status{DeviceID: deviceID, Enabled: m.enabled, Target: m.target}, true
}

func TestWriteHumidityDecision(t *testing.T) {
	client := &mockMQTT{}
	b := New(client, &mockCommander{}, 1)
	b.SetHumidityControl(&mockHumidityControl{known: "hru-1", enabled: true, target: 60})

	b.WriteHumidityDecision("hru-1", "home_plus", 71.5)

	pubs := client.published("alnor/humidity/hru-1/state")
	if len(pubs) != 1 || !pubs[0].retained {
		t.Fatalf("humidity publishes = %+v, want one retained", pubs)
	}
	var msg HumidityStateMessage
	if err := json.Unmarshal(pubs[0].payload, &msg); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if msg.Mode != "home_plus" || msg.ObservedHumidity == nil || *msg.ObservedHumidity != 71.5 {
		t.Errorf("message = %+v", msg)
	}
	if !msg.Enabled || msg.Target != 60 {
		t.Errorf("message = %+v, want enabled with target 60", msg)
	}
}

func TestHumidityCommandUpdatesControl(t *testing.T) {
	client := &mockMQTT{}
	hc := &mockHumidityControl{known: "hru-1", enabled: true, target: 60}
	b := New(client, &mockCommander{}, 1)
	b.SetHumidityControl(hc)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler := client.handler(t, "alnor/humidity/+/set")
	if err := handler("alnor/humidity/hru-1/set", []byte(`{"enabled": false, "target": 55}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if hc.enabled || hc.target != 55 {
		t.Errorf("control = enabled %v target %d, want disabled with target 55", hc.enabled, hc.target)
	}

	// The updated state is confirmed on the retained topic.
	pubs := client.published("alnor/humidity/hru-1/state")
	if len(pubs) != 1 || !pubs[0].retained {
		t.Fatalf("humidity state publishes = %+v, want one retained", pubs)
	}
	var msg HumidityStateMessage
	if err := json.Unmarshal(pubs[0].payload, &msg); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if msg.Enabled || msg.Target != 55 {
		t.Errorf("state = %+v, want disabled with target 55", msg)
	}
}

func TestHumidityCommandUnknownDevice(t *testing.T) {
	client := &mockMQTT{}
	b := New(client, &mockCommander{}, 1)
	b.SetHumidityControl(&mockHumidityControl{known: "hru-1"})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler := client.handler(t, "alnor/humidity/+/set")
	if err := handler("alnor/humidity/hru-9/set", []byte(`{"enabled": true}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if n := len(client.published("alnor/humidity/hru-9/state")); n != 0 {
		t.Errorf("state publishes = %d, want 0 for unknown device", n)
	}
}
