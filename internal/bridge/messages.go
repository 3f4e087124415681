package bridge

import (
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
)

// MQTT message types for the Alnor entity surface.

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was executed against the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is published to alnor/ack/{device_id} after every command.
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the Alnor device identifier.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgement status.
	Status AckStatus `json:"status"`

	// Transport is the transport the command was applied over, when known.
	Transport string `json:"transport,omitempty"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "DEVICE_UNREACHABLE", "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeDeviceBusy        = "DEVICE_BUSY"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// newAck builds a successful acknowledgement for a command.
func newAck(cmd *device.Command) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
	}
}

// newAckError builds a failed acknowledgement for a command.
func newAckError(cmd *device.Command, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckFailed,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// HumidityStateMessage is published retained to alnor/humidity/{device_id}/state
// whenever the humidity controller changes the device mode or its
// switch/target is updated.
type HumidityStateMessage struct {
	// DeviceID is the controlled ventilation device.
	DeviceID string `json:"device_id"`

	// Timestamp is when the state was published (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Enabled is the automatic control switch position.
	Enabled bool `json:"enabled"`

	// Target is the target relative humidity in percent.
	Target int `json:"target,omitempty"`

	// Mode is the last ventilation mode the controller applied, empty
	// before the first automatic change.
	Mode string `json:"mode,omitempty"`

	// ObservedHumidity is the reading that drove the last decision.
	// Absent on switch/target updates.
	ObservedHumidity *float64 `json:"observed_humidity,omitempty"`
}

// HumidityCommandMessage switches automatic humidity control or updates
// the target. Received on alnor/humidity/{device_id}/set.
type HumidityCommandMessage struct {
	// Enabled flips the control switch when present.
	Enabled *bool `json:"enabled,omitempty"`

	// Target sets a new target relative humidity when present.
	Target *int `json:"target,omitempty"`
}
