package transport

import (
	"context"

	"github.com/alnorlabs/alnor-core/internal/device"
)

// Transport is one path to a ventilation device. The coordinator drives
// both implementations (cloud and Modbus-TCP) through this interface and
// never cares which one produced a reading.
type Transport interface {
	// Kind identifies the transport for logging and reading attribution.
	Kind() device.Transport

	// Poll fetches the current telemetry of one device.
	// Implementations must honour ctx cancellation and their configured
	// per-call timeout.
	Poll(ctx context.Context, dev *device.Device) (*device.Reading, error)

	// Apply writes a validated command to one device.
	// Implementations may assume ValidateCommand has already passed.
	Apply(ctx context.Context, dev *device.Device, cmd *device.Command) error
}

// Logger is the minimal logging interface transports accept.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
