package transport

import "errors"

// Domain errors for the transport package.
//
// The coordinator distinguishes unreachable devices (counted towards the
// local failure threshold) from authentication and protocol errors, so
// transports must wrap the matching sentinel.
var (
	// ErrUnreachable is returned when a device cannot be contacted:
	// connection refused, timeout, or connection lost mid-call.
	ErrUnreachable = errors.New("transport: device unreachable")

	// ErrAuthFailed is returned when cloud credentials are rejected.
	ErrAuthFailed = errors.New("transport: authentication failed")

	// ErrProtocol is returned when the remote end answers with something
	// that cannot be parsed, or with an explicit protocol-level exception.
	ErrProtocol = errors.New("transport: protocol error")

	// ErrNoLocalAddress is returned when a Modbus poll is attempted on a
	// device without a local IP.
	ErrNoLocalAddress = errors.New("transport: device has no local address")

	// ErrUnsupported is returned when a command requests something this
	// transport cannot express.
	ErrUnsupported = errors.New("transport: unsupported operation")
)
