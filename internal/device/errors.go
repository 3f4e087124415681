package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidMode is returned when a ventilation mode is not recognised.
	ErrInvalidMode = errors.New("device: invalid ventilation mode")

	// ErrInvalidSpeed is returned when a fan speed is outside 0-100.
	ErrInvalidSpeed = errors.New("device: invalid fan speed")

	// ErrInvalidProductType is returned when a product type is not recognised.
	ErrInvalidProductType = errors.New("device: invalid product type")

	// ErrInvalidCommand is returned when a command requests no action
	// or carries conflicting fields.
	ErrInvalidCommand = errors.New("device: invalid command")

	// ErrUnsupportedOperation is returned when a command requests an
	// action the target product type does not support.
	ErrUnsupportedOperation = errors.New("device: operation not supported by product type")
)
