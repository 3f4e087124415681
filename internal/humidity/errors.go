package humidity

import "errors"

// Domain errors for the humidity package.
var (
	// ErrNotConfigured is returned when no controller exists for a device.
	ErrNotConfigured = errors.New("humidity: no controller configured for device")

	// ErrInvalidTarget is returned when a target is outside the 1-99 range.
	ErrInvalidTarget = errors.New("humidity: target outside valid range")
)
