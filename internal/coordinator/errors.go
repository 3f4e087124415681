package coordinator

import "errors"

// Domain errors for the coordinator package.
var (
	// ErrDeviceBusy is returned when a command arrives while another
	// command for the same device is still in flight and waiting is
	// not requested.
	ErrDeviceBusy = errors.New("coordinator: command already in flight")
)
