package device

import (
	"fmt"
	"net"
)

// Validate checks a Device for catalogue consistency.
// It is called before any repository write.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if !d.ProductType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidProductType, d.ProductType)
	}
	if d.LocalIP != "" && net.ParseIP(d.LocalIP) == nil {
		return fmt.Errorf("%w: local_ip %q is not a valid IP address", ErrInvalidDevice, d.LocalIP)
	}
	return nil
}

// ValidateCommand checks a Command before it is handed to a transport.
//
// A command must request at least one action. Mode and speed values are
// range-checked here so transports only ever see writable values.
func ValidateCommand(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if cmd.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidCommand)
	}
	if !cmd.HasAction() {
		return fmt.Errorf("%w: no action requested", ErrInvalidCommand)
	}
	if cmd.Mode != nil && !cmd.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, *cmd.Mode)
	}
	if cmd.Speed != nil && (*cmd.Speed < 0 || *cmd.Speed > 100) {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, *cmd.Speed)
	}
	if cmd.SpeedTier != nil && !cmd.SpeedTier.IsValid() {
		return fmt.Errorf("%w: unknown speed tier %q", ErrInvalidSpeed, *cmd.SpeedTier)
	}
	if cmd.Speed != nil && cmd.SpeedTier != nil {
		return fmt.Errorf("%w: speed and speed_tier are mutually exclusive", ErrInvalidCommand)
	}
	return nil
}

// ValidateCommandFor checks a command against the capabilities of the
// target device's product type. ValidateCommand must have passed first.
func ValidateCommandFor(dev *Device, cmd *Command) error {
	if !dev.ProductType.Controllable() {
		return fmt.Errorf("%w: %s devices are read-only", ErrUnsupportedOperation, dev.ProductType)
	}
	if cmd.Mode != nil && !dev.ProductType.SupportsModes() {
		return fmt.Errorf("%w: %s devices have no preset modes", ErrUnsupportedOperation, dev.ProductType)
	}
	if cmd.ResetFilter && !dev.ProductType.SupportsFilterReset() {
		return fmt.Errorf("%w: %s devices have no filter counter", ErrUnsupportedOperation, dev.ProductType)
	}
	return nil
}
