package device

import (
	"errors"
	"testing"
	"time"
)

func validDevice() *Device {
	now := time.Now()
	return &Device{
		ID:          "hru-400",
		Name:        "Attic HRU",
		ProductType: ProductHRU,
		LocalIP:     "192.168.1.50",
		FirstSeen:   now,
		LastSeen:    now,
	}
}

func TestDeviceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr error
	}{
		{name: "valid", mutate: func(*Device) {}, wantErr: nil},
		{name: "missing id", mutate: func(d *Device) { d.ID = "" }, wantErr: ErrInvalidDevice},
		{name: "missing name", mutate: func(d *Device) { d.Name = "" }, wantErr: ErrInvalidDevice},
		{name: "bad product type", mutate: func(d *Device) { d.ProductType = "toaster" }, wantErr: ErrInvalidProductType},
		{name: "bad local ip", mutate: func(d *Device) { d.LocalIP = "not-an-ip" }, wantErr: ErrInvalidDevice},
		{name: "cloud only", mutate: func(d *Device) { d.LocalIP = "" }, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDevice()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	mode := ModeHome
	badMode := VentilationMode("turbo")
	speed := 60
	badSpeed := 150
	tier := SpeedLow

	tests := []struct {
		name    string
		cmd     *Command
		wantErr error
	}{
		{name: "nil command", cmd: nil, wantErr: ErrInvalidCommand},
		{name: "missing device id", cmd: &Command{Mode: &mode}, wantErr: ErrInvalidCommand},
		{name: "no action", cmd: &Command{DeviceID: "hru-1"}, wantErr: ErrInvalidCommand},
		{name: "mode change", cmd: &Command{DeviceID: "hru-1", Mode: &mode}, wantErr: nil},
		{name: "invalid mode", cmd: &Command{DeviceID: "hru-1", Mode: &badMode}, wantErr: ErrInvalidMode},
		{name: "speed change", cmd: &Command{DeviceID: "hru-1", Speed: &speed}, wantErr: nil},
		{name: "speed out of range", cmd: &Command{DeviceID: "hru-1", Speed: &badSpeed}, wantErr: ErrInvalidSpeed},
		{name: "speed tier", cmd: &Command{DeviceID: "hru-1", SpeedTier: &tier}, wantErr: nil},
		{name: "speed and tier conflict", cmd: &Command{DeviceID: "hru-1", Speed: &speed, SpeedTier: &tier}, wantErr: ErrInvalidCommand},
		{name: "filter reset only", cmd: &Command{DeviceID: "hru-1", ResetFilter: true}, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.cmd)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCommand() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCommand() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommandFor(t *testing.T) {
	mode := ModeHome
	speed := 60
	power := true

	tests := []struct {
		name    string
		product ProductType
		cmd     *Command
		wantErr error
	}{
		{name: "hru mode", product: ProductHRU, cmd: &Command{DeviceID: "d", Mode: &mode}, wantErr: nil},
		{name: "hru filter reset", product: ProductHRU, cmd: &Command{DeviceID: "d", ResetFilter: true}, wantErr: nil},
		{name: "fan speed", product: ProductExhaustFan, cmd: &Command{DeviceID: "d", Speed: &speed}, wantErr: nil},
		{name: "fan power", product: ProductExhaustFan, cmd: &Command{DeviceID: "d", Power: &power}, wantErr: nil},
		{name: "fan mode rejected", product: ProductExhaustFan, cmd: &Command{DeviceID: "d", Mode: &mode}, wantErr: ErrUnsupportedOperation},
		{name: "fan filter reset rejected", product: ProductExhaustFan, cmd: &Command{DeviceID: "d", ResetFilter: true}, wantErr: ErrUnsupportedOperation},
		{name: "sensor read only", product: ProductSensor, cmd: &Command{DeviceID: "d", Power: &power}, wantErr: ErrUnsupportedOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := validDevice()
			dev.ProductType = tt.product
			err := ValidateCommandFor(dev, tt.cmd)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCommandFor() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCommandFor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
