package humidity

import (
	"context"
	"fmt"
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
)

// Manager owns one Controller per configured device and fans sensor
// updates out to the controllers that watch them.
type Manager struct {
	controllers []*Controller
	logger      Logger
}

// NewManager builds controllers from validated configuration.
//
// staleAfter bounds how old a sensor observation may be before it is
// ignored; callers typically pass twice the poll interval so one missed
// poll does not silence the controller.
func NewManager(cfgs []config.HumidityControlConfig, sink Sink, store StateStore, staleAfter time.Duration) *Manager {
	m := &Manager{logger: noopLogger{}}
	for _, cfg := range cfgs {
		m.controllers = append(m.controllers, NewController(cfg, sink, store, staleAfter))
	}
	return m
}

// SetLogger sets the logger for the manager and all controllers.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
	for _, c := range m.controllers {
		c.SetLogger(logger)
	}
}

// SetRecorder enables decision recording on all controllers.
func (m *Manager) SetRecorder(recorder Recorder) {
	for _, c := range m.controllers {
		c.SetRecorder(recorder)
	}
}

// Restore loads persisted state into every controller.
func (m *Manager) Restore(ctx context.Context) error {
	for _, c := range m.controllers {
		if err := c.Restore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Observe routes one sensor update to every interested controller.
func (m *Manager) Observe(ctx context.Context, sensorID string, relHumidity *float64, available bool, at time.Time) {
	for _, c := range m.controllers {
		c.Observe(ctx, sensorID, relHumidity, available, at)
	}
}

// ObserveMode records the polled ventilation mode of a controlled device.
func (m *Manager) ObserveMode(deviceID string, mode device.VentilationMode) {
	for _, c := range m.controllers {
		c.ObserveMode(deviceID, mode)
	}
}

// SetEnabled flips the control switch for one device.
func (m *Manager) SetEnabled(ctx context.Context, deviceID string, enabled bool) error {
	c := m.controllerFor(deviceID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, deviceID)
	}
	return c.SetEnabled(ctx, enabled)
}

// SetTarget updates the target relative humidity for one device.
func (m *Manager) SetTarget(ctx context.Context, deviceID string, target int) error {
	c := m.controllerFor(deviceID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigured, deviceID)
	}
	return c.SetTarget(ctx, target)
}

// Status returns the control status for one device. ok is false when no
// controller is configured for it.
func (m *Manager) Status(deviceID string) (Status, bool) {
	c := m.controllerFor(deviceID)
	if c == nil {
		return Status{}, false
	}
	return c.Status(), true
}

func (m *Manager) controllerFor(deviceID string) *Controller {
	for _, c := range m.controllers {
		if c.DeviceID() == deviceID {
			return c
		}
	}
	return nil
}

// Controllers returns the managed controllers.
func (m *Manager) Controllers() []*Controller {
	return m.controllers
}
