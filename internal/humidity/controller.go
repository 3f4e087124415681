package humidity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sink dispatches mode-change commands. Satisfied by *coordinator.Coordinator.
type Sink interface {
	Apply(ctx context.Context, cmd *device.Command) error
}

// Recorder records controller decisions for dashboards. Satisfied by
// *influxdb.Client; nil disables recording.
type Recorder interface {
	WriteHumidityDecision(deviceID, mode string, observed float64)
}

// observation is the latest humidity value from one linked sensor.
type observation struct {
	humidity  float64
	at        time.Time
	available bool
}

// Controller drives automatic humidity control for one ventilation device.
//
// It watches the linked humidity sensors and switches the device between
// a high and a low ventilation mode around a dead-band:
//
//	            lower                upper
//	--------------|---------------------|--------------→ %RH
//	   low mode       no action zone        high mode
//
// where upper = target + upper_hysteresis and lower = target -
// lower_hysteresis, both capped into the valid 1-99 range so a target
// near the edge can never produce an unreachable threshold. When several
// sensors are linked, the highest fresh reading drives control; stale or
// unavailable sensors are ignored, and no action is taken when every
// sensor is stale.
//
// A cooldown separates consecutive automatic mode changes so the unit
// does not flap when humidity hovers around a threshold.
//
// Thread Safety:
//   - Observe is safe for concurrent use.
type Controller struct {
	cfg   config.HumidityControlConfig
	sink  Sink
	store StateStore

	logger   Logger
	recorder Recorder

	// staleAfter bounds how old a sensor observation may be.
	staleAfter time.Duration

	// now is the clock, replaceable in tests.
	now func() time.Time

	mu           sync.Mutex
	enabled      bool
	target       int
	observations map[string]observation
	currentMode  device.VentilationMode
	lastMode     device.VentilationMode
	lastChangeAt time.Time
}

// Status is a point-in-time view of one controller for display surfaces.
type Status struct {
	DeviceID     string
	Enabled      bool
	Target       int
	LastMode     device.VentilationMode
	LastChangeAt time.Time
}

// NewController creates a humidity controller from one validated config
// entry. Controllers start with automatic control off; SetEnabled turns
// it on, and Restore brings back a persisted switch position. Pass a
// nil store to skip persistence (tests).
func NewController(cfg config.HumidityControlConfig, sink Sink, store StateStore, staleAfter time.Duration) *Controller {
	return &Controller{
		cfg:          cfg,
		sink:         sink,
		store:        store,
		logger:       noopLogger{},
		staleAfter:   staleAfter,
		now:          time.Now,
		target:       cfg.Target,
		observations: make(map[string]observation),
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// SetRecorder enables decision recording.
func (c *Controller) SetRecorder(recorder Recorder) {
	c.recorder = recorder
}

// DeviceID returns the controlled device.
func (c *Controller) DeviceID() string {
	return c.cfg.DeviceID
}

// Sensors returns the linked sensor IDs.
func (c *Controller) Sensors() []string {
	return c.cfg.Sensors
}

// Restore loads the persisted switch position and last action so both
// survive restarts.
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	state, err := c.store.Load(ctx, c.cfg.DeviceID)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	c.mu.Lock()
	c.enabled = state.Enabled
	c.lastMode = state.LastMode
	c.lastChangeAt = state.LastChangeAt
	c.mu.Unlock()

	c.logger.Debug("humidity control state restored",
		"device_id", c.cfg.DeviceID,
		"enabled", state.Enabled,
		"last_mode", state.LastMode,
		"last_change_at", state.LastChangeAt,
	)
	return nil
}

// SetEnabled flips the control switch. Disabling stops evaluation
// immediately but keeps the last action, so the cooldown still applies
// if control is re-enabled. Enabling evaluates right away against the
// latest observations.
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	if c.enabled == enabled {
		c.mu.Unlock()
		return nil
	}
	c.enabled = enabled
	c.mu.Unlock()

	c.logger.Info("humidity control switched",
		"device_id", c.cfg.DeviceID,
		"enabled", enabled,
	)

	if err := c.persist(ctx); err != nil {
		return err
	}

	if enabled {
		c.evaluate(ctx)
	}
	return nil
}

// SetTarget updates the target relative humidity at runtime and
// re-evaluates against the new dead-band.
func (c *Controller) SetTarget(ctx context.Context, target int) error {
	if target < config.MinHumidityPercent || target > config.MaxHumidityPercent {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}

	c.mu.Lock()
	c.target = target
	c.mu.Unlock()

	c.logger.Info("humidity control target changed",
		"device_id", c.cfg.DeviceID,
		"target", target,
	)

	c.evaluate(ctx)
	return nil
}

// Status returns a snapshot of the controller's switch, target, and
// last action.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		DeviceID:     c.cfg.DeviceID,
		Enabled:      c.enabled,
		Target:       c.target,
		LastMode:     c.lastMode,
		LastChangeAt: c.lastChangeAt,
	}
}

// persist writes the current control state through the store.
func (c *Controller) persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	state := &ControlState{
		DeviceID:     c.cfg.DeviceID,
		Enabled:      c.enabled,
		LastMode:     c.lastMode,
		LastChangeAt: c.lastChangeAt,
	}
	c.mu.Unlock()

	return c.store.Save(ctx, state)
}

// Observe feeds one sensor update into the controller and evaluates.
// Updates for sensors not linked to this controller are ignored.
func (c *Controller) Observe(ctx context.Context, sensorID string, relHumidity *float64, available bool, at time.Time) {
	if !c.watches(sensorID) {
		return
	}

	c.mu.Lock()
	if relHumidity != nil {
		c.observations[sensorID] = observation{
			humidity:  *relHumidity,
			at:        at,
			available: available,
		}
	} else if obs, ok := c.observations[sensorID]; ok {
		obs.available = available
		c.observations[sensorID] = obs
	}
	c.mu.Unlock()

	c.evaluate(ctx)
}

// ObserveMode records the ventilation mode currently applied on the
// controlled device, as seen by polling. Modes of other devices are
// ignored.
func (c *Controller) ObserveMode(deviceID string, mode device.VentilationMode) {
	if deviceID != c.cfg.DeviceID {
		return
	}
	c.mu.Lock()
	c.currentMode = mode
	c.mu.Unlock()
}

// watches reports whether a sensor is linked to this controller.
func (c *Controller) watches(sensorID string) bool {
	for _, s := range c.cfg.Sensors {
		if s == sensorID {
			return true
		}
	}
	return false
}

// thresholds returns the dead-band edges, capped into the valid range.
// Callers must hold c.mu.
func (c *Controller) thresholds() (lower, upper int) {
	upper = c.target + c.cfg.UpperHysteresis
	if upper > config.MaxHumidityPercent {
		upper = config.MaxHumidityPercent
	}
	lower = c.target - c.cfg.LowerHysteresis
	if lower < config.MinHumidityPercent {
		lower = config.MinHumidityPercent
	}
	return lower, upper
}

// maxFreshHumidity returns the highest fresh reading across linked
// sensors. ok is false when every sensor is stale or unavailable.
func (c *Controller) maxFreshHumidity() (maxRH float64, ok bool) {
	cutoff := c.now().Add(-c.staleAfter)

	for _, obs := range c.observations {
		if !obs.available || obs.at.Before(cutoff) {
			continue
		}
		if !ok || obs.humidity > maxRH {
			maxRH = obs.humidity
			ok = true
		}
	}
	return maxRH, ok
}

// evaluate runs one control decision against the latest observations.
func (c *Controller) evaluate(ctx context.Context) {
	c.mu.Lock()

	if !c.enabled {
		c.mu.Unlock()
		return
	}

	observed, ok := c.maxFreshHumidity()
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("humidity control skipped, no fresh sensor data",
			"device_id", c.cfg.DeviceID)
		return
	}

	lower, upper := c.thresholds()

	var target device.VentilationMode
	switch {
	case observed > float64(upper):
		target = device.VentilationMode(c.cfg.HighMode)
	case observed < float64(lower):
		target = device.VentilationMode(c.cfg.LowMode)
	default:
		// Inside the dead-band, boundary values included: leave the
		// device alone.
		c.mu.Unlock()
		return
	}

	// The polled device mode wins over our own record, so a mode the
	// user already selected manually is not re-sent.
	applied := c.currentMode
	if applied == "" {
		applied = c.lastMode
	}
	if target == applied {
		c.mu.Unlock()
		return
	}

	now := c.now()
	if !c.lastChangeAt.IsZero() && now.Sub(c.lastChangeAt) < c.cfg.GetCooldown() {
		c.mu.Unlock()
		c.logger.Debug("humidity control in cooldown",
			"device_id", c.cfg.DeviceID,
			"wanted_mode", target,
			"remaining", c.cfg.GetCooldown()-now.Sub(c.lastChangeAt),
		)
		return
	}
	c.mu.Unlock()

	c.act(ctx, target, observed, now)
}

// act dispatches the mode change and persists the new state.
func (c *Controller) act(ctx context.Context, mode device.VentilationMode, observed float64, now time.Time) {
	cmd := &device.Command{
		ID:        uuid.NewString(),
		DeviceID:  c.cfg.DeviceID,
		Mode:      &mode,
		Timestamp: now,
	}

	if err := c.sink.Apply(ctx, cmd); err != nil {
		c.logger.Warn("humidity control mode change failed",
			"device_id", c.cfg.DeviceID,
			"mode", mode,
			"error", err,
		)
		return
	}

	c.mu.Lock()
	c.currentMode = mode
	c.lastMode = mode
	c.lastChangeAt = now
	c.mu.Unlock()

	c.logger.Info("humidity control changed mode",
		"device_id", c.cfg.DeviceID,
		"mode", mode,
		"observed_humidity", observed,
	)

	if c.recorder != nil {
		c.recorder.WriteHumidityDecision(c.cfg.DeviceID, string(mode), observed)
	}

	if err := c.persist(ctx); err != nil {
		c.logger.Warn("persisting humidity control state", "device_id", c.cfg.DeviceID, "error", err)
	}
}
