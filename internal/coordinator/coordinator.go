package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
	"github.com/alnorlabs/alnor-core/internal/transport"
)

// Logger defines the logging interface used by the Coordinator.
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

// Discoverer lists the devices registered to the cloud account.
// Satisfied by *transport.CloudClient.
type Discoverer interface {
	Discover(ctx context.Context) ([]device.Device, error)
}

// History records successful polls for dashboards. Satisfied by
// *influxdb.Client; a nil History disables recording.
type History interface {
	WriteVentilationReading(deviceID, transport string, fields map[string]interface{})
}

// Snapshot is the last known state of one device.
//
// A device that misses a poll keeps its last reading but flips
// Available to false, so consumers can show stale values greyed out
// instead of dropping them.
type Snapshot struct {
	Reading   *device.Reading
	Available bool
	UpdatedAt time.Time
}

// Listener receives every snapshot change: new readings and
// availability flips.
type Listener func(dev device.Device, snap Snapshot)

// cadence selects which scheduling tick a device belongs to.
type cadence int

const (
	cadenceLocal cadence = iota
	cadenceCloud
)

// commandLock serialises writes to one device.
type commandLock struct {
	mu sync.Mutex
}

// Coordinator owns all device polling and command dispatch.
//
// Devices with a local address are polled over Modbus-TCP on the local
// cadence; cloud-only and demoted devices are polled through the vendor
// cloud on the slower cloud cadence. Repeated local failures demote a
// device to the cloud path; the local path is re-probed periodically
// and wins back the device on first success.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Commands are serialised per device; polls never block commands
//     for other devices.
type Coordinator struct {
	registry *device.Registry
	local    transport.Transport
	cloud    transport.Transport
	cfg      config.PollingConfig
	logger   Logger
	history  History

	health *healthTracker

	// localIPs are installer-supplied overrides applied during catalogue sync.
	localIPs map[string]string

	snapshots map[string]*Snapshot
	snapMu    sync.RWMutex

	cmdLocks map[string]*commandLock
	lockMu   sync.Mutex

	listeners  []Listener
	listenerMu sync.RWMutex
}

// New creates a Coordinator.
//
// Parameters:
//   - registry: device catalogue
//   - local: Modbus-TCP transport
//   - cloud: cloud transport
//   - cfg: polling cadence and fallback thresholds
func New(registry *device.Registry, local, cloud transport.Transport, cfg config.PollingConfig) *Coordinator {
	return &Coordinator{
		registry:  registry,
		local:     local,
		cloud:     cloud,
		cfg:       cfg,
		logger:    noopLogger{},
		health:    newHealthTracker(cfg.FailureThreshold, cfg.LocalRetryCycles),
		localIPs:  make(map[string]string),
		snapshots: make(map[string]*Snapshot),
		cmdLocks:  make(map[string]*commandLock),
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetHistory enables time-series recording of successful polls.
func (c *Coordinator) SetHistory(history History) {
	c.history = history
}

// SetLocalIPOverrides installs per-device local address overrides from
// installer configuration. Applied during SyncCatalog.
func (c *Coordinator) SetLocalIPOverrides(overrides map[string]string) {
	c.localIPs = overrides
}

// AddListener registers a snapshot listener. Listeners are invoked
// synchronously from poll goroutines and must not block.
func (c *Coordinator) AddListener(l Listener) {
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenerMu.Unlock()
}

// SyncCatalog pulls the device list from cloud discovery, applies local
// IP overrides, and upserts everything into the catalogue.
// Called on startup before polling begins.
func (c *Coordinator) SyncCatalog(ctx context.Context, disc Discoverer) error {
	devices, err := disc.Discover(ctx)
	if err != nil {
		return fmt.Errorf("syncing catalogue: %w", err)
	}

	for i := range devices {
		d := &devices[i]
		if ip, ok := c.localIPs[d.ID]; ok {
			d.LocalIP = ip
		}
		if err := c.registry.Upsert(ctx, d); err != nil {
			return fmt.Errorf("syncing catalogue: %w", err)
		}
	}

	if err := c.registry.RefreshCache(ctx); err != nil {
		return err
	}

	c.logger.Info("device catalogue synced", "count", len(devices))
	return nil
}

// Run drives the polling loop until ctx is cancelled.
//
// Both cadences fire an immediate first cycle so consumers see state
// right after startup rather than after one full interval.
func (c *Coordinator) Run(ctx context.Context) error {
	localInterval := time.Duration(c.cfg.LocalInterval) * time.Second
	cloudInterval := time.Duration(c.cfg.CloudInterval) * time.Second

	localTicker := time.NewTicker(localInterval)
	defer localTicker.Stop()
	cloudTicker := time.NewTicker(cloudInterval)
	defer cloudTicker.Stop()

	c.logger.Info("coordinator started",
		"local_interval", localInterval,
		"cloud_interval", cloudInterval,
		"failure_threshold", c.cfg.FailureThreshold,
	)

	c.pollCycle(ctx, cadenceLocal)
	c.pollCycle(ctx, cadenceCloud)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopped")
			return ctx.Err()
		case <-localTicker.C:
			c.pollCycle(ctx, cadenceLocal)
		case <-cloudTicker.C:
			c.pollCycle(ctx, cadenceCloud)
		}
	}
}

// pollCycle polls every device that belongs to the given cadence.
// Devices are polled concurrently; the cycle waits for all of them.
func (c *Coordinator) pollCycle(ctx context.Context, cad cadence) {
	devices, err := c.registry.List(ctx)
	if err != nil {
		c.logger.Error("listing devices for poll cycle", "error", err)
		return
	}

	var wg sync.WaitGroup
	for i := range devices {
		dev := devices[i]
		if c.deviceCadence(&dev) != cad {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.pollDevice(ctx, &dev, cad)
		}()
	}
	wg.Wait()
}

// deviceCadence returns the cadence a device is currently served on.
func (c *Coordinator) deviceCadence(dev *device.Device) cadence {
	if dev.HasLocalTransport() && !c.health.isDemoted(dev.ID) {
		return cadenceLocal
	}
	return cadenceCloud
}

// pollDevice polls one device on its cadence, handling fallback,
// demotion, and local retry.
func (c *Coordinator) pollDevice(ctx context.Context, dev *device.Device, cad cadence) {
	if cad == cadenceLocal {
		c.pollLocalWithFallback(ctx, dev)
		return
	}

	// Cloud cadence. Demoted devices periodically re-probe the local path.
	if dev.HasLocalTransport() && c.health.shouldRetryLocal(dev.ID) {
		reading, err := c.local.Poll(ctx, dev)
		if err == nil {
			c.health.recordLocalSuccess(dev.ID)
			c.logger.Info("device promoted back to local transport", "device_id", dev.ID)
			c.store(ctx, dev, reading)
			return
		}
		c.health.recordLocalFailure(dev.ID)
		c.logger.Debug("local retry failed, staying on cloud", "device_id", dev.ID, "error", err)
	}

	c.pollCloud(ctx, dev)
}

// pollLocalWithFallback polls via Modbus-TCP, counting every failure
// towards demotion. The cycle that crosses the threshold polls the
// cloud immediately so the device does not wait a full cloud interval
// for fresh state.
func (c *Coordinator) pollLocalWithFallback(ctx context.Context, dev *device.Device) {
	reading, err := c.local.Poll(ctx, dev)
	if err == nil {
		c.health.recordLocalSuccess(dev.ID)
		c.store(ctx, dev, reading)
		return
	}

	// Protocol errors count too: a local endpoint answering garbage is
	// as unusable as a dead one, and the cloud can still serve the device.
	demoted := c.health.recordLocalFailure(dev.ID)

	if errors.Is(err, transport.ErrUnreachable) {
		c.logger.Info("local poll failed",
			"device_id", dev.ID,
			"consecutive_failures", c.health.localFailureCount(dev.ID),
			"error", err,
		)
	} else {
		c.logger.Error("local poll error",
			"device_id", dev.ID,
			"consecutive_failures", c.health.localFailureCount(dev.ID),
			"error", err,
		)
	}

	if demoted {
		c.logger.Warn("device demoted to cloud transport",
			"device_id", dev.ID,
			"failure_threshold", c.cfg.FailureThreshold,
		)
		c.pollCloud(ctx, dev)
		return
	}

	c.markMissed(dev)
}

// pollCloud polls via the cloud transport.
func (c *Coordinator) pollCloud(ctx context.Context, dev *device.Device) {
	reading, err := c.cloud.Poll(ctx, dev)
	if err != nil {
		c.logger.Warn("cloud poll failed", "device_id", dev.ID, "error", err)
		c.markMissed(dev)
		return
	}
	c.store(ctx, dev, reading)
}

// store records a successful reading and notifies listeners.
func (c *Coordinator) store(ctx context.Context, dev *device.Device, reading *device.Reading) {
	now := time.Now()

	snap := Snapshot{
		Reading:   reading,
		Available: true,
		UpdatedAt: now,
	}

	c.snapMu.Lock()
	c.snapshots[dev.ID] = &snap
	c.snapMu.Unlock()

	if err := c.registry.MarkSeen(ctx, dev.ID, now); err != nil {
		c.logger.Debug("recording last seen", "device_id", dev.ID, "error", err)
	}

	if c.history != nil {
		c.history.WriteVentilationReading(dev.ID, string(reading.Transport), historyFields(reading))
	}

	c.notify(*dev, snap)
}

// markMissed flips a device to unavailable after a missed poll, keeping
// the last reading for consumers that want to show stale values.
func (c *Coordinator) markMissed(dev *device.Device) {
	c.snapMu.Lock()
	snap, ok := c.snapshots[dev.ID]
	if !ok {
		snap = &Snapshot{}
		c.snapshots[dev.ID] = snap
	}
	wasAvailable := snap.Available
	snap.Available = false
	copied := *snap
	c.snapMu.Unlock()

	if wasAvailable || !ok {
		c.notify(*dev, copied)
	}
}

// notify fans a snapshot out to all listeners.
func (c *Coordinator) notify(dev device.Device, snap Snapshot) {
	c.listenerMu.RLock()
	listeners := c.listeners
	c.listenerMu.RUnlock()

	for _, l := range listeners {
		l(dev, snap)
	}
}

// Snapshot returns the last known state of one device.
// The boolean is false if the device has never been polled.
func (c *Coordinator) Snapshot(deviceID string) (Snapshot, bool) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()

	snap, ok := c.snapshots[deviceID]
	if !ok {
		return Snapshot{}, false
	}
	out := *snap
	if snap.Reading != nil {
		out.Reading = snap.Reading.DeepCopy()
	}
	return out, true
}

// Snapshots returns the last known state of every polled device.
func (c *Coordinator) Snapshots() map[string]Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()

	out := make(map[string]Snapshot, len(c.snapshots))
	for id, snap := range c.snapshots {
		s := *snap
		if snap.Reading != nil {
			s.Reading = snap.Reading.DeepCopy()
		}
		out[id] = s
	}
	return out
}

// Apply validates and dispatches a command to one device.
//
// Commands are serialised per device; a second command for the same
// device while one is in flight returns ErrDeviceBusy. Selecting a mode
// other than standby implies powering the unit on (and standby implies
// off) unless the command sets power explicitly.
//
// Writes always go to the device's current transport and fail loudly:
// unlike polls, a failed write never redirects to the other transport,
// since a silent substitution could target stale state. The failure
// still counts towards the demotion threshold so subsequent polls react.
// A successful write is followed by an immediate refresh poll so
// consumers see the effect without waiting for the next cycle.
func (c *Coordinator) Apply(ctx context.Context, cmd *device.Command) error {
	if err := device.ValidateCommand(cmd); err != nil {
		return err
	}

	dev, err := c.registry.Get(ctx, cmd.DeviceID)
	if err != nil {
		return err
	}

	if err := device.ValidateCommandFor(dev, cmd); err != nil {
		return err
	}

	lock := c.commandLock(dev.ID)
	if !lock.mu.TryLock() {
		return fmt.Errorf("%w: %s", ErrDeviceBusy, dev.ID)
	}
	defer lock.mu.Unlock()

	// Preset power side effect.
	if cmd.Mode != nil && cmd.Power == nil {
		p := cmd.Mode.PowersOn()
		cmd.Power = &p
	}

	tr := c.transportFor(dev)
	applyErr := tr.Apply(ctx, dev, cmd)

	if applyErr != nil {
		if tr.Kind() == device.TransportModbus && errors.Is(applyErr, transport.ErrUnreachable) {
			c.health.recordLocalFailure(dev.ID)
		}
		return fmt.Errorf("applying command %s: %w", cmd.ID, applyErr)
	}

	c.logger.Info("command applied",
		"device_id", dev.ID,
		"command_id", cmd.ID,
		"transport", tr.Kind(),
	)

	// Refresh so the new state is visible immediately.
	if reading, err := tr.Poll(ctx, dev); err == nil {
		c.store(ctx, dev, reading)
	} else {
		c.logger.Debug("post-command refresh failed", "device_id", dev.ID, "error", err)
	}

	return nil
}

// transportFor picks the transport currently serving a device.
func (c *Coordinator) transportFor(dev *device.Device) transport.Transport {
	if dev.HasLocalTransport() && !c.health.isDemoted(dev.ID) {
		return c.local
	}
	return c.cloud
}

// commandLock returns the write lock for one device, creating it on
// first use.
func (c *Coordinator) commandLock(deviceID string) *commandLock {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()

	if l, ok := c.cmdLocks[deviceID]; ok {
		return l
	}
	l := &commandLock{}
	c.cmdLocks[deviceID] = l
	return l
}

// historyFields flattens a reading into InfluxDB fields.
func historyFields(r *device.Reading) map[string]interface{} {
	fields := map[string]interface{}{
		"speed": r.Speed,
		"power": r.Power,
	}
	addFloat := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}
	addInt := func(name string, v *int) {
		if v != nil {
			fields[name] = *v
		}
	}

	addFloat("indoor_temp", r.IndoorTemp)
	addFloat("outdoor_temp", r.OutdoorTemp)
	addFloat("supply_temp", r.SupplyTemp)
	addFloat("exhaust_temp", r.ExhaustTemp)
	addFloat("humidity", r.Humidity)
	addInt("preheater_demand", r.PreheaterDemand)
	addInt("bypass_position", r.BypassPosition)
	addInt("supply_fan_speed", r.SupplyFanSpeed)
	addInt("exhaust_fan_speed", r.ExhaustFanSpeed)
	addInt("filter_days_remaining", r.FilterDaysRemaining)
	addInt("fault_code", r.FaultCode)

	return fields
}
