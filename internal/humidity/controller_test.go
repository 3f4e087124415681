package humidity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
)

// mockSink records applied commands.
type mockSink struct {
	mu       sync.Mutex
	commands []*device.Command
	err      error
}

func (m *mockSink) Apply(_ context.Context, cmd *device.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

func (m *mockSink) last() *device.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return nil
	}
	return m.commands[len(m.commands)-1]
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu     sync.Mutex
	states map[string]*ControlState
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*ControlState)}
}

func (m *memStore) Load(_ context.Context, deviceID string) (*ControlState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[deviceID]
	if !ok {
		return nil, nil
	}
	cpy := *s
	return &cpy, nil
}

func (m *memStore) Save(_ context.Context, state *ControlState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *state
	m.states[state.DeviceID] = &cpy
	return nil
}

func testConfig() config.HumidityControlConfig {
	return config.HumidityControlConfig{
		DeviceID:        "hru-1",
		Sensors:         []string{"rh-bath", "rh-kitchen"},
		Target:          60,
		UpperHysteresis: 5,
		LowerHysteresis: 5,
		HighMode:        "home_plus",
		LowMode:         "home",
		Cooldown:        120,
	}
}

// newTestController builds an enabled controller with a fixed,
// advanceable clock. The switch is flipped directly so the store, when
// present, only sees writes made by the test itself.
func newTestController(cfg config.HumidityControlConfig, sink Sink, store StateStore) (*Controller, *time.Time) {
	c := NewController(cfg, sink, store, time.Minute)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.enabled = true
	return c, &now
}

func observe(c *Controller, sensorID string, rh float64, at time.Time) {
	c.Observe(context.Background(), sensorID, &rh, true, at)
}

func TestHighHumidityTriggersHighMode(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	observe(c, "rh-bath", 66, *now) // above the 65 upper threshold

	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1", sink.count())
	}
	cmd := sink.last()
	if cmd.Mode == nil || *cmd.Mode != device.ModeHomePlus {
		t.Errorf("mode = %v, want home_plus", cmd.Mode)
	}
	if cmd.DeviceID != "hru-1" {
		t.Errorf("device = %q, want hru-1", cmd.DeviceID)
	}
	if cmd.ID == "" {
		t.Error("command must carry an ID")
	}
}

func TestLowHumidityTriggersLowMode(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	observe(c, "rh-bath", 54, *now) // below the 55 lower threshold

	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1", sink.count())
	}
	if cmd := sink.last(); cmd.Mode == nil || *cmd.Mode != device.ModeHome {
		t.Errorf("mode = %v, want home", cmd.Mode)
	}
}

func TestDeadBandTakesNoAction(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	// The threshold values themselves are inside the dead-band.
	for _, rh := range []float64{55, 56, 60, 64, 65} {
		observe(c, "rh-bath", rh, *now)
	}

	if sink.count() != 0 {
		t.Errorf("commands = %d, want 0 inside the dead-band", sink.count())
	}
}

func TestMaxAcrossSensorsDrivesControl(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	// Kitchen is fine, bathroom is humid: the max must win.
	observe(c, "rh-kitchen", 50, *now)
	if sink.count() != 1 {
		// 50 is below the 55 lower threshold, so low mode fires first.
		t.Fatalf("commands = %d, want 1", sink.count())
	}

	*now = now.Add(3 * time.Minute) // clear cooldown
	observe(c, "rh-bath", 70, *now)

	if sink.count() != 2 {
		t.Fatalf("commands = %d, want 2", sink.count())
	}
	if cmd := sink.last(); *cmd.Mode != device.ModeHomePlus {
		t.Errorf("mode = %v, want home_plus from the max sensor", *cmd.Mode)
	}
}

func TestCooldownBlocksFlapping(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	observe(c, "rh-bath", 70, *now)
	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1", sink.count())
	}

	// One minute later humidity dropped below the lower threshold, but
	// the 2 minute cooldown still holds.
	*now = now.Add(time.Minute)
	observe(c, "rh-bath", 50, *now)
	if sink.count() != 1 {
		t.Fatalf("cooldown violated, commands = %d", sink.count())
	}

	// After the cooldown, the pending condition acts on the next update.
	*now = now.Add(90 * time.Second)
	observe(c, "rh-bath", 50, *now)
	if sink.count() != 2 {
		t.Fatalf("commands = %d, want 2 after cooldown", sink.count())
	}
	if cmd := sink.last(); *cmd.Mode != device.ModeHome {
		t.Errorf("mode = %v, want home", *cmd.Mode)
	}
}

func TestRepeatedConditionDoesNotResend(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	observe(c, "rh-bath", 70, *now)
	*now = now.Add(5 * time.Minute)
	observe(c, "rh-bath", 72, *now)

	if sink.count() != 1 {
		t.Errorf("commands = %d, want 1 (mode already high)", sink.count())
	}
}

func TestStaleSensorsAreIgnored(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	// Observation from 10 minutes ago, staleAfter is 1 minute.
	observe(c, "rh-bath", 70, now.Add(-10*time.Minute))

	if sink.count() != 0 {
		t.Errorf("commands = %d, want 0 when all sensors are stale", sink.count())
	}
}

func TestUnavailableSensorIsIgnored(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	rh := 70.0
	c.Observe(context.Background(), "rh-bath", &rh, false, *now)

	if sink.count() != 0 {
		t.Errorf("commands = %d, want 0 for unavailable sensor", sink.count())
	}
}

func TestUnrelatedSensorIsIgnored(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	observe(c, "rh-garage", 99, *now)

	if sink.count() != 0 {
		t.Errorf("commands = %d, want 0 for unlinked sensor", sink.count())
	}
}

func TestThresholdCapping(t *testing.T) {
	cfg := testConfig()
	cfg.Target = 97
	cfg.UpperHysteresis = 5
	cfg.LowerHysteresis = 99

	c, _ := newTestController(cfg, &mockSink{}, nil)

	c.mu.Lock()
	lower, upper := c.thresholds()
	c.mu.Unlock()
	if upper != config.MaxHumidityPercent {
		t.Errorf("upper = %d, want capped %d", upper, config.MaxHumidityPercent)
	}
	if lower != config.MinHumidityPercent {
		t.Errorf("lower = %d, want capped %d", lower, config.MinHumidityPercent)
	}
}

func TestFailedApplyDoesNotAdvanceState(t *testing.T) {
	sink := &mockSink{err: context.DeadlineExceeded}
	c, now := newTestController(testConfig(), sink, nil)

	observe(c, "rh-bath", 70, *now)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMode != "" || !c.lastChangeAt.IsZero() {
		t.Error("failed apply must not record a mode change")
	}
}

func TestRestoreSurvivesRestart(t *testing.T) {
	store := newMemStore()
	sink := &mockSink{}
	ctx := context.Background()

	c, now := newTestController(testConfig(), sink, store)
	observe(c, "rh-bath", 70, *now)
	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1", sink.count())
	}

	// New controller, same store: the cooldown must still hold.
	sink2 := &mockSink{}
	c2, now2 := newTestController(testConfig(), sink2, store)
	*now2 = now.Add(time.Minute)
	if err := c2.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	observe(c2, "rh-bath", 50, *now2)
	if sink2.count() != 0 {
		t.Errorf("cooldown must survive restart, commands = %d", sink2.count())
	}
}

func TestControllerStartsDisabled(t *testing.T) {
	sink := &mockSink{}
	c := NewController(testConfig(), sink, nil, time.Minute)

	rh := 80.0
	c.Observe(context.Background(), "rh-bath", &rh, true, time.Now())

	if sink.count() != 0 {
		t.Errorf("commands = %d, want 0 before the switch is turned on", sink.count())
	}
	if c.Status().Enabled {
		t.Error("Status().Enabled = true, want false for a fresh controller")
	}
}

func TestManuallyAppliedModeIsNotResent(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)

	// The device is already running the high mode, selected by hand.
	c.ObserveMode("hru-1", device.ModeHomePlus)

	observe(c, "rh-bath", 70, *now)
	if sink.count() != 0 {
		t.Fatalf("commands = %d, want 0 when the device already runs the mode", sink.count())
	}

	// Once the device leaves the mode, the crossing acts again.
	c.ObserveMode("hru-1", device.ModeHome)
	observe(c, "rh-bath", 71, *now)
	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1 after the device mode changed", sink.count())
	}

	// Modes of unrelated devices must not affect the guard.
	c.ObserveMode("hru-9", device.ModeAway)
	c.mu.Lock()
	current := c.currentMode
	c.mu.Unlock()
	if current != device.ModeHomePlus {
		t.Errorf("current mode = %q, want home_plus from the controlled device", current)
	}
}

func TestDisableStopsControl(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)
	ctx := context.Background()

	if err := c.SetEnabled(ctx, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	observe(c, "rh-bath", 80, *now)
	if sink.count() != 0 {
		t.Fatalf("commands = %d, want 0 while disabled", sink.count())
	}

	// Re-enabling evaluates immediately against the stored observations.
	if err := c.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1 after re-enable", sink.count())
	}
}

func TestSetTargetMovesDeadBand(t *testing.T) {
	sink := &mockSink{}
	c, now := newTestController(testConfig(), sink, nil)
	ctx := context.Background()

	// 62 %RH sits inside the default 55-65 dead-band.
	observe(c, "rh-bath", 62, *now)
	if sink.count() != 0 {
		t.Fatalf("commands = %d, want 0 inside the dead-band", sink.count())
	}

	// Lowering the target to 50 makes 62 cross the new upper threshold.
	if err := c.SetTarget(ctx, 50); err != nil {
		t.Fatalf("SetTarget() error = %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1 after target change", sink.count())
	}
	if cmd := sink.last(); *cmd.Mode != device.ModeHomePlus {
		t.Errorf("mode = %v, want home_plus", *cmd.Mode)
	}
}

func TestSetTargetRejectsOutOfRange(t *testing.T) {
	c, _ := newTestController(testConfig(), &mockSink{}, nil)

	for _, target := range []int{0, 100, -5} {
		if err := c.SetTarget(context.Background(), target); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("SetTarget(%d) error = %v, want ErrInvalidTarget", target, err)
		}
	}
}

func TestDisabledSwitchSurvivesRestart(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	c, _ := newTestController(testConfig(), &mockSink{}, store)
	if err := c.SetEnabled(ctx, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	sink2 := &mockSink{}
	c2, now2 := newTestController(testConfig(), sink2, store)
	if err := c2.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	observe(c2, "rh-bath", 80, *now2)
	if sink2.count() != 0 {
		t.Errorf("commands = %d, want 0 for restored disabled switch", sink2.count())
	}
	if status := c2.Status(); status.Enabled {
		t.Error("Status().Enabled = true, want false after restore")
	}
}

func TestManagerRejectsUnknownDevice(t *testing.T) {
	m := NewManager([]config.HumidityControlConfig{testConfig()}, &mockSink{}, nil, time.Minute)
	ctx := context.Background()

	if err := m.SetEnabled(ctx, "hru-99", true); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SetEnabled() error = %v, want ErrNotConfigured", err)
	}
	if err := m.SetTarget(ctx, "hru-99", 50); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SetTarget() error = %v, want ErrNotConfigured", err)
	}
	if _, ok := m.Status("hru-99"); ok {
		t.Error("Status() ok = true for unknown device")
	}
}

func TestManagerRoutesToInterestedControllers(t *testing.T) {
	sink := &mockSink{}
	cfgA := testConfig()
	cfgB := testConfig()
	cfgB.DeviceID = "hru-2"
	cfgB.Sensors = []string{"rh-cellar"}

	ctx := context.Background()
	m := NewManager([]config.HumidityControlConfig{cfgA, cfgB}, sink, nil, time.Minute)
	for _, id := range []string{"hru-1", "hru-2"} {
		if err := m.SetEnabled(ctx, id, true); err != nil {
			t.Fatalf("SetEnabled(%s) error = %v", id, err)
		}
	}

	rh := 70.0
	m.Observe(ctx, "rh-cellar", &rh, true, time.Now())

	if sink.count() != 1 {
		t.Fatalf("commands = %d, want 1", sink.count())
	}
	if cmd := sink.last(); cmd.DeviceID != "hru-2" {
		t.Errorf("command device = %q, want hru-2", cmd.DeviceID)
	}
}
