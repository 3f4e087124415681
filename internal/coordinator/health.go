package coordinator

import "sync"

// healthState tracks transport health for one device.
//
// A device with a local address starts on the Modbus path. Consecutive
// unreachable errors demote it to the cloud path once they hit the
// configured threshold; while demoted, the local path is re-probed every
// localRetryCycles cloud cycles and the device promotes back on the
// first success.
type healthState struct {
	// localFailures counts consecutive local poll failures.
	localFailures int

	// demoted is true while the device is served by the cloud path
	// despite having a local address.
	demoted bool

	// cloudCycles counts polls since demotion, for local retry pacing.
	cloudCycles int
}

// healthTracker holds per-device health state behind one mutex.
// Poll cycles touch it once per device, contention is negligible.
type healthTracker struct {
	mu               sync.Mutex
	states           map[string]*healthState
	failureThreshold int
	localRetryCycles int
}

func newHealthTracker(failureThreshold, localRetryCycles int) *healthTracker {
	return &healthTracker{
		states:           make(map[string]*healthState),
		failureThreshold: failureThreshold,
		localRetryCycles: localRetryCycles,
	}
}

func (t *healthTracker) state(deviceID string) *healthState {
	if s, ok := t.states[deviceID]; ok {
		return s
	}
	s := &healthState{}
	t.states[deviceID] = s
	return s
}

// recordLocalSuccess resets failure tracking and promotes the device
// back to the local path. Returns true if the device was demoted.
func (t *healthTracker) recordLocalSuccess(deviceID string) (promoted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(deviceID)
	promoted = s.demoted
	s.localFailures = 0
	s.demoted = false
	s.cloudCycles = 0
	return promoted
}

// recordLocalFailure counts one unreachable local poll. Returns true if
// this failure crossed the threshold and demoted the device.
func (t *healthTracker) recordLocalFailure(deviceID string) (demoted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(deviceID)
	if s.demoted {
		// Failed local retry while demoted: restart the retry pacing.
		s.cloudCycles = 0
		return false
	}

	s.localFailures++
	if s.localFailures >= t.failureThreshold {
		s.demoted = true
		s.cloudCycles = 0
		return true
	}
	return false
}

// isDemoted reports whether the device is currently on the cloud path.
func (t *healthTracker) isDemoted(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(deviceID).demoted
}

// shouldRetryLocal counts one cloud cycle for a demoted device and
// reports whether this cycle should re-probe the local path.
func (t *healthTracker) shouldRetryLocal(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(deviceID)
	if !s.demoted {
		return false
	}
	s.cloudCycles++
	return s.cloudCycles >= t.localRetryCycles
}

// localFailureCount returns the current consecutive failure count.
func (t *healthTracker) localFailureCount(deviceID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state(deviceID).localFailures
}
