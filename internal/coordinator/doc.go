// Package coordinator schedules all device polling and command dispatch
// for Alnor Core.
//
// # Transport selection
//
// Devices with a known local IP are polled over Modbus-TCP every
// local_interval seconds. Devices without one, and devices whose local
// path has failed failure_threshold times in a row, are polled through
// the vendor cloud every cloud_interval seconds. The cycle that crosses
// the failure threshold polls the cloud immediately, so a freshly
// demoted device never waits a full cloud interval. Demoted devices
// re-probe the local path every local_retry_cycles cloud cycles and
// promote back on the first success.
//
// # Snapshots
//
// The last reading of every device is cached in memory. A missed poll
// marks the device unavailable but keeps the stale reading, letting the
// MQTT bridge publish values greyed-out instead of dropping them.
//
// # Commands
//
// Apply serialises writes per device and rejects a second in-flight
// command with ErrDeviceBusy. Mode selection carries the power side
// effect (standby off, everything else on), and every successful write
// triggers an immediate refresh poll.
package coordinator
