// Package transport implements the two paths to Alnor ventilation devices.
//
// # Transports
//
//   - CloudClient: vendor cloud REST API with bearer-token auth. Also the
//     source of device discovery. Higher latency, works from anywhere.
//   - ModbusClient: Modbus-TCP directly to the unit on the local network.
//     Lower latency, no internet dependency, only for devices with a
//     known local IP.
//
// Both satisfy the Transport interface; the coordinator decides per
// device and per cycle which one to use and falls back from local to
// cloud on repeated failures.
//
// # Error classification
//
// The coordinator's health tracking depends on the sentinel wrapped into
// each error: ErrUnreachable feeds the consecutive-failure counter that
// demotes a device to the cloud path, while ErrAuthFailed and
// ErrProtocol surface immediately without affecting transport selection.
package transport
