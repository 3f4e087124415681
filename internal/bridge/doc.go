// Package bridge translates between the polling coordinator and the
// MQTT entity surface.
//
// Outbound, it listens to coordinator snapshot changes and maintains the
// retained state and availability topics per device, plus a retained
// topic with the humidity controller's last decision. Inbound, it
// subscribes to the per-device command topics, dispatches parsed
// commands through the coordinator, and answers every command with an
// acknowledgement carrying a machine-readable error code on failure.
package bridge
