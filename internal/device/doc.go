// Package device defines the device model for Alnor Core.
//
// A Device is a catalogue entry: identity, product type, and addressing.
// Live telemetry (Reading) and requested changes (Command) are value
// types passed between the transports, the coordinator, and the MQTT
// bridge; they are never persisted in the catalogue.
//
// # Components
//
//   - Device, Reading, Command: core data types
//   - Repository: persistence interface (SQLite implementation included)
//   - Registry: cached, thread-safe catalogue access on top of a Repository
//
// The Registry returns deep copies everywhere. Callers can mutate what
// they get back without corrupting the cache.
package device
