// Package influxdb provides optional time-series persistence for Alnor Core.
//
// Every successful poll can be recorded as a ventilation measurement,
// tagged with the transport that produced it, and every humidity
// controller action as a humidity_control measurement. The feature is
// off by default; when disabled, Connect returns ErrDisabled and the
// coordinator simply skips history writes.
//
// Writes are batched and asynchronous. A lost InfluxDB connection never
// blocks polling or command handling.
package influxdb
