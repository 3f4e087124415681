// Package database provides the SQLite persistence layer for Alnor Core.
//
// It wraps database/sql with connection setup (WAL mode, busy timeout,
// single-writer pool) and a minimal embedded-migration runner. The device
// catalog and humidity controller state are the only tables; live readings
// are never stored here, they live in the coordinator's in-memory snapshot
// and optionally in InfluxDB.
package database
