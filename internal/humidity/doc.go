// Package humidity implements automatic humidity control.
//
// Each configured ventilation device gets a Controller that watches its
// linked humidity sensors and switches the device between a high and a
// low ventilation mode around a dead-band derived from the target and
// the hysteresis offsets. The highest fresh sensor reading drives
// control; a cooldown between automatic changes prevents flapping, and
// the last action is persisted so the cooldown survives restarts.
//
// Controllers never poll anything themselves. The coordinator feeds
// them sensor snapshots through Manager.Observe, and they dispatch mode
// changes back through the same coordinator's Apply, which carries the
// usual preset power side effect and per-device write serialisation.
package humidity
