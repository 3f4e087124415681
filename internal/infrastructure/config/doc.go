// Package config loads and validates Alnor Core configuration.
//
// Configuration is sourced, in order of precedence:
//  1. Hardcoded defaults
//  2. A YAML file (typically configs/config.yaml)
//  3. ALNOR_* environment variables (credentials, paths)
//
// The package also owns configuration-time validation of humidity control
// entries: an entry with no linked sensors, an out-of-range target, or
// identical high/low modes is rejected at load time so the humidity
// controller only ever sees well-formed configuration.
package config
