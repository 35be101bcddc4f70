// Package config provides centralized configuration for radial.
// All default values are defined here to keep a single source of truth.
package config

import "time"

// Environment and file naming.
const (
	// EnvPrefix namespaces environment overrides, e.g. RADIAL_STORE_BACKEND.
	EnvPrefix = "RADIAL"
	// ConfigName is the config file base name looked up inside .radial/.
	ConfigName = "config"
)

// Store defaults
const (
	DefaultBackend     = "sqlite"
	DefaultLockTimeout = 5 * time.Second
)

// Log defaults
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// FileDefaults is written to .radial/config.yaml by `rd init`.
func FileDefaults() map[string]any {
	return map[string]any{
		"store": map[string]any{
			"backend":      DefaultBackend,
			"lock_timeout": DefaultLockTimeout.String(),
		},
		"log": map[string]any{
			"level":  DefaultLogLevel,
			"format": DefaultLogFormat,
		},
	}
}
