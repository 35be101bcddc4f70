/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package types

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Verbose bool        `mapstructure:"verbose"`
	JSON    bool        `mapstructure:"json"`
	Config  string      `mapstructure:"config"`
	Store   StoreConfig `mapstructure:"store" validate:"required"`
	Log     LogConfig   `mapstructure:"log" validate:"required"`
}

// StoreConfig selects and tunes the persistence backend
type StoreConfig struct {
	// Dir overrides workspace discovery when set (absolute or relative to cwd).
	Dir         string        `mapstructure:"dir" yaml:"dir,omitempty"`
	Backend     string        `mapstructure:"backend" yaml:"backend" validate:"required,oneof=sqlite jsonl"`
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout" validate:"gt=0"`
}

// LogConfig controls diagnostic logging on stderr
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
}
