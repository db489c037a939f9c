// Package config handles command-line flags and the persisted /config.json
// runtime configuration.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Config holds flags parsed at process start.
type Config struct {
	LogLevel     string
	Headless     bool
	DefaultBPM   float64
	ConfigPath   string
	ShowHelp     bool
}

// ParseArgs parses command-line flags; positional arguments are not used.
// HEADLESS turns headless mode on when -headless is not given, and
// LOG_LEVEL, when set, overrides -log-level. With -help, usage is printed
// to the flag set's output.
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("drumfw", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Headless, "headless", false, "run without display/audio sinks attached")
	fs.Float64Var(&cfg.DefaultBPM, "bpm", 120, "initial internal-clock tempo")
	fs.StringVar(&cfg.ConfigPath, "config", "/config.json", "path to the persisted runtime configuration")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "print usage and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}

	if !cfg.Headless {
		if v := os.Getenv("HEADLESS"); v != "" {
			cfg.Headless = v == "1" || strings.EqualFold(v, "true")
		}
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.DefaultBPM <= 0 {
		return nil, fmt.Errorf("bpm must be positive, got %v", cfg.DefaultBPM)
	}

	return cfg, nil
}

// RuntimeConfig is the persisted configuration reloaded after a successful
// sample transfer.
type RuntimeConfig struct {
	DefaultStepVelocity byte   `json:"default_step_velocity"`
	SwingPercent        byte   `json:"swing_percent"`
	SwingDelaysOdd      bool   `json:"swing_delays_odd_steps"`
	MIDIInputChannel    uint8  `json:"midi_input_channel"`
	IgnoreMIDINoteOff   bool   `json:"ignore_midi_note_off"`
	SysExManufacturerID [3]byte `json:"sysex_manufacturer_id"`
	SysExDeviceID       byte   `json:"sysex_device_id"`
}

// DefaultRuntimeConfig mirrors the firmware's compiled-in defaults, used when
// /config.json has not yet been written.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		DefaultStepVelocity: 100,
		SwingPercent:        50,
		SwingDelaysOdd:      true,
		MIDIInputChannel:    0,
		IgnoreMIDINoteOff:   false,
	}
}

// Store owns the current RuntimeConfig and knows how to reload it from disk.
// The transfer subsystem calls Reload after committing a sample so the new
// defaults (if any travelled with it) take effect without a restart.
type Store struct {
	path    string
	current RuntimeConfig
}

// NewStore loads path if present, otherwise seeds defaults.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, current: DefaultRuntimeConfig()}
	if _, err := os.Stat(path); err == nil {
		if err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Reload re-reads the configuration file from disk.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("config: reload %s: %w", s.path, err)
	}
	var rc RuntimeConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	s.current = rc
	return nil
}

// Current returns the presently loaded configuration.
func (s *Store) Current() RuntimeConfig {
	return s.current
}

// Save persists the current configuration.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
