package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseArgsAppliesDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" || cfg.Headless || cfg.DefaultBPM != 120 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseArgsRejectsInvalidLogLevel(t *testing.T) {
	_, err := ParseArgs([]string{"-log-level=verbose"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized log level")
	}
}

func TestParseArgsRejectsNonPositiveBPM(t *testing.T) {
	_, err := ParseArgs([]string{"-bpm=0"})
	if err == nil {
		t.Fatal("expected an error for a non-positive BPM")
	}
}

func TestParseArgsHonorsFlags(t *testing.T) {
	cfg, err := ParseArgs([]string{"-headless", "-bpm=90", "-log-level=debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Headless || cfg.DefaultBPM != 90 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config from explicit flags: %+v", cfg)
	}
}

func TestNewStoreSeedsDefaultsWhenFileAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Current() != DefaultRuntimeConfig() {
		t.Fatalf("expected default config when no file exists, got %+v", store.Current())
	}
}

func TestSaveThenReloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc := store.Current()
	rc.SwingPercent = 67
	rc.MIDIInputChannel = 3
	store.current = rc

	if err := store.Save(); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("unexpected error reloading: %v", err)
	}
	if reloaded.Current().SwingPercent != 67 || reloaded.Current().MIDIInputChannel != 3 {
		t.Fatalf("expected reloaded config to match saved values, got %+v", reloaded.Current())
	}
}

func TestReloadFailsOnMissingFile(t *testing.T) {
	store := &Store{path: filepath.Join(t.TempDir(), "missing.json")}
	if err := store.Reload(); err == nil {
		t.Fatal("expected an error reloading a missing file")
	}
}

func TestReloadFailsOnMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}
	store := &Store{path: path}
	if err := store.Reload(); err == nil {
		t.Fatal("expected an error reloading malformed JSON")
	}
}
