package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestValidateRejectsBadVolume(t *testing.T) {
	cfg := Default()
	cfg.Audio.DefaultVolumePercent = 101
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range volume")
	}
}

func TestValidateRejectsZeroPreloadBytes(t *testing.T) {
	cfg := Default()
	cfg.Audio.PreloadBytes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero preload bytes")
	}
}

func TestEnsureCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first call")
	}
	if cfg.Audio.PreloadBytes != defaultPreloadBytes {
		t.Fatalf("preload bytes = %d, want %d", cfg.Audio.PreloadBytes, defaultPreloadBytes)
	}

	cfg2, created2, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure (second call): %v", err)
	}
	if created2 {
		t.Fatal("expected created=false on second call")
	}
	if cfg2.Window.Title != cfg.Window.Title || cfg2.Audio.PreloadBytes != cfg.Audio.PreloadBytes {
		t.Fatalf("loaded config %+v differs from created config %+v", cfg2, cfg)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Window.Title = ""
	if err := Save(path, cfg); err == nil {
		t.Fatal("expected error saving invalid config")
	}
}
