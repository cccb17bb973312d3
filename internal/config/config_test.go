package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_RequiresPin(t *testing.T) {
	path := writeTempConfig(t, "pulse:\n  frequency_hz: 100\n")
	_, err := Load(path)
	requireErrEq(t, err, "pulse.pin is required")
}

func TestLoad_RequiresPositiveFrequency(t *testing.T) {
	path := writeTempConfig(t, "pulse:\n  pin: GPIO18\n")
	_, err := Load(path)
	requireErrEq(t, err, "pulse.frequency_hz must be > 0")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "pulse:\n  pin: GPIO18\n  frequency_hz: 1000\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Pulse.DutyCycle != 0.5 {
		t.Fatalf("duty_cycle=%v want 0.5", cfg.Pulse.DutyCycle)
	}
	if cfg.Pulse.Bursts != 0 {
		t.Fatalf("bursts=%d want 0 (continuous)", cfg.Pulse.Bursts)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, `pulse:
  pin: "12"
  frequency_hz: 440
  duty_cycle: 25
  bursts: 100
  duration: 5s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Pulse.Pin != "12" {
		t.Fatalf("pin=%q want 12", cfg.Pulse.Pin)
	}
	if cfg.Pulse.FrequencyHz != 440 {
		t.Fatalf("frequency_hz=%v want 440", cfg.Pulse.FrequencyHz)
	}
	if cfg.Pulse.DutyCycle != 25 {
		t.Fatalf("duty_cycle=%v want 25 (normalized later by the engine)", cfg.Pulse.DutyCycle)
	}
	if cfg.Pulse.Bursts != 100 {
		t.Fatalf("bursts=%d want 100", cfg.Pulse.Bursts)
	}
	if cfg.Pulse.Duration != 5*time.Second {
		t.Fatalf("duration=%v want 5s", cfg.Pulse.Duration)
	}
}

func TestLoad_RejectsNegativeBursts(t *testing.T) {
	path := writeTempConfig(t, "pulse:\n  pin: GPIO18\n  frequency_hz: 100\n  bursts: -1\n")
	_, err := Load(path)
	requireErrEq(t, err, "pulse.bursts must be >= 0")
}
