package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pulse PulseConfig `yaml:"pulse"`
}

type PulseConfig struct {
	// Pin is the target specifier: "GPIO<line>" or a header pin number.
	Pin string `yaml:"pin"`
	// FrequencyHz is the pulse frequency.
	FrequencyHz float64 `yaml:"frequency_hz"`
	// DutyCycle is 0..1, or a percentage in (1,100].
	DutyCycle float64 `yaml:"duty_cycle"`
	// Bursts is a finite pulse count; 0 runs continuously.
	Bursts int `yaml:"bursts"`
	// Duration bounds a continuous run; ignored when Bursts is set.
	Duration time.Duration `yaml:"duration"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Pulse.Pin == "" {
		return Config{}, fmt.Errorf("pulse.pin is required")
	}
	if cfg.Pulse.FrequencyHz <= 0 {
		return Config{}, fmt.Errorf("pulse.frequency_hz must be > 0")
	}
	if cfg.Pulse.DutyCycle == 0 {
		cfg.Pulse.DutyCycle = 0.5
	}
	if cfg.Pulse.Bursts < 0 {
		return Config{}, fmt.Errorf("pulse.bursts must be >= 0")
	}
	if cfg.Pulse.Duration < 0 {
		return Config{}, fmt.Errorf("pulse.duration must be >= 0")
	}

	return cfg, nil
}
