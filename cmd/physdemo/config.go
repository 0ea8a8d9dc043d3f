package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional physdemo.yaml configuration.
type Config struct {
	Heap HeapConfig `yaml:"heap"`
	Sim  SimConfig  `yaml:"sim"`
	Demo DemoConfig `yaml:"demo"`
	Log  LogConfig  `yaml:"log"`
}

// HeapConfig selects and sizes the foreign heap.
type HeapConfig struct {
	// Backend is "local" or "wasm".
	Backend          string `yaml:"backend,omitempty"`
	InitialPages     uint32 `yaml:"initial_pages,omitempty"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages,omitempty"`
}

// SimConfig configures the simulation goroutine.
type SimConfig struct {
	Step     time.Duration `yaml:"step,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
	Bodies   int           `yaml:"bodies,omitempty"`
}

// DemoConfig configures the consumer and the body churn.
type DemoConfig struct {
	Duration  time.Duration `yaml:"duration,omitempty"`
	Frame     time.Duration `yaml:"frame,omitempty"`
	DropEvery time.Duration `yaml:"drop_every,omitempty"`
	Strict    bool          `yaml:"strict,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

const (
	backendLocal = "local"
	backendWasm  = "wasm"
)

// LoadOptional reads the config file at path if present.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve fills defaults and validates.
func (c *Config) Resolve() error {
	c.Heap.Backend = strings.ToLower(strings.TrimSpace(c.Heap.Backend))
	if c.Heap.Backend == "" {
		c.Heap.Backend = backendLocal
	}
	if c.Heap.Backend != backendLocal && c.Heap.Backend != backendWasm {
		return fmt.Errorf("heap.backend must be %q or %q (got %q)", backendLocal, backendWasm, c.Heap.Backend)
	}

	if c.Sim.Step <= 0 {
		c.Sim.Step = time.Second / 60
	}
	if c.Sim.Interval <= 0 {
		c.Sim.Interval = c.Sim.Step
	}
	if c.Sim.Bodies <= 0 {
		c.Sim.Bodies = 16
	}

	if c.Demo.Duration < 0 {
		return fmt.Errorf("demo.duration cannot be negative")
	}
	if c.Demo.Frame <= 0 {
		c.Demo.Frame = 16 * time.Millisecond
	}
	if c.Demo.DropEvery <= 0 {
		c.Demo.DropEvery = 250 * time.Millisecond
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}
