// Package config reads the fabric backend's configuration: the fixed set of
// environment variables spec.md §6 specifies, plus an optional YAML overlay
// for the operational knobs the spec leaves as "implementations should
// expose" improvements (§4.A, §9) rather than part of the external
// contract.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envHost = "LAIK_FABRIC_HOST"
	envPort = "LAIK_FABRIC_PORT"
	envSync = "LAIK_FABRIC_SYNC"
	envSize = "LAIK_SIZE"

	defaultHost = "localhost"
	defaultPort = 7777
)

// Config is the resolved configuration for one backend instance.
type Config struct {
	// HomeHost is the bootstrap master's host or IP (LAIK_FABRIC_HOST).
	HomeHost string
	// HomePort is the bootstrap TCP port (LAIK_FABRIC_PORT).
	HomePort int
	// WorldSize is the number of participating processes (LAIK_SIZE).
	WorldSize int
	// Async enables the lower-to-async planner transform (§4.D). Disabled
	// by a non-zero LAIK_FABRIC_SYNC.
	Async bool

	// Overlay holds knobs not named by spec.md §6's env var contract.
	Overlay Overlay
}

// Overlay holds operational parameters with no env var contract: the
// completion-ring depth ceiling, the retry backoff bounds for transient
// "try again" fabric errors, and the bootstrap accept timeout spec.md §4.A
// calls out as a desirable (but unspecified) improvement.
type Overlay struct {
	// RingDepth bounds the executor's credit ring (open question #2 in
	// DESIGN.md). Defaults to 8, the original's hard-coded constant.
	RingDepth int `yaml:"ring_depth"`
	// RetryInitialInterval, RetryMaxInterval and RetryMaxElapsed bound the
	// backoff applied to transient fabric errors (spec.md §9 "pluggable
	// backoff" note).
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	RetryMaxElapsed      time.Duration `yaml:"retry_max_elapsed"`
	// AcceptTimeout bounds how long the bootstrap master waits for each
	// peer connection (spec.md §4.A "Implementations should expose a
	// bounded accept timeout as an improvement"). Zero means no bound,
	// matching the spec's default unspecified/hang behavior.
	AcceptTimeout time.Duration `yaml:"accept_timeout"`
}

// DefaultOverlay returns the overlay defaults used when no YAML file is
// supplied.
func DefaultOverlay() Overlay {
	return Overlay{
		RingDepth:            8,
		RetryInitialInterval: 50 * time.Microsecond,
		RetryMaxInterval:     50 * time.Millisecond,
		RetryMaxElapsed:      5 * time.Second,
		AcceptTimeout:        0,
	}
}

// FromEnv resolves a Config from the process environment, applying spec.md
// §6's defaults for anything unset or invalid.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HomeHost:  defaultHost,
		HomePort:  defaultPort,
		WorldSize: 1,
		Async:     true,
		Overlay:   DefaultOverlay(),
	}

	if v := os.Getenv(envHost); v != "" {
		cfg.HomeHost = v
	}

	if v := os.Getenv(envPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port == 0 {
			port = defaultPort
		}
		cfg.HomePort = port
	}

	if v := os.Getenv(envSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size == 0 {
			size = 1
		}
		cfg.WorldSize = size
	}

	if v := os.Getenv(envSync); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n != 0 {
			cfg.Async = false
		}
	}

	return cfg, nil
}

// LoadOverlay reads operational knobs from a YAML file, starting from
// DefaultOverlay() so a partial file only overrides what it names —
// mirroring coordinator.LoadConfig's "start with defaults, unmarshal on
// top" shape.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overlay config: %w", err)
	}

	overlay := DefaultOverlay()
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse overlay config: %w", err)
	}

	return &overlay, nil
}
