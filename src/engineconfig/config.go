// Package engineconfig holds the in-memory configuration structures for the
// engine: pool bounds, observability toggles, logging, and the wire-level
// protocol-level constants. Loading configuration from files, flags, or
// environment variables is out of scope; only the struct and its defaults
// live here.
package engineconfig

import (
	"fmt"
	"time"

	"github.com/gristlabs/gristmux/src/enginelog"
	"github.com/gristlabs/gristmux/src/engineobs"
	"gopkg.in/yaml.v3"
)

// Config holds every configuration knob of the engine.
type Config struct {
	// Pool holds connection pool configuration.
	Pool *PoolConfig
	// Observability holds telemetry configuration.
	Observability *engineobs.Config
	// Logging holds logging configuration.
	Logging *enginelog.Config
	// Wire holds wire-protocol level constants.
	Wire *WireConfig
}

// PoolConfig provides connection pool configuration options.
type PoolConfig struct {
	// MaxConnections bounds the number of store handles the pool will ever
	// hold: a production pool needs an upper limit. Default: 100.
	MaxConnections int

	// AcquisitionTimeout bounds how long acquire() may block before
	// failing with ErrPoolExhausted. Zero means fail immediately.
	AcquisitionTimeout time.Duration
}

// WireConfig holds the wire-protocol level constants.
type WireConfig struct {
	// MaxSmallActionRowIDs is the threshold above which a broadcast action
	// is stripped of its row data.
	MaxSmallActionRowIDs int

	// HighWaterMark is the local send-buffer threshold (bytes) above which
	// a transport without a native drain signal should report backpressure.
	HighWaterMark int

	// BufferTimeout bounds how long a simulated drain wait may take.
	BufferTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults, matching the
// spec's documented constants.
func DefaultConfig() *Config {
	return &Config{
		Pool: &PoolConfig{
			MaxConnections:     100,
			AcquisitionTimeout: 30 * time.Second,
		},
		Observability: engineobs.DefaultConfig(),
		Logging:       enginelog.DefaultConfig(),
		Wire: &WireConfig{
			MaxSmallActionRowIDs: 100,
			HighWaterMark:        512 * 1024,
			BufferTimeout:        250 * time.Millisecond,
		},
	}
}

// Example renders a documented default configuration as YAML, for operators
// who want a starting point to adapt (not loaded back in by this package).
func (c *Config) Example() (string, error) {
	doc := struct {
		Pool struct {
			MaxConnections     int           `yaml:"maxConnections"`
			AcquisitionTimeout time.Duration `yaml:"acquisitionTimeout"`
		} `yaml:"pool"`
		Wire struct {
			MaxSmallActionRowIDs int           `yaml:"maxSmallActionRowIds"`
			HighWaterMark        int           `yaml:"highWaterMark"`
			BufferTimeout        time.Duration `yaml:"bufferTimeout"`
		} `yaml:"wire"`
	}{}
	doc.Pool.MaxConnections = c.Pool.MaxConnections
	doc.Pool.AcquisitionTimeout = c.Pool.AcquisitionTimeout
	doc.Wire.MaxSmallActionRowIDs = c.Wire.MaxSmallActionRowIDs
	doc.Wire.HighWaterMark = c.Wire.HighWaterMark
	doc.Wire.BufferTimeout = c.Wire.BufferTimeout

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render example config: %w", err)
	}
	return string(out), nil
}
