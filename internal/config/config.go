// Package config loads broker configuration from the environment
// using env.Parse with an optional .env file via godotenv.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all broker configuration.
//
// Tags: env is the environment variable name, envDefault its fallback
// value.
type Config struct {
	// Transport
	WSAddr         string `env:"ALDRIN_WS_ADDR" envDefault:":7200"`
	NATSURL        string `env:"ALDRIN_NATS_URL" envDefault:""` // empty disables the NATS transport
	NATSSubject    string `env:"ALDRIN_NATS_CONNECT_SUBJECT" envDefault:"aldrin.connect"`
	ProtocolMajor  uint32 `env:"ALDRIN_PROTOCOL_MAJOR" envDefault:"1"`
	ProtocolMinor  uint32 `env:"ALDRIN_PROTOCOL_MINOR" envDefault:"17"`

	// Resource limits (from container)
	CPULimit    float64 `env:"ALDRIN_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"ALDRIN_MEMORY_LIMIT" envDefault:"536870912"` // 512MB

	// Capacity
	MaxConnections int `env:"ALDRIN_MAX_CONNECTIONS" envDefault:"2000"`

	// Rate limiting
	MaxControlMessagesPerSec int `env:"ALDRIN_MAX_CONTROL_MSGS_PER_SEC" envDefault:"2000"`
	MaxBusEventsPerSec       int `env:"ALDRIN_MAX_BUS_EVENTS_PER_SEC" envDefault:"200"`
	MaxGoroutines            int `env:"ALDRIN_MAX_GOROUTINES" envDefault:"4000"`

	// Connect-rate limiting, ahead of the capacity/CPU/memory admission
	// checks: bounds how fast new connections may be accepted, per
	// remote address and bus-wide.
	ConnectRateLimitPerAddr float64       `env:"ALDRIN_CONNECT_RATE_PER_ADDR" envDefault:"1.0"`
	ConnectBurstPerAddr     int           `env:"ALDRIN_CONNECT_BURST_PER_ADDR" envDefault:"10"`
	ConnectAddrTTL          time.Duration `env:"ALDRIN_CONNECT_ADDR_TTL" envDefault:"5m"`
	ConnectRateLimitGlobal  float64       `env:"ALDRIN_CONNECT_RATE_GLOBAL" envDefault:"50.0"`
	ConnectBurstGlobal      int           `env:"ALDRIN_CONNECT_BURST_GLOBAL" envDefault:"300"`

	// CPU safety thresholds, relative to container CPU allocation (see
	// internal/platform.CPUMonitor).
	CPURejectThreshold float64 `env:"ALDRIN_CPU_REJECT_THRESHOLD" envDefault:"75.0"`
	CPUPauseThreshold  float64 `env:"ALDRIN_CPU_PAUSE_THRESHOLD" envDefault:"80.0"`

	// Monitoring
	MetricsAddr     string        `env:"ALDRIN_METRICS_ADDR" envDefault:":7201"`
	MetricsInterval time.Duration `env:"ALDRIN_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// LoadConfig reads configuration from a .env file (optional) and
// environment variables (env vars take priority).
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.WSAddr == "" && c.NATSURL == "" {
		return fmt.Errorf("at least one transport must be configured (ALDRIN_WS_ADDR or ALDRIN_NATS_URL)")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("ALDRIN_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("ALDRIN_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < 0 || c.CPUPauseThreshold > 100 {
		return fmt.Errorf("ALDRIN_CPU_PAUSE_THRESHOLD must be 0-100, got %.1f", c.CPUPauseThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("ALDRIN_CPU_PAUSE_THRESHOLD (%.1f) must be >= ALDRIN_CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// Print logs configuration for debugging in a human-readable format.
func (c *Config) Print() {
	fmt.Println("=== Broker Configuration ===")
	fmt.Printf("Environment:     %s\n", c.Environment)
	fmt.Printf("WS Address:      %s\n", c.WSAddr)
	fmt.Printf("NATS URL:        %s\n", c.NATSURL)
	fmt.Printf("Protocol:        %d.%d\n", c.ProtocolMajor, c.ProtocolMinor)
	fmt.Println("\n=== Resource Limits ===")
	fmt.Printf("CPU Limit:       %.1f cores\n", c.CPULimit)
	fmt.Printf("Memory Limit:    %d MB\n", c.MemoryLimit/(1024*1024))
	fmt.Printf("Max Connections: %d\n", c.MaxConnections)
	fmt.Println("\n=== Rate Limits ===")
	fmt.Printf("Control msgs:    %d/sec\n", c.MaxControlMessagesPerSec)
	fmt.Printf("Bus events:      %d/sec\n", c.MaxBusEventsPerSec)
	fmt.Printf("Max Goroutines:  %d\n", c.MaxGoroutines)
	fmt.Println("\n=== Safety Thresholds ===")
	fmt.Printf("CPU Reject:      %.1f%%\n", c.CPURejectThreshold)
	fmt.Printf("CPU Pause:       %.1f%%\n", c.CPUPauseThreshold)
	fmt.Println("============================")
}

// LogConfig logs configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("ws_addr", c.WSAddr).
		Str("nats_url", c.NATSURL).
		Uint32("protocol_major", c.ProtocolMajor).
		Uint32("protocol_minor", c.ProtocolMinor).
		Float64("cpu_limit", c.CPULimit).
		Int64("memory_limit_mb", c.MemoryLimit/(1024*1024)).
		Int("max_connections", c.MaxConnections).
		Int("max_control_msgs_per_sec", c.MaxControlMessagesPerSec).
		Int("max_bus_events_per_sec", c.MaxBusEventsPerSec).
		Int("max_goroutines", c.MaxGoroutines).
		Float64("connect_rate_per_addr", c.ConnectRateLimitPerAddr).
		Int("connect_burst_per_addr", c.ConnectBurstPerAddr).
		Float64("connect_rate_global", c.ConnectRateLimitGlobal).
		Int("connect_burst_global", c.ConnectBurstGlobal).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Float64("cpu_pause_threshold", c.CPUPauseThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("broker configuration loaded")
}
