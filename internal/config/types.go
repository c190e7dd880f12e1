// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the effective runtime configuration after defaults, file and
// environment have been merged.
type AppConfig struct {
	Version    string
	ListenAddr string
	LogLevel   string
	LogService string

	Relay     RelayConfig
	Server    ServerConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// RelayConfig controls outbound device retrieval.
type RelayConfig struct {
	AttemptTimeout     time.Duration
	StrategyOrder      string
	ForbiddenFallback  string
	UserAgent          string
	MaxBodyBytes       int64
	InsecureSkipVerify bool
	MaxConcurrent      int
	OutboundRPS        float64
	DefaultContentType string

	// Target allowlist; all empty means any http(s) target is accepted.
	AllowedHosts []string
	AllowedCIDRs []string
	AllowedPorts []int
}

// ServerConfig holds inbound HTTP server timeouts.
type ServerConfig struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// FileConfig mirrors the YAML file. Pointer fields distinguish "unset" from
// an explicit zero value.
type FileConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
	LogLevel   string `yaml:"log_level,omitempty"`
	LogService string `yaml:"log_service,omitempty"`

	Relay     RelayFileConfig     `yaml:"relay,omitempty"`
	Server    ServerFileConfig    `yaml:"server,omitempty"`
	CORS      CORSFileConfig      `yaml:"cors,omitempty"`
	RateLimit RateLimitFileConfig `yaml:"rate_limit,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type RelayFileConfig struct {
	AttemptTimeout     *time.Duration `yaml:"attempt_timeout,omitempty"`
	StrategyOrder      string         `yaml:"strategy_order,omitempty"`
	ForbiddenFallback  string         `yaml:"forbidden_fallback,omitempty"`
	UserAgent          string         `yaml:"user_agent,omitempty"`
	MaxBodyBytes       *int64         `yaml:"max_body_bytes,omitempty"`
	InsecureSkipVerify *bool          `yaml:"insecure_skip_verify,omitempty"`
	MaxConcurrent      *int           `yaml:"max_concurrent,omitempty"`
	OutboundRPS        *float64       `yaml:"outbound_rps,omitempty"`
	DefaultContentType string         `yaml:"default_content_type,omitempty"`
	AllowedHosts       []string       `yaml:"allowed_hosts,omitempty"`
	AllowedCIDRs       []string       `yaml:"allowed_cidrs,omitempty"`
	AllowedPorts       []int          `yaml:"allowed_ports,omitempty"`
}

type ServerFileConfig struct {
	ReadTimeout       *time.Duration `yaml:"read_timeout,omitempty"`
	ReadHeaderTimeout *time.Duration `yaml:"read_header_timeout,omitempty"`
	WriteTimeout      *time.Duration `yaml:"write_timeout,omitempty"`
	IdleTimeout       *time.Duration `yaml:"idle_timeout,omitempty"`
	ShutdownTimeout   *time.Duration `yaml:"shutdown_timeout,omitempty"`
	MaxHeaderBytes    *int           `yaml:"max_header_bytes,omitempty"`
}

type CORSFileConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

type RateLimitFileConfig struct {
	Enabled           *bool `yaml:"enabled,omitempty"`
	RequestsPerMinute *int  `yaml:"requests_per_minute,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"sampling_rate,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
}
