// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/camproxy/internal/media"
	"github.com/ManuGH/camproxy/internal/relay"
)

const (
	DefaultPort       = "3000"
	DefaultLogService = "camproxy"
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr: ":" + DefaultPort,
		LogLevel:   "info",
		LogService: DefaultLogService,
		Relay: RelayConfig{
			AttemptTimeout:     relay.DefaultAttemptTimeout,
			StrategyOrder:      "basic,digest,url",
			ForbiddenFallback:  relay.ForbiddenFallbackFirst.String(),
			UserAgent:          relay.DefaultUserAgent,
			MaxBodyBytes:       relay.DefaultMaxBodyBytes,
			MaxConcurrent:      64,
			DefaultContentType: media.DefaultContentType,
		},
		Server: ServerConfig{
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// A full cascade may take three attempt timeouts.
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxHeaderBytes:  1 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 120,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
