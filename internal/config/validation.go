// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads camproxy configuration from defaults, a YAML file and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/camproxy/internal/media"
	"github.com/ManuGH/camproxy/internal/relay"
	"github.com/ManuGH/camproxy/internal/validate"
)

// Validate checks the merged configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("LogLevel", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}

	r := cfg.Relay
	v.DurationRange("Relay.AttemptTimeout", r.AttemptTimeout, 100*time.Millisecond, 2*time.Minute)
	order, err := relay.ParseStrategyOrder(r.StrategyOrder)
	if err != nil {
		v.AddError("Relay.StrategyOrder", err.Error(), r.StrategyOrder)
	}
	if _, err := relay.ParseForbiddenFallback(r.ForbiddenFallback); err != nil {
		v.AddError("Relay.ForbiddenFallback", err.Error(), r.ForbiddenFallback)
	}
	v.NotEmpty("Relay.UserAgent", r.UserAgent)
	if r.MaxBodyBytes <= 0 {
		v.AddError("Relay.MaxBodyBytes", "value must be positive", r.MaxBodyBytes)
	}
	v.Range("Relay.MaxConcurrent", r.MaxConcurrent, 1, 4096)
	v.NonNegative("Relay.OutboundRPS", r.OutboundRPS)
	if !media.IsMediaType(r.DefaultContentType) {
		v.AddError("Relay.DefaultContentType", "must be a valid media type", r.DefaultContentType)
	}
	v.CIDRList("Relay.AllowedCIDRs", r.AllowedCIDRs)
	for _, p := range r.AllowedPorts {
		v.Port("Relay.AllowedPorts", p)
	}

	s := cfg.Server
	v.DurationRange("Server.ReadTimeout", s.ReadTimeout, time.Millisecond, time.Hour)
	v.DurationRange("Server.ReadHeaderTimeout", s.ReadHeaderTimeout, time.Millisecond, time.Hour)
	v.DurationRange("Server.IdleTimeout", s.IdleTimeout, time.Millisecond, time.Hour)
	v.DurationRange("Server.ShutdownTimeout", s.ShutdownTimeout, time.Millisecond, time.Hour)
	// Zero disables the write deadline; otherwise it must outlast a full cascade.
	if cascade := r.AttemptTimeout * time.Duration(len(order)); s.WriteTimeout != 0 && s.WriteTimeout < cascade {
		v.AddError("Server.WriteTimeout",
			fmt.Sprintf("must be 0 or at least Relay.AttemptTimeout x %d strategies (%s)", len(order), cascade),
			s.WriteTimeout)
	}
	v.Positive("Server.MaxHeaderBytes", s.MaxHeaderBytes)

	if len(cfg.CORS.AllowedOrigins) == 0 {
		v.AddError("CORS.AllowedOrigins", "at least one origin is required (use \"*\" for any)", nil)
	}

	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.RequestsPerMinute", cfg.RateLimit.RequestsPerMinute)
	}

	if t := cfg.Telemetry; t.Enabled {
		v.OneOf("Telemetry.Exporter", t.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", t.Endpoint)
		v.Fraction("Telemetry.SamplingRate", t.SamplingRate)
	}

	return v.Err()
}
