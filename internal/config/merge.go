// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net"
	"strings"
)

func setString(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setSlice[T any](dst *[]T, v []T) {
	if v != nil {
		*dst = append([]T(nil), v...)
	}
}

// mergeFileConfig overlays values present in the file onto cfg.
func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogService, f.LogService)

	r := f.Relay
	setPtr(&cfg.Relay.AttemptTimeout, r.AttemptTimeout)
	setString(&cfg.Relay.StrategyOrder, r.StrategyOrder)
	setString(&cfg.Relay.ForbiddenFallback, r.ForbiddenFallback)
	setString(&cfg.Relay.UserAgent, r.UserAgent)
	setPtr(&cfg.Relay.MaxBodyBytes, r.MaxBodyBytes)
	setPtr(&cfg.Relay.InsecureSkipVerify, r.InsecureSkipVerify)
	setPtr(&cfg.Relay.MaxConcurrent, r.MaxConcurrent)
	setPtr(&cfg.Relay.OutboundRPS, r.OutboundRPS)
	setString(&cfg.Relay.DefaultContentType, r.DefaultContentType)
	setSlice(&cfg.Relay.AllowedHosts, r.AllowedHosts)
	setSlice(&cfg.Relay.AllowedCIDRs, r.AllowedCIDRs)
	setSlice(&cfg.Relay.AllowedPorts, r.AllowedPorts)

	s := f.Server
	setPtr(&cfg.Server.ReadTimeout, s.ReadTimeout)
	setPtr(&cfg.Server.ReadHeaderTimeout, s.ReadHeaderTimeout)
	setPtr(&cfg.Server.WriteTimeout, s.WriteTimeout)
	setPtr(&cfg.Server.IdleTimeout, s.IdleTimeout)
	setPtr(&cfg.Server.ShutdownTimeout, s.ShutdownTimeout)
	setPtr(&cfg.Server.MaxHeaderBytes, s.MaxHeaderBytes)

	setSlice(&cfg.CORS.AllowedOrigins, f.CORS.AllowedOrigins)

	setPtr(&cfg.RateLimit.Enabled, f.RateLimit.Enabled)
	setPtr(&cfg.RateLimit.RequestsPerMinute, f.RateLimit.RequestsPerMinute)

	t := f.Telemetry
	setPtr(&cfg.Telemetry.Enabled, t.Enabled)
	setString(&cfg.Telemetry.Exporter, t.Exporter)
	setString(&cfg.Telemetry.Endpoint, t.Endpoint)
	setPtr(&cfg.Telemetry.SamplingRate, t.SamplingRate)
	setString(&cfg.Telemetry.Environment, t.Environment)
}

// mergeEnvConfig applies CAMPROXY_* overrides. PORT is honoured for
// platforms that inject it, unless CAMPROXY_LISTEN_ADDR is set explicitly.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	if port := l.envString("PORT", ""); port != "" {
		cfg.ListenAddr = net.JoinHostPort("", port)
	}
	cfg.ListenAddr = l.envString(EnvPrefix+"LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)

	r := &cfg.Relay
	r.AttemptTimeout = l.envDuration(EnvPrefix+"RELAY_ATTEMPT_TIMEOUT", r.AttemptTimeout)
	r.StrategyOrder = l.envString(EnvPrefix+"RELAY_STRATEGY_ORDER", r.StrategyOrder)
	r.ForbiddenFallback = l.envString(EnvPrefix+"RELAY_FORBIDDEN_FALLBACK", r.ForbiddenFallback)
	r.UserAgent = l.envString(EnvPrefix+"RELAY_USER_AGENT", r.UserAgent)
	r.MaxBodyBytes = l.envInt64(EnvPrefix+"RELAY_MAX_BODY_BYTES", r.MaxBodyBytes)
	r.InsecureSkipVerify = l.envBool(EnvPrefix+"RELAY_INSECURE_SKIP_VERIFY", r.InsecureSkipVerify)
	r.MaxConcurrent = l.envInt(EnvPrefix+"RELAY_MAX_CONCURRENT", r.MaxConcurrent)
	r.OutboundRPS = l.envFloat(EnvPrefix+"RELAY_OUTBOUND_RPS", r.OutboundRPS)
	r.DefaultContentType = l.envString(EnvPrefix+"RELAY_DEFAULT_CONTENT_TYPE", r.DefaultContentType)
	r.AllowedHosts = l.envList(EnvPrefix+"RELAY_ALLOWED_HOSTS", r.AllowedHosts)
	r.AllowedCIDRs = l.envList(EnvPrefix+"RELAY_ALLOWED_CIDRS", r.AllowedCIDRs)
	r.AllowedPorts = l.envIntList(EnvPrefix+"RELAY_ALLOWED_PORTS", r.AllowedPorts)

	s := &cfg.Server
	s.ReadTimeout = l.envDuration(EnvPrefix+"SERVER_READ_TIMEOUT", s.ReadTimeout)
	s.ReadHeaderTimeout = l.envDuration(EnvPrefix+"SERVER_READ_HEADER_TIMEOUT", s.ReadHeaderTimeout)
	s.WriteTimeout = l.envDuration(EnvPrefix+"SERVER_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = l.envDuration(EnvPrefix+"SERVER_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = l.envDuration(EnvPrefix+"SERVER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxHeaderBytes = l.envInt(EnvPrefix+"SERVER_MAX_HEADER_BYTES", s.MaxHeaderBytes)

	cfg.CORS.AllowedOrigins = l.envList(EnvPrefix+"CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	cfg.RateLimit.Enabled = l.envBool(EnvPrefix+"RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = l.envInt(EnvPrefix+"RATE_LIMIT_REQUESTS_PER_MINUTE", cfg.RateLimit.RequestsPerMinute)

	t := &cfg.Telemetry
	t.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", t.SamplingRate)
	t.Environment = l.envString(EnvPrefix+"TELEMETRY_ENVIRONMENT", t.Environment)
}
