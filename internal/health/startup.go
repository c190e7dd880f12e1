// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camproxy/internal/config"
	"github.com/ManuGH/camproxy/internal/log"
)

// PerformStartupChecks runs pre-flight checks that config validation cannot:
// whether the listen address is bindable, plus warnings for risky settings.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if err := checkListenAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	logger.Info().Str("addr", cfg.ListenAddr).Msg("listen address is available")

	warnRiskySettings(logger, cfg)
	return nil
}

func checkListenAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func warnRiskySettings(logger zerolog.Logger, cfg config.AppConfig) {
	r := cfg.Relay
	if r.InsecureSkipVerify {
		logger.Warn().Str("event", "startup.insecure_tls").
			Msg("TLS certificate verification is disabled for device requests")
	}
	if len(r.AllowedHosts) == 0 && len(r.AllowedCIDRs) == 0 {
		logger.Warn().Str("event", "startup.open_relay").
			Msg("no target allowlist configured; any http(s) host can be fetched")
	}
	if !cfg.RateLimit.Enabled {
		logger.Info().Str("event", "startup.rate_limit_off").Msg("inbound rate limiting disabled")
	}
}
