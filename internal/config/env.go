// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camproxy/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CAMPROXY_"

// lookupEnv returns a trimmed, non-empty environment value.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func envLogger() *zerolog.Logger {
	logger := log.WithComponent("config")
	return &logger
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

// ParseString reads a string from environment variable or returns default value.
func ParseString(key, defaultValue string) string {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	ev := envLogger().Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev.Bool("sensitive", true).Msg("using environment variable")
	} else {
		ev.Str("value", v).Msg("using environment variable")
	}
	return v
}

// ParseInt reads an integer from environment variable.
// Invalid values fall back to the default with a warning.
func ParseInt(key string, defaultValue int) int {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		envLogger().Warn().Str("key", key).Str("value", v).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseInt64 is ParseInt for byte sizes and other wide values.
func ParseInt64(key string, defaultValue int64) int64 {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		envLogger().Warn().Str("key", key).Str("value", v).Int64("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseDuration reads a Go duration ("5s", "1m30s") from the environment.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		envLogger().Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}

// ParseBool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		envLogger().Warn().Str("key", key).Str("value", v).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		envLogger().Warn().Str("key", key).Str("value", v).Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	return f
}

// ParseList reads a comma separated list. Blank entries are dropped.
func ParseList(key string, defaultValue []string) []string {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	return splitList(v)
}

// ParseIntList reads a comma separated list of integers; any bad entry
// discards the whole value.
func ParseIntList(key string, defaultValue []int) []int {
	v, ok := lookupEnv(key)
	if !ok {
		return defaultValue
	}
	parts := splitList(v)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil {
			envLogger().Warn().Str("key", key).Str("value", v).
				Msg("invalid integer list in environment variable, using default")
			return defaultValue
		}
		out = append(out, i)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
