// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camproxy/internal/config"
	"github.com/ManuGH/camproxy/internal/relay"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	var out, errOut bytes.Buffer

	good := writeConfig(t, "listen_addr: \":8081\"\nrelay:\n  strategy_order: digest,basic\n")
	assert.Equal(t, 0, configCLI([]string{"validate", "-f", good}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "is valid")

	errOut.Reset()
	bad := writeConfig(t, "relay:\n  strategy_order: basic,ntlm\n")
	assert.Equal(t, 1, configCLI([]string{"validate", "--file", bad}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Configuration error")

	assert.Equal(t, 2, configCLI([]string{"validate"}, &out, &errOut))
	assert.Equal(t, 2, configCLI([]string{"frobnicate"}, &out, &errOut))
}

func TestConfigDump(t *testing.T) {
	path := writeConfig(t, "relay:\n  forbidden_fallback: all\n")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, configCLI([]string{"dump", "-f", path, "--format=json"}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), `"ForbiddenFallback": "all"`)

	out.Reset()
	require.Equal(t, 0, configCLI([]string{"dump", "-f", path}, &out, &errOut), errOut.String())
	assert.Contains(t, strings.ToLower(out.String()), "forbiddenfallback: all")

	assert.Equal(t, 2, configCLI([]string{"dump", "--format=toml"}, &out, &errOut))
}

func TestHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	var out, errOut bytes.Buffer
	assert.Equal(t, 0, healthcheck([]string{"-mode", "live", "-addr", addr}, &out, &errOut))
	assert.Equal(t, 1, healthcheck([]string{"-addr", addr}, &out, &errOut))
	assert.Contains(t, errOut.String(), "503")
}

func TestNewResolver(t *testing.T) {
	cfg := config.Defaults()
	cfg.Relay.StrategyOrder = "url,basic"

	r, err := newResolver(cfg, false)
	require.NoError(t, err)
	assert.Equal(t, []relay.Strategy{relay.StrategyURL, relay.StrategyBasic}, r.Order())

	cfg.Relay.ForbiddenFallback = "sometimes"
	_, err = newResolver(cfg, false)
	assert.Error(t, err)
}
