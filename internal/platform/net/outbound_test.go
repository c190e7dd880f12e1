// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTarget(t *testing.T) {
	cases := []struct {
		name    string
		policy  TargetPolicy
		rawURL  string
		wantErr error
	}{
		{
			name:   "empty policy allows everything",
			policy: TargetPolicy{},
			rawURL: "http://10.0.0.5/img.jpg",
		},
		{
			name:   "allowlisted host",
			policy: TargetPolicy{Hosts: []string{"Cam.Local."}},
			rawURL: "http://cam.local/img.jpg",
		},
		{
			name:   "address inside allowed CIDR",
			policy: TargetPolicy{CIDRs: []string{"192.168.1.0/24"}},
			rawURL: "http://192.168.1.20:8080/snapshot.jpg",
		},
		{
			name:    "address outside allowed CIDR",
			policy:  TargetPolicy{CIDRs: []string{"192.168.1.0/24"}},
			rawURL:  "http://10.10.55.64/snapshot.jpg",
			wantErr: ErrTargetNotAllowed,
		},
		{
			name:    "host not in allowlist and no CIDRs",
			policy:  TargetPolicy{Hosts: []string{"cam.local"}},
			rawURL:  "http://other.local/img.jpg",
			wantErr: ErrTargetNotAllowed,
		},
		{
			name:    "port not allowed",
			policy:  TargetPolicy{Hosts: []string{"cam.local"}, Ports: []int{80}},
			rawURL:  "https://cam.local/img.jpg",
			wantErr: ErrTargetNotAllowed,
		},
		{
			name:   "single IP entry",
			policy: TargetPolicy{CIDRs: []string{"::1"}},
			rawURL: "http://[::1]:8001/img.jpg",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(tc.rawURL)
			if err != nil {
				t.Fatal(err)
			}
			err = CheckTarget(context.Background(), u, tc.policy)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Example.COM.": "example.com",
		"[::1]":        "::1",
		"192.0.2.1":    "192.0.2.1",
	}
	for in, want := range cases {
		got, err := NormalizeHost(in)
		if err != nil {
			t.Fatalf("NormalizeHost(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}

	for _, bad := range []string{"", "http://x", "user@host", "host:80", "fe80::1%eth0"} {
		if _, err := NormalizeHost(bad); err == nil {
			t.Fatalf("NormalizeHost(%q) expected error", bad)
		}
	}
}

func TestParseCIDRAllowlist_Invalid(t *testing.T) {
	if _, err := parseCIDRAllowlist([]string{"not-a-cidr"}); err == nil {
		t.Fatal("expected error")
	}
}

// recordDial captures the address a guarded dialer hands to the real dialer.
func recordDial(dialed *[]string) DialFunc {
	return func(_ context.Context, _, addr string) (net.Conn, error) {
		*dialed = append(*dialed, addr)
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}
}

func TestGuard_DialContext(t *testing.T) {
	g, err := NewGuard(TargetPolicy{CIDRs: []string{"127.0.0.0/8"}, Ports: []int{8080}})
	require.NoError(t, err)

	var dialed []string
	dial := g.DialContext(recordDial(&dialed))

	conn, err := dial(context.Background(), "tcp", "127.0.0.1:8080")
	require.NoError(t, err)
	_ = conn.Close()

	_, err = dial(context.Background(), "tcp", "127.0.0.1:9090")
	assert.ErrorIs(t, err, ErrTargetNotAllowed)

	_, err = dial(context.Background(), "tcp", "10.1.2.3:8080")
	assert.ErrorIs(t, err, ErrTargetNotAllowed)

	assert.Equal(t, []string{"127.0.0.1:8080"}, dialed)
}

func TestGuard_DialContextKeepsAllowlistedHostName(t *testing.T) {
	g, err := NewGuard(TargetPolicy{Hosts: []string{"cam.local"}})
	require.NoError(t, err)

	var dialed []string
	conn, err := g.DialContext(recordDial(&dialed))(context.Background(), "tcp", "CAM.local:80")
	require.NoError(t, err)
	_ = conn.Close()
	assert.Equal(t, []string{"CAM.local:80"}, dialed)
}

func TestGuard_InactivePassesDialThrough(t *testing.T) {
	var g *Guard
	assert.False(t, g.Active())

	var dialed []string
	conn, err := g.DialContext(recordDial(&dialed))(context.Background(), "tcp", "203.0.113.9:554")
	require.NoError(t, err)
	_ = conn.Close()
	assert.Equal(t, []string{"203.0.113.9:554"}, dialed)
	assert.NoError(t, g.Check(context.Background(), &url.URL{Scheme: "http", Host: "203.0.113.9"}))
}

func TestGuard_CheckRedirect(t *testing.T) {
	g, err := NewGuard(TargetPolicy{Ports: []int{8080}})
	require.NoError(t, err)

	allowed, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:8080/next.jpg", nil)
	require.NoError(t, err)
	denied, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:9090/secret", nil)
	require.NoError(t, err)

	assert.NoError(t, g.CheckRedirect(allowed, []*http.Request{allowed}))
	assert.ErrorIs(t, g.CheckRedirect(denied, []*http.Request{allowed}), ErrTargetNotAllowed)

	hops := make([]*http.Request, maxRedirects)
	assert.Error(t, g.CheckRedirect(allowed, hops))
}

func TestNewGuard_InvalidEntries(t *testing.T) {
	_, err := NewGuard(TargetPolicy{CIDRs: []string{"not-a-cidr"}})
	assert.Error(t, err)
	_, err = NewGuard(TargetPolicy{Hosts: []string{"cam.local:80"}})
	assert.Error(t, err)
}
