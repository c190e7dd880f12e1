// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrTargetNotAllowed indicates the target did not match the device allowlist.
var ErrTargetNotAllowed = errors.New("target not allowed")

// TargetPolicy restricts which devices the relay may contact.
// An empty policy (no hosts and no CIDRs) allows every target.
type TargetPolicy struct {
	Hosts []string
	CIDRs []string
	Ports []int
}

// Active reports whether the policy restricts anything.
func (p TargetPolicy) Active() bool {
	return len(p.Hosts) > 0 || len(p.CIDRs) > 0 || len(p.Ports) > 0
}

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.ContainsAny(host, "/@") || strings.Contains(host, "://") {
		return "", fmt.Errorf("host must be a bare hostname or IP: %s", raw)
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

const maxRedirects = 10

// Guard is a compiled TargetPolicy. It checks URLs up front, every redirect
// hop, and the address each outbound connection actually dials.
type Guard struct {
	ports []int
	hosts map[string]struct{}
	cidrs []*net.IPNet
}

// NewGuard validates the policy lists and compiles them.
func NewGuard(policy TargetPolicy) (*Guard, error) {
	hosts, err := normalizeHostAllowlist(policy.Hosts)
	if err != nil {
		return nil, err
	}
	cidrs, err := parseCIDRAllowlist(policy.CIDRs)
	if err != nil {
		return nil, err
	}
	return &Guard{ports: policy.Ports, hosts: hosts, cidrs: cidrs}, nil
}

// Active reports whether the guard restricts anything. A nil Guard allows all.
func (g *Guard) Active() bool {
	return g != nil && (len(g.ports) > 0 || g.restrictsHost())
}

func (g *Guard) restrictsHost() bool {
	return len(g.hosts) > 0 || len(g.cidrs) > 0
}

// Check verifies u. Hosts match by normalized name; otherwise every resolved
// address must fall inside an allowed CIDR.
func (g *Guard) Check(ctx context.Context, u *url.URL) error {
	if !g.Active() {
		return nil
	}
	port, err := urlPort(u)
	if err != nil {
		return err
	}
	_, err = g.admit(ctx, u.Hostname(), port)
	return err
}

// CheckRedirect is an http.Client CheckRedirect hook applying the policy to
// every hop.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return g.Check(req.Context(), req.URL)
}

// DialContext wraps dial so connections only reach admitted addresses. Hosts
// admitted through a CIDR are dialed by the checked IP, so a second DNS answer
// cannot point the connection elsewhere.
func (g *Guard) DialContext(dial DialFunc) DialFunc {
	if !g.Active() {
		return dial
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
		}
		ips, err := g.admit(ctx, host, port)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return dial(ctx, network, addr)
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := dial(ctx, network, net.JoinHostPort(ip.String(), portStr))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// admit applies the policy to host:port. It returns the vetted addresses
// when the host was admitted by CIDR, and nil when no pinning is needed.
func (g *Guard) admit(ctx context.Context, rawHost string, port int) ([]net.IP, error) {
	if len(g.ports) > 0 && !portAllowed(g.ports, port) {
		return nil, fmt.Errorf("%w: port %d", ErrTargetNotAllowed, port)
	}
	if !g.restrictsHost() {
		return nil, nil
	}

	host, err := NormalizeHost(rawHost)
	if err != nil {
		return nil, err
	}
	if _, ok := g.hosts[host]; ok {
		return nil, nil
	}
	if len(g.cidrs) == 0 {
		return nil, fmt.Errorf("%w: host %s", ErrTargetNotAllowed, host)
	}

	ips, err := resolveHostIPs(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if !ipInCIDRs(ip, g.cidrs) {
			return nil, fmt.Errorf("%w: address %s", ErrTargetNotAllowed, ip)
		}
	}
	return ips, nil
}

// CheckTarget verifies u against policy.
func CheckTarget(ctx context.Context, u *url.URL, policy TargetPolicy) error {
	if !policy.Active() {
		return nil
	}
	g, err := NewGuard(policy)
	if err != nil {
		return err
	}
	return g.Check(ctx, u)
}

func portAllowed(allowed []int, port int) bool {
	for _, p := range allowed {
		if p == port {
			return true
		}
	}
	return false
}

func urlPort(u *url.URL) (int, error) {
	if u.Port() == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			return 80, nil
		case "https":
			return 443, nil
		default:
			return 0, fmt.Errorf("unknown scheme %q", u.Scheme)
		}
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", u.Port(), err)
	}
	return port, nil
}

func normalizeHostAllowlist(hosts []string) (map[string]struct{}, error) {
	allow := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		normalized, err := NormalizeHost(host)
		if err != nil {
			return nil, err
		}
		allow[normalized] = struct{}{}
	}
	return allow, nil
}

func parseCIDRAllowlist(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid CIDR or IP: %s", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

func resolveHostIPs(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", host, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IP != nil {
			ips = append(ips, addr.IP)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve host %q: no addresses", host)
	}
	return ips, nil
}

func ipInCIDRs(ip net.IP, cidrs []*net.IPNet) bool {
	for _, n := range cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
