// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidTargetURL is returned for targets that are not absolute http(s) URLs.
var ErrInvalidTargetURL = errors.New("invalid target url")

// SanitizeURL removes user info and query parameters for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	return parsedURL.String()
}

// ParseTargetURL validates that s is an absolute http or https URL with a host.
// Unlike an operator-facing base URL, a device target may already carry
// user-info; the caller decides whether to keep it.
func ParseTargetURL(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTargetURL)
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargetURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTargetURL, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTargetURL)
	}
	u.Scheme = scheme
	return u, nil
}

// EmbedUserInfo returns a copy of u whose authority carries id:secret.
// url.UserPassword percent-encodes reserved characters (':', '@', '/') on
// serialisation, so the resulting URL grammar stays intact.
func EmbedUserInfo(u *url.URL, id, secret string) *url.URL {
	out := *u
	out.User = url.UserPassword(id, secret)
	return &out
}

// StripUserInfo returns a copy of u without credentials in its authority.
func StripUserInfo(u *url.URL) *url.URL {
	out := *u
	out.User = nil
	return &out
}
