// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media cleans device payloads before they are forwarded.
package media

import (
	"bytes"
	"mime"
	"strings"

	"github.com/ManuGH/camproxy/internal/metrics"
)

// DefaultContentType is forwarded when the device does not declare one.
const DefaultContentType = "image/jpeg"

// jpegSOI is the JPEG start-of-image marker.
var jpegSOI = []byte{0xFF, 0xD8}

// Sanitize actions reported to metrics.
const (
	ActionClean        = "clean"
	ActionStripped     = "stripped"
	ActionUnrecognized = "unrecognized"
)

// SanitizedMedia is a payload ready to forward.
type SanitizedMedia struct {
	Bytes       []byte
	ContentType string
	// Stripped is the number of leading bytes dropped before the start marker.
	Stripped int
}

// Action names what Sanitize did to the payload.
func (m SanitizedMedia) Action() string {
	switch {
	case m.Stripped > 0:
		return ActionStripped
	case bytes.HasPrefix(m.Bytes, jpegSOI):
		return ActionClean
	default:
		return ActionUnrecognized
	}
}

// Sanitize drops any bytes preceding the first JPEG start-of-image marker.
// Payloads without a marker are returned unchanged. The result shares the
// backing array of b.
func Sanitize(b []byte, declaredContentType string) SanitizedMedia {
	out := SanitizedMedia{Bytes: b, ContentType: declaredContentType}
	if k := bytes.Index(b, jpegSOI); k > 0 {
		out.Bytes = b[k:]
		out.Stripped = k
	}
	metrics.RecordSanitize(out.Action(), out.Stripped)
	return out
}

// ContentTypeOrDefault returns ct unless it is blank or unparseable, in which
// case fallback (or DefaultContentType when fallback is empty) is used.
func ContentTypeOrDefault(ct, fallback string) string {
	if fallback == "" {
		fallback = DefaultContentType
	}
	ct = strings.TrimSpace(ct)
	if !IsMediaType(ct) {
		return fallback
	}
	return ct
}

// IsMediaType reports whether ct parses as a type/subtype media type.
// Bare tokens such as "jpeg" are rejected.
func IsMediaType(ct string) bool {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(ct))
	if err != nil {
		return false
	}
	typ, sub, ok := strings.Cut(mt, "/")
	return ok && typ != "" && sub != "" && !strings.Contains(sub, "/")
}
