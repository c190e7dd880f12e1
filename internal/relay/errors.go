// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	pnet "github.com/ManuGH/camproxy/internal/platform/net"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrInvalidInput = errors.New("relay: invalid input")
	ErrAuthRejected = errors.New("relay: credentials rejected")
	ErrUnreachable  = errors.New("relay: device unreachable")
	ErrTimeout      = errors.New("relay: request timed out")
	ErrProtocol     = errors.New("relay: malformed or oversized response")
	ErrUpstream     = errors.New("relay: device returned an error status")
	ErrCanceled     = errors.New("relay: request canceled")
	ErrTargetDenied = errors.New("relay: target not permitted")
	ErrInternal     = errors.New("relay: internal error")
)

// StatusClientClosedRequest is reported when the inbound client went away.
const StatusClientClosedRequest = 499

// ErrorKind classifies why an attempt or a whole resolution did not succeed.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindAuthRejected
	KindUnreachable
	KindTimeout
	KindProtocol
	KindUpstreamStatus
	KindCanceled
	// KindTargetDenied is a redirect or dial outside the target allowlist.
	KindTargetDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindAuthRejected:
		return "rejected"
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindUpstreamStatus:
		return "upstream_status"
	case KindCanceled:
		return "canceled"
	case KindTargetDenied:
		return "target_denied"
	default:
		return "internal"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindAuthRejected:
		return ErrAuthRejected
	case KindUnreachable:
		return ErrUnreachable
	case KindTimeout:
		return ErrTimeout
	case KindProtocol:
		return ErrProtocol
	case KindUpstreamStatus:
		return ErrUpstream
	case KindCanceled:
		return ErrCanceled
	case KindTargetDenied:
		return ErrTargetDenied
	default:
		return ErrInternal
	}
}

// FetchError is the classified failure of an attempt or of a whole resolution.
type FetchError struct {
	Kind     ErrorKind
	Strategy Strategy
	// Status and Reason hold the device's HTTP status when one was received.
	Status int
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("relay: %s: %v", e.Strategy, e.Kind.sentinel())
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Kind.sentinel()
}

// HTTPStatus maps the failure onto the status code returned to the client.
// A device status is passed through; pure transport conditions are synthesized.
func (e *FetchError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindAuthRejected, KindUpstreamStatus:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnreachable, KindProtocol:
		return http.StatusBadGateway
	case KindCanceled:
		return StatusClientClosedRequest
	case KindTargetDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// StatusText is the reason phrase paired with HTTPStatus.
func (e *FetchError) StatusText() string {
	code := e.HTTPStatus()
	if e.Reason != "" && code == e.Status {
		return e.Reason
	}
	if code == StatusClientClosedRequest {
		return "Client Closed Request"
	}
	return http.StatusText(code)
}

// AsFetchError returns err as a *FetchError, wrapping anything unclassified as internal.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: KindInternal, Err: err}
}

// classifyTransportError sorts an error from the HTTP client or a body read.
func classifyTransportError(err error) ErrorKind {
	switch {
	case errors.Is(err, pnet.ErrTargetNotAllowed):
		return KindTargetDenied
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var (
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		recordHdrErr tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordHdrErr) {
		return KindProtocol
	}

	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
	)
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.EOF):
		return KindUnreachable
	}

	return KindProtocol
}
