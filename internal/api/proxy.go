// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/camproxy/internal/log"
	"github.com/ManuGH/camproxy/internal/media"
	"github.com/ManuGH/camproxy/internal/metrics"
	pnet "github.com/ManuGH/camproxy/internal/platform/net"
	"github.com/ManuGH/camproxy/internal/relay"
)

// Query parameters accepted by /proxy.
const (
	paramURL      = "url"
	paramID       = "id"
	paramPassword = "password"
)

// handleProxy fetches one image from a device and forwards it.
// Path: /proxy?url=<target>&id=<user>&password=<secret>
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	setNoCache(w.Header())
	ctx := r.Context()
	logger := log.WithComponentFromContext(ctx, "proxy")

	q := r.URL.Query()
	target := strings.TrimSpace(q.Get(paramURL))
	if target == "" {
		writeError(w, r, http.StatusBadRequest, "missing_url", "URL is required.")
		return
	}

	req, err := relay.NewRequest(target, q.Get(paramID), q.Get(paramPassword))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "partial_credentials", "Both id and password must be supplied together.")
		return
	}

	u, err := pnet.ParseTargetURL(req.TargetURL)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_url", "Target URL must be an absolute http or https URL.")
		return
	}
	if err := s.guard.Check(ctx, u); err != nil {
		s.rejectTarget(w, r, u.Hostname(), err)
		return
	}

	release, ok := s.acquireSlot(r)
	if !ok {
		return
	}
	defer release()

	res, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		fe := relay.AsFetchError(err)
		ev := logger.Warn()
		if fe.Kind == relay.KindCanceled {
			ev = logger.Debug()
		}
		ev.Err(err).
			Str(log.FieldEvent, "relay.failed").
			Str(log.FieldTarget, pnet.SanitizeURL(req.TargetURL)).
			Str(log.FieldStrategy, fe.Strategy.String()).
			Str(log.FieldResult, fe.Kind.String()).
			Int(log.FieldStatus, fe.HTTPStatus()).
			Msg("relay request failed")
		writeFetchError(w, r, fe)
		return
	}

	out := media.Sanitize(res.Body, media.ContentTypeOrDefault(res.ContentType, s.cfg.Relay.DefaultContentType))
	if out.Stripped > 0 {
		logger.Debug().
			Str(log.FieldEvent, "media.sanitized").
			Str("action", out.Action()).
			Int("stripped", out.Stripped).
			Msg("dropped bytes before image start marker")
	}
	logger.Info().
		Str(log.FieldEvent, "relay.resolved").
		Str(log.FieldTarget, pnet.SanitizeURL(req.TargetURL)).
		Str(log.FieldStrategy, res.Strategy.String()).
		Int(log.FieldBytes, len(out.Bytes)).
		Int("stripped", out.Stripped).
		Msg("relay request served")

	h := w.Header()
	h.Set("Content-Type", out.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(out.Bytes)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Bytes); err != nil {
		logger.Debug().Err(err).Str(log.FieldEvent, "relay.write_failed").Msg("client went away during write")
	}
}

// rejectTarget answers a target that fails the allowlist. A host that cannot
// be resolved is reported like any unreachable device.
func (s *Server) rejectTarget(w http.ResponseWriter, r *http.Request, host string, err error) {
	logger := log.WithComponentFromContext(r.Context(), "proxy")
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, pnet.ErrTargetNotAllowed):
		logger.Warn().Err(err).Str(log.FieldEvent, "relay.target_denied").Str("host", host).Msg("target not in allowlist")
		writeError(w, r, http.StatusForbidden, "target_not_allowed", "Target is not permitted by the relay policy.")
	case errors.As(err, &dnsErr):
		writeFetchError(w, r, &relay.FetchError{Kind: relay.KindUnreachable, Err: err})
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_url", "Target host is not valid.")
	}
}

// acquireSlot bounds concurrent device fetches. It returns false when the
// client gave up while waiting.
func (s *Server) acquireSlot(r *http.Request) (func(), bool) {
	if err := s.slots.Acquire(r.Context(), 1); err != nil {
		return nil, false
	}
	s.slotsInUse.Add(1)
	metrics.UpstreamSlotAcquired()
	return func() {
		s.slotsInUse.Add(-1)
		metrics.UpstreamSlotReleased()
		s.slots.Release(1)
	}, true
}
