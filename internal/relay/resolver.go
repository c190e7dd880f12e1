// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/camproxy/internal/log"
	"github.com/ManuGH/camproxy/internal/metrics"
	pnet "github.com/ManuGH/camproxy/internal/platform/net"
	"github.com/ManuGH/camproxy/internal/telemetry"
)

const (
	DefaultAttemptTimeout = 15 * time.Second
	DefaultMaxBodyBytes   = 32 << 20
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	acceptHeader = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Resolver. Zero values select the defaults.
type Options struct {
	Client            Doer
	AttemptTimeout    time.Duration
	Order             []Strategy
	ForbiddenFallback ForbiddenFallback
	UserAgent         string
	MaxBodyBytes      int64
}

// Resolver runs the authentication cascade. It holds configuration only and
// is safe for concurrent use; each Resolve call is an independent sequence.
type Resolver struct {
	client    Doer
	timeout   time.Duration
	order     []Strategy
	forbidden ForbiddenFallback
	userAgent string
	maxBody   int64
	tracer    trace.Tracer
}

// NewResolver validates opts and returns a Resolver.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("relay: http client is required")
	}
	order := opts.Order
	if len(order) == 0 {
		order = DefaultOrder
	}
	if err := validateOrder(order); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Resolver{
		client:    opts.Client,
		timeout:   timeout,
		order:     append([]Strategy(nil), order...),
		forbidden: opts.ForbiddenFallback,
		userAgent: ua,
		maxBody:   maxBody,
		tracer:    telemetry.Tracer("camproxy/relay"),
	}, nil
}

// Order returns a copy of the configured credential cascade.
func (r *Resolver) Order() []Strategy {
	return append([]Strategy(nil), r.order...)
}

// Resolve fetches the target, trying strategies until one succeeds, a
// non-rejection outcome ends the cascade, or the strategies run out.
// A non-nil error is always a *FetchError.
func (r *Resolver) Resolve(ctx context.Context, req RetrievalRequest) (*Resource, error) {
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "relay")

	target, err := pnet.ParseTargetURL(req.TargetURL)
	if err != nil {
		fe := &FetchError{Kind: KindInvalidInput, Strategy: StrategyAnonymous, Err: err}
		metrics.ObserveResolution(fe.Kind.String(), "none", time.Since(start))
		return nil, fe
	}

	plan := []Strategy{StrategyAnonymous}
	if req.HasCredentials() {
		plan = r.order
	}

	var last Outcome
	for i, s := range plan {
		if err := ctx.Err(); err != nil {
			last = failure(s, classifyTransportError(err), err)
			break
		}

		out := r.attempt(ctx, s, target, req)
		metrics.RecordAttempt(s.String(), out.label())
		ev := logger.Debug()
		if !out.Succeeded() {
			ev = logger.Info()
		}
		ev.Str("event", "relay.attempt").
			Str("strategy", s.String()).
			Int("attempt", i+1).
			Str("result", out.label()).
			Str(log.FieldTarget, pnet.SanitizeURL(target.String())).
			Msg("strategy attempt finished")

		if out.Succeeded() {
			metrics.ObserveResolution("success", s.String(), time.Since(start))
			return out.Resource, nil
		}

		last = out
		if !r.advances(i, out) {
			break
		}
	}

	fe := last.Err
	metrics.ObserveResolution(fe.Kind.String(), fe.Strategy.String(), time.Since(start))
	return nil, fe
}

// advances reports whether a failed outcome at position index lets the cascade continue.
func (r *Resolver) advances(index int, out Outcome) bool {
	if !out.Rejected() {
		return false
	}
	if out.Strategy == StrategyAnonymous {
		return false
	}
	if out.Err.Status == http.StatusForbidden {
		return r.forbidden.advancesAt(index)
	}
	return true
}

// attempt runs one strategy under its own deadline.
func (r *Resolver) attempt(ctx context.Context, s Strategy, target *url.URL, req RetrievalRequest) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "relay.attempt "+s.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(telemetry.RelayStrategyKey, s.String()),
			attribute.String(telemetry.RelayTargetKey, pnet.SanitizeURL(target.String())),
		),
	)
	defer span.End()

	var out Outcome
	switch s {
	case StrategyAnonymous:
		out = r.fetchOnce(ctx, s, target, "")
	case StrategyBasic:
		out = r.fetchOnce(ctx, s, pnet.StripUserInfo(target), basicAuthorization(req.CredentialID, req.CredentialSecret))
	case StrategyDigest:
		out = r.digestAttempt(ctx, pnet.StripUserInfo(target), req)
	case StrategyURL:
		// The header mirrors the user-info so any Doer presents the credentials,
		// not only *http.Client.
		out = r.fetchOnce(ctx, s, pnet.EmbedUserInfo(target, req.CredentialID, req.CredentialSecret),
			basicAuthorization(req.CredentialID, req.CredentialSecret))
	default:
		out = failure(s, KindInternal, fmt.Errorf("unsupported strategy %v", s))
	}

	span.SetAttributes(attribute.String(telemetry.RelayResultKey, out.label()))
	if out.Err != nil {
		if out.Err.Status > 0 {
			span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, out.Err.Status))
		}
		if !out.Rejected() {
			span.SetStatus(codes.Error, out.Err.Kind.String())
		}
	}
	return out
}

func (r *Resolver) fetchOnce(ctx context.Context, s Strategy, u *url.URL, authorization string) Outcome {
	resp, fe := r.get(ctx, s, u, authorization)
	if fe != nil {
		return Outcome{Strategy: s, Err: fe}
	}
	return classifyStatus(s, resp)
}

// deviceResponse is a fully read device reply.
type deviceResponse struct {
	status int
	reason string
	header http.Header
	body   []byte
}

// get issues one GET and reads the whole body while the attempt deadline is live.
func (r *Resolver) get(ctx context.Context, s Strategy, u *url.URL, authorization string) (*deviceResponse, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidInput, Strategy: s, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", acceptHeader)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransportError(err), Strategy: s, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, r.maxBody+1))
	if err != nil {
		kind := classifyTransportError(err)
		if kind == KindUnreachable {
			// The device answered, then dropped the connection mid-body.
			kind = KindProtocol
		}
		return nil, &FetchError{Kind: kind, Strategy: s, Status: res.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > r.maxBody {
		return nil, &FetchError{
			Kind:     KindProtocol,
			Strategy: s,
			Status:   res.StatusCode,
			Err:      fmt.Errorf("response exceeds %d bytes", r.maxBody),
		}
	}

	return &deviceResponse{
		status: res.StatusCode,
		reason: reasonPhrase(res),
		header: res.Header,
		body:   body,
	}, nil
}

// reasonPhrase extracts "Unauthorized" from "401 Unauthorized".
func reasonPhrase(res *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	if reason == "" {
		reason = http.StatusText(res.StatusCode)
	}
	return reason
}
