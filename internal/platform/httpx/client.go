package httpx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	pnet "github.com/ManuGH/camproxy/internal/platform/net"
)

const (
	defaultAttemptTimeout        = 15 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 64
	defaultMaxIdleConnsPerHost   = 4
)

// Options tunes the pooled outbound client used to reach devices.
type Options struct {
	// AttemptTimeout bounds dialing and waiting for response headers.
	// The caller's context still owns the overall deadline of an attempt.
	AttemptTimeout time.Duration
	// InsecureSkipVerify accepts self-signed device certificates.
	InsecureSkipVerify bool
	// RequestsPerSecond paces outbound requests across all callers; 0 disables pacing.
	RequestsPerSecond float64
	// Tracing wraps the transport with OpenTelemetry client spans.
	Tracing bool
	// Guard restricts redirect hops and dialed addresses; nil allows any target.
	// An active guard disables environment proxies, which would hide the real peer.
	Guard *pnet.Guard
}

// NewClient returns a hardened HTTP client shared by all concurrent relays.
// It carries pooling configuration only; no per-request state lives here.
func NewClient(opts Options) *http.Client {
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	proxy := http.ProxyFromEnvironment
	if opts.Guard.Active() {
		proxy = nil
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:                 proxy,
		DialContext:           opts.Guard.DialContext(dialer.DialContext),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in for cameras with self-signed certs
		},
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rt = &pacedTransport{
			next:    rt,
			limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		}
	}

	if opts.Tracing {
		rt = otelhttp.NewTransport(rt)
	}

	client := &http.Client{Transport: rt}
	if opts.Guard.Active() {
		client.CheckRedirect = opts.Guard.CheckRedirect
	}
	return client
}

// pacedTransport delays requests so fragile devices are not flooded.
// Waiting honours the request context, so a cancelled relay never dials.
type pacedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The limiter refuses early when the wait would outlive the deadline.
		return nil, fmt.Errorf("outbound pacing: %v: %w", err, context.DeadlineExceeded)
	}
	return t.next.RoundTrip(req)
}
