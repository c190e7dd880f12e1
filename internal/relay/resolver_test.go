// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/icholy/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/camproxy/internal/platform/httpx"
)

var jpegBody = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

const (
	testRealm = "IP Camera"
	testNonce = "5f2b1c0d9e8a7b6c"
)

// call is one request observed by a fake device.
type call struct {
	Scheme string
	User   string
	Path   string
}

// device is an httptest camera that records every request it sees.
type device struct {
	srv     *httptest.Server
	mu      sync.Mutex
	calls   []call
	handler func(n int, w http.ResponseWriter, r *http.Request)
}

func newDevice(t *testing.T, h func(n int, w http.ResponseWriter, r *http.Request)) *device {
	t.Helper()
	d := &device{handler: h}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		c := describe(r)
		d.calls = append(d.calls, c)
		n := len(d.calls)
		d.mu.Unlock()
		d.handler(n, w, r)
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *device) URL(path string) string { return d.srv.URL + path }

func (d *device) Calls() []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]call(nil), d.calls...)
}

func describe(r *http.Request) call {
	c := call{Scheme: "none", Path: r.URL.Path}
	auth := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(auth, "Basic "):
		c.Scheme = "basic"
		c.User, _, _ = r.BasicAuth()
	case strings.HasPrefix(auth, "Digest "):
		c.Scheme = "digest"
		if cred, err := digest.ParseCredentials(auth); err == nil {
			c.User = cred.Username
		}
	}
	return c
}

func writeJPEG(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func challenge(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="`+testRealm+`"`)
	w.Header().Add("WWW-Authenticate", `Digest realm="`+testRealm+`", nonce="`+testNonce+`", qop="auth", algorithm=MD5`)
	w.WriteHeader(http.StatusUnauthorized)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// validDigest recomputes the RFC 2617 qop=auth response for the request.
func validDigest(r *http.Request, user, pass string) bool {
	cred, err := digest.ParseCredentials(r.Header.Get("Authorization"))
	if err != nil || cred.Username != user || cred.Realm != testRealm || cred.Nonce != testNonce {
		return false
	}
	ha1 := md5hex(user + ":" + testRealm + ":" + pass)
	ha2 := md5hex(r.Method + ":" + cred.URI)
	nc := fmt.Sprintf("%08x", cred.Nc)
	want := md5hex(strings.Join([]string{ha1, cred.Nonce, nc, cred.Cnonce, cred.QOP, ha2}, ":"))
	return cred.Response == want
}

func newTestResolver(t *testing.T, opts Options) *Resolver {
	t.Helper()
	if opts.Client == nil {
		tr := &http.Transport{}
		t.Cleanup(tr.CloseIdleConnections)
		opts.Client = &http.Client{Transport: tr}
	}
	r, err := NewResolver(opts)
	require.NoError(t, err)
	return r
}

func TestResolve_AnonymousSingleAttempt(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r := newTestResolver(t, Options{})

	res, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg")})
	require.Nil(t, res)
	fe := AsFetchError(err)
	require.NotNil(t, fe)
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, http.StatusUnauthorized, fe.HTTPStatus())
	assert.Equal(t, StrategyAnonymous, fe.Strategy)

	if diff := cmp.Diff([]call{{Scheme: "none", Path: "/img.jpg"}}, dev.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_AnonymousSuccess(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJPEG(w, jpegBody)
	})
	r := newTestResolver(t, Options{})

	res, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, jpegBody, res.Body)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, StrategyAnonymous, res.Strategy)
	assert.Len(t, dev.Calls(), 1)
}

func TestResolve_PartialCredentialsAreAnonymous(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r := newTestResolver(t, Options{})

	_, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg"), CredentialID: "admin"})
	require.Error(t, err)
	assert.Len(t, dev.Calls(), 1)
}

func TestResolve_BasicSucceedsFirst(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); ok && u == "admin" && p == "pass" {
			writeJPEG(w, jpegBody)
			return
		}
		challenge(w)
	})
	r := newTestResolver(t, Options{})

	res, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/img.jpg"), CredentialID: "admin", CredentialSecret: "pass",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyBasic, res.Strategy)
	if diff := cmp.Diff([]call{{Scheme: "basic", User: "admin", Path: "/img.jpg"}}, dev.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_BasicRejectedDigestSucceeds(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Authorization"), "Digest ") && validDigest(r, "admin", "pass") {
			writeJPEG(w, jpegBody)
			return
		}
		challenge(w)
	})
	r := newTestResolver(t, Options{})

	res, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/snapshot.cgi?chn=1"), CredentialID: "admin", CredentialSecret: "pass",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyDigest, res.Strategy)
	assert.Equal(t, jpegBody, res.Body)

	want := []call{
		{Scheme: "basic", User: "admin", Path: "/snapshot.cgi"},
		{Scheme: "none", Path: "/snapshot.cgi"},
		{Scheme: "digest", User: "admin", Path: "/snapshot.cgi"},
	}
	if diff := cmp.Diff(want, dev.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_AllRejected(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		challenge(w)
	})
	r := newTestResolver(t, Options{})

	_, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/img.jpg"), CredentialID: "admin", CredentialSecret: "wrong",
	})
	require.Error(t, err)
	fe := AsFetchError(err)
	assert.Equal(t, KindAuthRejected, fe.Kind)
	assert.Equal(t, StrategyURL, fe.Strategy)
	assert.Equal(t, http.StatusUnauthorized, fe.HTTPStatus())
	assert.Equal(t, "Unauthorized", fe.StatusText())

	// URL-embedded credentials reach the device as a Basic header set by the transport.
	want := []call{
		{Scheme: "basic", User: "admin", Path: "/img.jpg"},
		{Scheme: "none", Path: "/img.jpg"},
		{Scheme: "digest", User: "admin", Path: "/img.jpg"},
		{Scheme: "basic", User: "admin", Path: "/img.jpg"},
	}
	if diff := cmp.Diff(want, dev.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_DigestWithoutChallengeFallsThrough(t *testing.T) {
	dev := newDevice(t, func(n int, w http.ResponseWriter, _ *http.Request) {
		if n == 3 {
			writeJPEG(w, jpegBody)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="cam"`)
		w.WriteHeader(http.StatusUnauthorized)
	})
	r := newTestResolver(t, Options{})

	res, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/img.jpg"), CredentialID: "admin", CredentialSecret: "pass",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyURL, res.Strategy)
	assert.Len(t, dev.Calls(), 3)
}

func TestResolve_ConnectionRefusedStopsCascade(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/img.jpg"
	srv.Close()

	r := newTestResolver(t, Options{})
	_, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: target, CredentialID: "admin", CredentialSecret: "pass",
	})
	require.Error(t, err)
	fe := AsFetchError(err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, StrategyBasic, fe.Strategy)
	assert.Equal(t, http.StatusBadGateway, fe.HTTPStatus())
}

func TestResolve_TimeoutStopsCascade(t *testing.T) {
	release := make(chan struct{})
	dev := newDevice(t, func(_ int, _ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	r := newTestResolver(t, Options{AttemptTimeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/img.jpg"), CredentialID: "admin", CredentialSecret: "pass",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, AsFetchError(err).HTTPStatus())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, dev.Calls(), 1)
}

func TestResolve_UpstreamStatusIsTerminal(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	r := newTestResolver(t, Options{})

	_, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/missing.jpg"), CredentialID: "admin", CredentialSecret: "pass",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, http.StatusNotFound, AsFetchError(err).HTTPStatus())
	assert.Len(t, dev.Calls(), 1)
}

func TestResolve_ForbiddenFallback(t *testing.T) {
	forbidAll := func(_ int, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	tests := []struct {
		name      string
		policy    ForbiddenFallback
		wantCalls int
		wantLast  Strategy
	}{
		// Basic 403 advances; the digest challenge 403 is terminal.
		{"first", ForbiddenFallbackFirst, 2, StrategyDigest},
		{"all", ForbiddenFallbackAll, 3, StrategyURL},
		{"none", ForbiddenFallbackNone, 1, StrategyBasic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newDevice(t, forbidAll)
			r := newTestResolver(t, Options{ForbiddenFallback: tt.policy})

			_, err := r.Resolve(context.Background(), RetrievalRequest{
				TargetURL: dev.URL("/img.jpg"), CredentialID: "admin", CredentialSecret: "pass",
			})
			require.Error(t, err)
			fe := AsFetchError(err)
			assert.Equal(t, http.StatusForbidden, fe.HTTPStatus())
			assert.Equal(t, tt.wantLast, fe.Strategy)
			assert.Len(t, dev.Calls(), tt.wantCalls)
		})
	}
}

func TestResolve_CustomOrder(t *testing.T) {
	dev := newDevice(t, func(n int, w http.ResponseWriter, _ *http.Request) {
		if n == 2 {
			writeJPEG(w, jpegBody)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	order, err := ParseStrategyOrder("url,basic")
	require.NoError(t, err)
	r := newTestResolver(t, Options{Order: order})

	res, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/img.jpg"), CredentialID: "admin", CredentialSecret: "pass",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyBasic, res.Strategy)
	assert.Len(t, dev.Calls(), 2)
}

func TestResolve_InvalidURLMakesNoAttempt(t *testing.T) {
	client := &countingDoer{}
	r := newTestResolver(t, Options{Client: client})

	for _, target := range []string{"", "not a url", "ftp://cam.local/img.jpg", "http://", "/relative.jpg"} {
		_, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: target})
		require.Error(t, err, target)
		assert.ErrorIs(t, err, ErrInvalidInput, target)
		assert.Equal(t, http.StatusBadRequest, AsFetchError(err).HTTPStatus(), target)
	}
	assert.Zero(t, client.n)
}

func TestResolve_CanceledContextMakesNoAttempt(t *testing.T) {
	client := &countingDoer{}
	r := newTestResolver(t, Options{Client: client})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, RetrievalRequest{
		TargetURL: "http://cam.local/img.jpg", CredentialID: "admin", CredentialSecret: "pass",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, StatusClientClosedRequest, AsFetchError(err).HTTPStatus())
	assert.Zero(t, client.n)
}

func TestResolve_OversizedBody(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJPEG(w, make([]byte, 2048))
	})
	r := newTestResolver(t, Options{MaxBodyBytes: 1024})

	_, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, http.StatusBadGateway, AsFetchError(err).HTTPStatus())
}

func TestResolve_URLEmbeddedEncodesCredentials(t *testing.T) {
	const id, secret = "ad@min", "p@ss/w:rd%"
	dev := newDevice(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); ok && u == id && p == secret {
			writeJPEG(w, jpegBody)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	var seen []string
	client := &recordingDoer{next: http.DefaultTransport, urls: &seen}
	r := newTestResolver(t, Options{Client: client, Order: []Strategy{StrategyURL}})

	res, err := r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: dev.URL("/img.jpg"), CredentialID: id, CredentialSecret: secret,
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyURL, res.Strategy)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "ad%40min:p%40ss%2Fw%3Ard%25@")
}

func TestResolve_PacingPastDeadlineIsATimeout(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		writeJPEG(w, jpegBody)
	})
	client := httpx.NewClient(httpx.Options{RequestsPerSecond: 0.5})
	t.Cleanup(client.CloseIdleConnections)
	r := newTestResolver(t, Options{Client: client, AttemptTimeout: 200 * time.Millisecond})

	_, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg")})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, AsFetchError(err).HTTPStatus())
	assert.Len(t, dev.Calls(), 1)
}

func TestResolve_SendsBrowserHeaders(t *testing.T) {
	var ua, accept string
	dev := newDevice(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		writeJPEG(w, jpegBody)
	})
	r := newTestResolver(t, Options{})

	_, err := r.Resolve(context.Background(), RetrievalRequest{TargetURL: dev.URL("/img.jpg")})
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, ua)
	assert.Contains(t, accept, "image/")
}

func TestResolve_ConcurrentIndependent(t *testing.T) {
	dev := newDevice(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		if u, _, ok := r.BasicAuth(); ok && u == "admin" {
			writeJPEG(w, jpegBody)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	r := newTestResolver(t, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "admin"
			if i%2 == 1 {
				id = "guest"
			}
			_, err := r.Resolve(context.Background(), RetrievalRequest{
				TargetURL: dev.URL("/img.jpg"), CredentialID: id, CredentialSecret: "pass",
			})
			if (id == "admin") != (err == nil) {
				errs <- fmt.Errorf("request %d (%s): unexpected result %v", i, id, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestResolve_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		challenge(w)
	}))
	defer srv.Close()
	tr := &http.Transport{}
	defer tr.CloseIdleConnections()

	r, err := NewResolver(Options{Client: &http.Client{Transport: tr}})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), RetrievalRequest{
		TargetURL: srv.URL + "/img.jpg", CredentialID: "admin", CredentialSecret: "pass",
	})
	require.Error(t, err)
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(Options{})
	require.Error(t, err)

	_, err = NewResolver(Options{Client: http.DefaultClient, Order: []Strategy{StrategyBasic, StrategyBasic}})
	require.Error(t, err)

	r, err := NewResolver(Options{Client: http.DefaultClient})
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, r.Order())
}

type countingDoer struct {
	mu sync.Mutex
	n  int
}

func (c *countingDoer) Do(*http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil, errors.New("unexpected network call")
}

// recordingDoer records the wire URL of each request and sends it straight
// through a RoundTripper, without any *http.Client header handling.
type recordingDoer struct {
	next http.RoundTripper
	urls *[]string
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	*d.urls = append(*d.urls, req.URL.String())
	return d.next.RoundTrip(req)
}
