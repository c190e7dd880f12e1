// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/icholy/digest"
)

var errNoDigestChallenge = errors.New("device did not offer a digest challenge")

func basicAuthorization(id, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(id+":"+secret))
}

// digestAttempt performs the two-call Digest exchange inside one attempt
// deadline: an unauthenticated GET to collect the challenge, then the
// authenticated GET. Transport failures on either call stop the cascade;
// a missing or unusable challenge is a rejection so the cascade can move on.
func (r *Resolver) digestAttempt(ctx context.Context, u *url.URL, req RetrievalRequest) Outcome {
	const s = StrategyDigest

	challengeResp, fe := r.get(ctx, s, u, "")
	if fe != nil {
		return Outcome{Strategy: s, Err: fe}
	}
	if challengeResp.status != http.StatusUnauthorized {
		// 2xx means the device did not need credentials at all; anything
		// else is classified exactly like a single-call attempt.
		return classifyStatus(s, challengeResp)
	}

	chal, err := findDigestChallenge(challengeResp.header)
	if err != nil {
		return rejected(s, challengeResp, err)
	}

	cred, err := digest.Digest(chal, digest.Options{
		Method:   http.MethodGet,
		URI:      u.RequestURI(),
		Count:    1,
		Username: req.CredentialID,
		Password: req.CredentialSecret,
	})
	if err != nil {
		return rejected(s, challengeResp, fmt.Errorf("unusable digest challenge: %w", err))
	}

	return r.fetchOnce(ctx, s, u, cred.String())
}

// findDigestChallenge returns the first parseable Digest challenge. Devices
// commonly advertise Basic and Digest side by side.
func findDigestChallenge(h http.Header) (*digest.Challenge, error) {
	var parseErr error
	for _, value := range h.Values("WWW-Authenticate") {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(value)), "digest ") {
			continue
		}
		chal, err := digest.ParseChallenge(strings.TrimSpace(value))
		if err != nil {
			parseErr = err
			continue
		}
		return chal, nil
	}
	if parseErr != nil {
		return nil, fmt.Errorf("malformed digest challenge: %w", parseErr)
	}
	return nil, errNoDigestChallenge
}

func rejected(s Strategy, resp *deviceResponse, err error) Outcome {
	return Outcome{Strategy: s, Err: &FetchError{
		Kind:     KindAuthRejected,
		Strategy: s,
		Status:   resp.status,
		Reason:   resp.reason,
		Err:      err,
	}}
}
