// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"errors"
	"strings"
)

// ErrPartialCredentials is returned when only one half of a credential pair is supplied.
var ErrPartialCredentials = errors.New("credential id and secret must be supplied together")

// RetrievalRequest describes one fetch. It is a value; resolvers never mutate it.
type RetrievalRequest struct {
	TargetURL        string
	CredentialID     string
	CredentialSecret string
}

// NewRequest builds a RetrievalRequest and enforces the both-or-neither rule.
func NewRequest(targetURL, id, secret string) (RetrievalRequest, error) {
	req := RetrievalRequest{
		TargetURL:        strings.TrimSpace(targetURL),
		CredentialID:     id,
		CredentialSecret: secret,
	}
	if (id == "") != (secret == "") {
		return RetrievalRequest{}, ErrPartialCredentials
	}
	return req, nil
}

// HasCredentials reports whether the request carries a complete credential pair.
// A half-filled pair is treated as anonymous.
func (r RetrievalRequest) HasCredentials() bool {
	return r.CredentialID != "" && r.CredentialSecret != ""
}
