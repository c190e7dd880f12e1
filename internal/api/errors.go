// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ManuGH/camproxy/internal/log"
	"github.com/ManuGH/camproxy/internal/relay"
)

const credentialHint = "check credentials or target URL"

// errorBody is the JSON error payload. It never carries the target URL or
// credentials.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Hint      string `json:"hint,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// setNoCache forbids caching of every relay response, success or failure.
func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a client-facing error with a stable shape.
func writeError(w http.ResponseWriter, r *http.Request, code int, label, message string) {
	writeJSON(w, code, errorBody{
		Error:     label,
		Message:   message,
		Status:    code,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeFetchError reports the final outcome of a failed resolution.
func writeFetchError(w http.ResponseWriter, r *http.Request, fe *relay.FetchError) {
	code := fe.HTTPStatus()
	writeJSON(w, code, errorBody{
		Error:     fe.StatusText(),
		Message:   fmt.Sprintf("Failed to fetch image from target URL. Status: %d", code),
		Status:    code,
		Hint:      credentialHint,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
