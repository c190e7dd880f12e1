// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingServer is returned when an App is created without a server.
	ErrMissingServer = errors.New("server is required")

	// ErrMissingListenAddr is returned when neither a listener nor an address is provided.
	ErrMissingListenAddr = errors.New("listen address is required")
)
