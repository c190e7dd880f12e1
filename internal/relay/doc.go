// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package relay fetches a media resource from a remote device on behalf of a
// client, discovering the device's authentication scheme as it goes.
//
// A resolution is a strictly sequential cascade over a fixed strategy order
// (Basic header, Digest challenge, credentials in the URL by default). Only an
// explicit credential rejection (401, and 403 where the forbidden policy
// allows it) advances the cascade; any transport failure stops it so the
// caller sees the real network condition instead of a misleading 401.
//
// Every attempt runs under its own deadline derived from the caller's
// context, so a hanging device costs at most one attempt timeout per strategy
// and a disconnected client cancels the in-flight request.
package relay
