// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"fmt"
	"strings"
)

// Strategy is one way of presenting credentials to a device.
type Strategy int

const (
	StrategyAnonymous Strategy = iota
	StrategyBasic
	StrategyDigest
	StrategyURL
)

// DefaultOrder is the cascade used when none is configured.
var DefaultOrder = []Strategy{StrategyBasic, StrategyDigest, StrategyURL}

func (s Strategy) String() string {
	switch s {
	case StrategyAnonymous:
		return "anonymous"
	case StrategyBasic:
		return "basic"
	case StrategyDigest:
		return "digest"
	case StrategyURL:
		return "url"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration token to a credentialed strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return StrategyBasic, nil
	case "digest":
		return StrategyDigest, nil
	case "url", "url_embedded", "userinfo":
		return StrategyURL, nil
	default:
		return 0, fmt.Errorf("unknown auth strategy %q (want basic, digest or url)", s)
	}
}

// ParseStrategyOrder parses a comma separated cascade such as "basic,digest,url".
// Duplicates are rejected; the anonymous strategy is implicit and cannot be listed.
func ParseStrategyOrder(s string) ([]Strategy, error) {
	parts := strings.Split(s, ",")
	order := make([]Strategy, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := ParseStrategy(part)
		if err != nil {
			return nil, err
		}
		order = append(order, st)
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

func validateOrder(order []Strategy) error {
	if len(order) == 0 {
		return fmt.Errorf("auth strategy order is empty")
	}
	seen := make(map[Strategy]bool, len(order))
	for _, st := range order {
		if st == StrategyAnonymous {
			return fmt.Errorf("anonymous strategy cannot be part of the credential cascade")
		}
		if st < StrategyAnonymous || st > StrategyURL {
			return fmt.Errorf("unknown auth strategy %v", st)
		}
		if seen[st] {
			return fmt.Errorf("auth strategy %s listed twice", st)
		}
		seen[st] = true
	}
	return nil
}

// ForbiddenFallback decides when a 403 advances the cascade. A 401 always does.
type ForbiddenFallback int

const (
	// ForbiddenFallbackFirst treats 403 as a rejection only for the first strategy.
	ForbiddenFallbackFirst ForbiddenFallback = iota
	// ForbiddenFallbackAll treats 403 as a rejection for every strategy.
	ForbiddenFallbackAll
	// ForbiddenFallbackNone makes every 403 terminal.
	ForbiddenFallbackNone
)

func (f ForbiddenFallback) String() string {
	switch f {
	case ForbiddenFallbackAll:
		return "all"
	case ForbiddenFallbackNone:
		return "none"
	default:
		return "first"
	}
}

// ParseForbiddenFallback parses "first", "all" or "none".
func ParseForbiddenFallback(s string) (ForbiddenFallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return ForbiddenFallbackFirst, nil
	case "all":
		return ForbiddenFallbackAll, nil
	case "none":
		return ForbiddenFallbackNone, nil
	default:
		return 0, fmt.Errorf("unknown forbidden fallback %q (want first, all or none)", s)
	}
}

func (f ForbiddenFallback) advancesAt(index int) bool {
	switch f {
	case ForbiddenFallbackAll:
		return true
	case ForbiddenFallbackNone:
		return false
	default:
		return index == 0
	}
}
