// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"sync/atomic"
)

// DrainChecker turns unready once shutdown begins so load balancers stop
// routing new relay requests while in-flight ones finish.
type DrainChecker struct {
	draining atomic.Bool
}

func NewDrainChecker() *DrainChecker { return &DrainChecker{} }

func (c *DrainChecker) Name() string { return "shutdown" }

// Drain marks the instance as shutting down.
func (c *DrainChecker) Drain() { c.draining.Store(true) }

func (c *DrainChecker) Check(context.Context) CheckResult {
	if c.draining.Load() {
		return CheckResult{Status: StatusUnhealthy, Message: "draining"}
	}
	return CheckResult{Status: StatusHealthy}
}

// CapacityChecker reports degraded when nearly every upstream slot is busy.
type CapacityChecker struct {
	usage func() (inUse, capacity int64)
}

// NewCapacityChecker builds a checker over a slot usage source.
func NewCapacityChecker(usage func() (inUse, capacity int64)) *CapacityChecker {
	return &CapacityChecker{usage: usage}
}

func (c *CapacityChecker) Name() string { return "upstream_slots" }

func (c *CapacityChecker) Check(context.Context) CheckResult {
	inUse, capacity := c.usage()
	msg := fmt.Sprintf("%d/%d in use", inUse, capacity)
	if capacity > 0 && inUse*10 >= capacity*9 {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// CheckFunc adapts a function into a named Checker.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewCheckFunc(name string, fn func(ctx context.Context) CheckResult) CheckFunc {
	return CheckFunc{name: name, fn: fn}
}

func (c CheckFunc) Name() string { return c.name }

func (c CheckFunc) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
