// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the process lifecycle: serve until the context ends,
// then drain and shut down within a bounded window.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 15 * time.Second

// Server is the HTTP surface run by the daemon.
type Server interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// Deps configures an App.
type Deps struct {
	Logger zerolog.Logger
	Server Server
	// Listener is used when set; otherwise ListenAddr is bound at Run.
	Listener        net.Listener
	ListenAddr      string
	ShutdownTimeout time.Duration
	// OnDrain runs before the server stops accepting connections.
	OnDrain func()
}

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

// App runs the server and executes shutdown hooks in reverse order.
type App struct {
	logger          zerolog.Logger
	server          Server
	ln              net.Listener
	addr            string
	shutdownTimeout time.Duration
	onDrain         func()
	hooks           []shutdownHook
}

// NewApp validates deps and returns an App.
func NewApp(deps Deps) (*App, error) {
	if deps.Server == nil {
		return nil, ErrMissingServer
	}
	if deps.Listener == nil && deps.ListenAddr == "" {
		return nil, ErrMissingListenAddr
	}
	timeout := deps.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &App{
		logger:          deps.Logger,
		server:          deps.Server,
		ln:              deps.Listener,
		addr:            deps.ListenAddr,
		shutdownTimeout: timeout,
		onDrain:         deps.OnDrain,
	}, nil
}

// AddShutdownHook registers fn to run after the server has stopped.
func (a *App) AddShutdownHook(name string, fn func(ctx context.Context) error) {
	a.hooks = append(a.hooks, shutdownHook{name: name, fn: fn})
}

// Run serves until ctx is canceled or the server fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln := a.ln
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", a.addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil {
			a.logger.Error().Err(err).Str("event", "server.failed").Msg("server failed")
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

func (a *App) shutdown(parent context.Context) error {
	a.logger.Info().Str("event", "daemon.shutdown").Dur("timeout", a.shutdownTimeout).Msg("shutting down")

	ctx, cancel := context.WithTimeout(parent, a.shutdownTimeout)
	defer cancel()

	if a.onDrain != nil {
		a.onDrain()
	}

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	for i := len(a.hooks) - 1; i >= 0; i-- {
		hook := a.hooks[i]
		start := time.Now()
		if err := hook.fn(ctx); err != nil {
			a.logger.Error().Err(err).Str("hook", hook.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		a.logger.Debug().Str("hook", hook.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
	return nil
}
