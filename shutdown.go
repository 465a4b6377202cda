// shutdown.go: Exactly-once graceful teardown
//
// This file implements the ShutdownController struct and its methods. The
// controller owns the teardown state machine and runs the proper shutdown
// sequence: shutdown hook -> plugin teardown -> connection close, the whole
// sequence bounded by a timeout.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ShutdownTimeoutError indicates that the teardown sequence did not finish
// inside the configured window. Teardown keeps running in the background;
// the caller is simply no longer waiting for it.
type ShutdownTimeoutError struct {
	Timeout time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("Shutdown timeout after %dms", e.Timeout.Milliseconds())
}

// shutdownHook is one registered teardown step, kept with the plugin name
// that owns it for logging.
type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

// ShutdownController runs graceful teardown exactly once.
//
// Its state cell moves ShutdownNotStarted -> ShutdownInProgress ->
// ShutdownCompleted and never backwards. The first Execute call performs the
// real teardown; every later or concurrent call waits for that run and
// returns its outcome. Failing steps are logged and do not stop the steps
// after them, so a misbehaving plugin cannot keep the connection open.
type ShutdownController struct {
	conn   Connection
	opts   *ShutdownOptions
	logger Logger

	state  atomic.Int32
	done   chan struct{}
	result error

	mu    sync.Mutex
	hooks []shutdownHook
}

// NewShutdownController builds a controller around conn. Nil options get
// defaults.
func NewShutdownController(conn Connection, opts *ShutdownOptions) *ShutdownController {
	options := opts.withDefaults()
	return &ShutdownController{
		conn:   conn,
		opts:   options,
		logger: options.Logger,
		done:   make(chan struct{}),
	}
}

// RegisterTeardown appends a teardown step. Steps run in registration order
// during Execute. Registration after teardown has started is ignored.
func (sc *ShutdownController) RegisterTeardown(name string, fn func(ctx context.Context) error) {
	if fn == nil || sc.IsShuttingDown() {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.hooks = append(sc.hooks, shutdownHook{name: name, fn: fn})
}

// Execute performs teardown, or waits for the teardown already running.
//
// The winning caller runs the sequence bounded by the configured timeout and
// stores the outcome; that stored outcome is what every caller receives. A
// waiting caller whose own context expires first gets its context error
// instead, without affecting the teardown.
func (sc *ShutdownController) Execute(ctx context.Context) error {
	if sc.state.CompareAndSwap(int32(ShutdownNotStarted), int32(ShutdownInProgress)) {
		sc.run()
		return sc.result
	}

	select {
	case <-sc.done:
		return sc.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the teardown sequence raced against the timeout. Exactly one
// goroutine ever gets here.
func (sc *ShutdownController) run() {
	defer close(sc.done)
	defer sc.state.Store(int32(ShutdownCompleted))

	sc.logger.Info("starting graceful shutdown",
		"timeout", sc.opts.Timeout,
		"teardown_steps", len(sc.hooksSnapshot()))

	tctx, cancel := context.WithTimeout(context.Background(), sc.opts.Timeout)
	defer cancel()

	timer := time.NewTimer(sc.opts.Timeout)
	defer timer.Stop()

	outcome := make(chan error, 1)
	go func() {
		outcome <- sc.teardown(tctx)
	}()

	select {
	case err := <-outcome:
		sc.result = err
		if err != nil {
			sc.logger.Error("graceful shutdown completed with errors", "error", err)
			return
		}
		sc.logger.Info("graceful shutdown completed")
	case <-timer.C:
		sc.result = &ShutdownTimeoutError{Timeout: sc.opts.Timeout}
		sc.logger.Error("graceful shutdown timed out", "timeout", sc.opts.Timeout)
	}
}

// teardown runs the sequence: shutdown hook, plugin teardown steps in
// registration order, connection close. Every step runs regardless of
// earlier failures; the first failure becomes the returned error.
func (sc *ShutdownController) teardown(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if sc.opts.OnShutdown != nil {
		if err := sc.opts.OnShutdown(ctx); err != nil {
			sc.logger.Warn("shutdown hook failed", "error", err)
			record(NewShutdownHookError(err))
		}
	}

	for _, hook := range sc.hooksSnapshot() {
		if err := hook.fn(ctx); err != nil {
			sc.logger.Warn("plugin teardown failed",
				"plugin", hook.name,
				"error", err)
			record(NewShutdownTeardownError(hook.name, err))
		}
	}

	if sc.conn != nil {
		if err := sc.conn.Close(ctx); err != nil {
			sc.logger.Error("connection close failed", "error", err)
			record(NewShutdownCloseError(err))
		}
	}

	return firstErr
}

func (sc *ShutdownController) hooksSnapshot() []shutdownHook {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	snapshot := make([]shutdownHook, len(sc.hooks))
	copy(snapshot, sc.hooks)
	return snapshot
}

// State returns the current teardown state.
func (sc *ShutdownController) State() ShutdownState {
	return ShutdownState(sc.state.Load())
}

// IsShuttingDown reports whether teardown has started or finished.
func (sc *ShutdownController) IsShuttingDown() bool {
	return sc.state.Load() != int32(ShutdownNotStarted)
}

// Wait blocks until teardown finishes or ctx expires, returning the teardown
// outcome. It does not trigger teardown itself.
func (sc *ShutdownController) Wait(ctx context.Context) error {
	select {
	case <-sc.done:
		return sc.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleSignals listens for OS signals and runs Execute when one arrives.
// With no explicit signals it listens for SIGINT and SIGTERM. The returned
// channel delivers the shutdown outcome and closes; cancel ctx to stop
// listening without shutting down.
func (sc *ShutdownController) HandleSignals(ctx context.Context, signals ...os.Signal) <-chan error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	result := make(chan error, 1)
	go func() {
		defer signal.Stop(sigCh)
		defer close(result)

		select {
		case sig := <-sigCh:
			sc.logger.Info("shutdown signal received", "signal", sig.String())
			result <- sc.Execute(context.Background())
		case <-ctx.Done():
		}
	}()

	return result
}

// GracefulShutdown closes conn under opts without keeping a controller
// around. It is the one-shot convenience over NewShutdownController plus
// Execute.
func GracefulShutdown(ctx context.Context, conn Connection, opts *ShutdownOptions) error {
	return NewShutdownController(conn, opts).Execute(ctx)
}
