// shutdown_test.go: Tests for the graceful shutdown controller
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownController_RunsSequenceInOrder(t *testing.T) {
	j := &journal{}
	conn := &fakeConn{}
	sc := NewShutdownController(conn, &ShutdownOptions{
		OnShutdown: func(ctx context.Context) error {
			j.add("hook")
			return nil
		},
	})
	sc.RegisterTeardown("cache", func(ctx context.Context) error {
		j.add("teardown:cache")
		return nil
	})
	sc.RegisterTeardown("audit", func(ctx context.Context) error {
		j.add("teardown:audit")
		return nil
	})
	sc.RegisterTeardown("nil-step", nil)

	require.NoError(t, sc.Execute(context.Background()))
	assert.Equal(t, []string{"hook", "teardown:cache", "teardown:audit"}, j.list())
	assert.Equal(t, 1, conn.closeCount())
}

func TestShutdownController_StateTransitions(t *testing.T) {
	sc := NewShutdownController(&fakeConn{}, nil)

	assert.Equal(t, ShutdownNotStarted, sc.State())
	assert.False(t, sc.IsShuttingDown())

	require.NoError(t, sc.Execute(context.Background()))
	assert.Equal(t, ShutdownCompleted, sc.State())
	assert.True(t, sc.IsShuttingDown())
}

func TestShutdownController_ExactlyOnceUnderConcurrency(t *testing.T) {
	conn := &fakeConn{}
	sc := NewShutdownController(conn, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sc.Execute(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, conn.closeCount())
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestShutdownController_TimeoutMessage(t *testing.T) {
	conn := &fakeConn{closeDelay: 500 * time.Millisecond}
	sc := NewShutdownController(conn, &ShutdownOptions{Timeout: 50 * time.Millisecond})

	err := sc.Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, "Shutdown timeout after 50ms", err.Error())

	var timeoutErr *ShutdownTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
	assert.Equal(t, ShutdownCompleted, sc.State())
}

func TestShutdownController_FailuresDoNotStopLaterSteps(t *testing.T) {
	j := &journal{}
	conn := &fakeConn{}
	sc := NewShutdownController(conn, &ShutdownOptions{
		OnShutdown: func(ctx context.Context) error {
			return fmt.Errorf("hook exploded")
		},
	})
	sc.RegisterTeardown("first", func(ctx context.Context) error {
		j.add("first")
		return nil
	})
	sc.RegisterTeardown("second", func(ctx context.Context) error {
		j.add("second")
		return nil
	})

	err := sc.Execute(context.Background())

	requireErrorCode(t, err, ErrCodeShutdownHookFailed)
	assert.Equal(t, []string{"first", "second"}, j.list())
	assert.Equal(t, 1, conn.closeCount(), "connection must close even after earlier failures")
}

func TestShutdownController_TeardownFailureReported(t *testing.T) {
	conn := &fakeConn{}
	sc := NewShutdownController(conn, nil)
	sc.RegisterTeardown("flaky", func(ctx context.Context) error {
		return fmt.Errorf("step exploded")
	})

	err := sc.Execute(context.Background())

	structured := requireErrorCode(t, err, ErrCodeShutdownTeardownFailed)
	assert.Equal(t, "flaky", structured.Context["plugin_name"])
	assert.Equal(t, 1, conn.closeCount())
}

func TestShutdownController_CloseFailureReported(t *testing.T) {
	conn := &fakeConn{closeErr: fmt.Errorf("socket already gone")}
	sc := NewShutdownController(conn, nil)

	err := sc.Execute(context.Background())
	requireErrorCode(t, err, ErrCodeShutdownCloseFailed)
}

func TestShutdownController_ConcurrentCallersShareOutcome(t *testing.T) {
	conn := &fakeConn{closeErr: fmt.Errorf("socket already gone")}
	sc := NewShutdownController(conn, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sc.Execute(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, conn.closeCount())
	for _, err := range errs {
		requireErrorCode(t, err, ErrCodeShutdownCloseFailed)
	}
}

func TestShutdownController_WaiterContextExpiry(t *testing.T) {
	conn := &fakeConn{closeDelay: 100 * time.Millisecond}
	sc := NewShutdownController(conn, nil)

	winnerDone := make(chan struct{})
	go func() {
		defer close(winnerDone)
		_ = sc.Execute(context.Background())
	}()
	waitFor(t, 2*time.Second, sc.IsShuttingDown)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := sc.Execute(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-winnerDone
	assert.Equal(t, 1, conn.closeCount())
}

func TestShutdownController_RegistrationAfterStartIgnored(t *testing.T) {
	j := &journal{}
	sc := NewShutdownController(&fakeConn{}, nil)
	require.NoError(t, sc.Execute(context.Background()))

	sc.RegisterTeardown("late", func(ctx context.Context) error {
		j.add("late")
		return nil
	})

	require.NoError(t, sc.Execute(context.Background()))
	assert.Empty(t, j.list())
}

func TestShutdownController_Wait(t *testing.T) {
	conn := &fakeConn{closeDelay: 30 * time.Millisecond}
	sc := NewShutdownController(conn, nil)

	go func() { _ = sc.Execute(context.Background()) }()

	require.NoError(t, sc.Wait(context.Background()))
	assert.Equal(t, ShutdownCompleted, sc.State())
}

func TestShutdownController_WaitDoesNotTrigger(t *testing.T) {
	conn := &fakeConn{}
	sc := NewShutdownController(conn, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sc.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ShutdownNotStarted, sc.State())
	assert.Equal(t, 0, conn.closeCount())
}

func TestShutdownController_HandleSignalsCancelStopsListening(t *testing.T) {
	sc := NewShutdownController(&fakeConn{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	outcome := sc.HandleSignals(ctx)
	cancel()

	select {
	case _, ok := <-outcome:
		assert.False(t, ok, "channel must close without an outcome when ctx is cancelled")
	case <-time.After(2 * time.Second):
		t.Fatal("signal listener did not exit on ctx cancel")
	}
	assert.False(t, sc.IsShuttingDown())
}

func TestShutdownController_HandleSignalsRunsShutdown(t *testing.T) {
	conn := &fakeConn{}
	sc := NewShutdownController(conn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	outcome := sc.HandleSignals(ctx, syscall.SIGUSR1)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-outcome:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("signal did not trigger shutdown")
	}
	assert.Equal(t, 1, conn.closeCount())
	assert.Equal(t, ShutdownCompleted, sc.State())
}

func TestGracefulShutdown(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, GracefulShutdown(context.Background(), conn, nil))
	assert.Equal(t, 1, conn.closeCount())
}

func TestShutdownTimeoutError_Message(t *testing.T) {
	err := &ShutdownTimeoutError{Timeout: 30 * time.Second}
	assert.Equal(t, "Shutdown timeout after 30000ms", err.Error())
}
