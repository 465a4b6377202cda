// monitor_test.go: Tests for the periodic health monitor
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitor_InitialCheckPopulatesLastResult(t *testing.T) {
	conn := &fakeConn{}
	monitor := NewHealthMonitor(conn, &MonitorOptions{Interval: time.Hour})

	_, seen := monitor.LastResult()
	assert.False(t, seen)

	monitor.Start()
	defer monitor.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, seen := monitor.LastResult()
		return seen
	})
	result, _ := monitor.LastResult()
	assert.Equal(t, StateHealthy, result.Status)
	assert.Equal(t, 1, conn.probeCount())
}

func TestHealthMonitor_CheckFiresCallbacks(t *testing.T) {
	transitions := &journal{}
	results := 0
	monitor := NewHealthMonitor(&fakeConn{}, &MonitorOptions{
		OnResult: func(HealthCheckResult) { results++ },
		OnStateChange: func(previous, current HealthState) {
			transitions.add(previous.String() + "->" + current.String())
		},
	})

	monitor.Check(context.Background())
	monitor.Check(context.Background())

	assert.Equal(t, 2, results)
	assert.Equal(t, []string{"unknown->healthy"}, transitions.list())
}

func TestHealthMonitor_StateChangeOnDegradation(t *testing.T) {
	transitions := &journal{}
	conn := &fakeConn{}
	monitor := NewHealthMonitor(conn, &MonitorOptions{
		OnStateChange: func(previous, current HealthState) {
			transitions.add(previous.String() + "->" + current.String())
		},
	})

	monitor.Check(context.Background())
	conn.setProbeErr(fmt.Errorf("connection lost"))
	monitor.Check(context.Background())
	monitor.Check(context.Background())
	conn.setProbeErr(nil)
	monitor.Check(context.Background())

	assert.Equal(t, []string{
		"unknown->healthy",
		"healthy->unhealthy",
		"unhealthy->healthy",
	}, transitions.list())
}

func TestHealthMonitor_ConsecutiveFailures(t *testing.T) {
	conn := &fakeConn{}
	monitor := NewHealthMonitor(conn, nil)

	conn.setProbeErr(fmt.Errorf("down"))
	for i := 0; i < 3; i++ {
		monitor.Check(context.Background())
	}
	assert.Equal(t, int64(3), monitor.ConsecutiveFailures())

	conn.setProbeErr(nil)
	monitor.Check(context.Background())
	assert.Equal(t, int64(0), monitor.ConsecutiveFailures())
}

func TestHealthMonitor_PeriodicChecks(t *testing.T) {
	conn := &fakeConn{}
	monitor := NewHealthMonitor(conn, &MonitorOptions{Interval: 10 * time.Millisecond})

	monitor.Start()
	defer monitor.Stop()

	waitFor(t, 2*time.Second, func() bool { return conn.probeCount() >= 3 })
}

func TestHealthMonitor_StartStopIdempotent(t *testing.T) {
	monitor := NewHealthMonitor(&fakeConn{}, &MonitorOptions{Interval: time.Hour})

	assert.False(t, monitor.IsRunning())
	monitor.Start()
	monitor.Start()
	assert.True(t, monitor.IsRunning())

	monitor.Stop()
	monitor.Stop()
	assert.False(t, monitor.IsRunning())
}

func TestHealthMonitor_StopWaitsForGoroutine(t *testing.T) {
	monitor := NewHealthMonitor(&fakeConn{}, &MonitorOptions{Interval: time.Hour})
	monitor.Start()
	monitor.Stop()

	select {
	case <-monitor.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor goroutine did not exit after Stop")
	}
}

func TestHealthMonitor_Restart(t *testing.T) {
	conn := &fakeConn{}
	monitor := NewHealthMonitor(conn, &MonitorOptions{Interval: time.Hour})

	monitor.Start()
	monitor.Stop()
	<-monitor.Done()
	first := conn.probeCount()

	monitor.Start()
	defer monitor.Stop()
	waitFor(t, 2*time.Second, func() bool { return conn.probeCount() > first })
	require.True(t, monitor.IsRunning())
}
