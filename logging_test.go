// logging_test.go: logging interface tests
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Dispatch(t *testing.T) {
	custom := NewTestLogger()
	assert.Same(t, Logger(custom), NewLogger(custom))

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.IsType(t, &SlogAdapter{}, NewLogger(slogger))

	assert.IsType(t, &NoOpLogger{}, NewLogger(nil))

	assert.Panics(t, func() { NewLogger(42) })
}

func TestTestLogger_CapturesMessages(t *testing.T) {
	logger := NewTestLogger()

	logger.Debug("probe scheduled")
	logger.Info("executor ready", "plugins", 2)
	logger.Warn("slow query detected", "duration_ms", 150)
	logger.Error("probe failed")

	assert.True(t, logger.HasMessage("DEBUG", "probe scheduled"))
	assert.True(t, logger.HasMessage("INFO", "executor ready"))
	assert.True(t, logger.HasMessage("WARN", "slow query detected"))
	assert.True(t, logger.HasMessage("ERROR", "probe failed"))
	assert.False(t, logger.HasMessage("INFO", "never logged"))

	logger.Clear()
	assert.False(t, logger.HasMessage("INFO", "executor ready"))
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))

	scoped := adapter.With("component", "health")
	scoped.Info("probe succeeded")

	output := buf.String()
	assert.Contains(t, output, "component=health")
	assert.Contains(t, output, "probe succeeded")
}

func TestNoOpLogger_DiscardsEverything(t *testing.T) {
	logger := NewNoOpLogger()

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("dropped")
	logger.Error("dropped")
	require.NotNil(t, logger.With("key", "value"))
}

func TestLoggerContextRoundTrip(t *testing.T) {
	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)

	assert.Same(t, Logger(logger), LoggerFromContext(ctx))
	assert.IsType(t, &NoOpLogger{}, LoggerFromContext(context.Background()))
}
