// Package logger_test contains tests for the logger package
package logger_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/shakurocom/iOS-Toolbox-sub000/internal/config"
	"github.com/shakurocom/iOS-Toolbox-sub000/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func TestSetupWithWriter_Levels(t *testing.T) {
	tests := []struct {
		level       string
		debugLogged bool
		infoLogged  bool
		warnLogged  bool
	}{
		{level: "debug", debugLogged: true, infoLogged: true, warnLogged: true},
		{level: "INFO", debugLogged: false, infoLogged: true, warnLogged: true},
		{level: "warn", debugLogged: false, infoLogged: false, warnLogged: true},
		{level: "error", debugLogged: false, infoLogged: false, warnLogged: false},
		{level: "bogus", debugLogged: false, infoLogged: true, warnLogged: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			restoreDefault(t)
			buf := &logger.TestLogBuffer{}

			l, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: tt.level}, buf)
			require.NoError(t, err)
			require.NotNil(t, l)

			l.Debug("debug message")
			l.Info("info message")
			l.Warn("warn message")

			out := buf.String()
			assert.Equal(t, tt.debugLogged, strings.Contains(out, "debug message"))
			assert.Equal(t, tt.infoLogged, strings.Contains(out, "info message"))
			assert.Equal(t, tt.warnLogged, strings.Contains(out, "warn message"))
		})
	}
}

func TestSetupWithWriter_JSONAndDefault(t *testing.T) {
	restoreDefault(t)
	buf := &logger.TestLogBuffer{}

	_, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: "info"}, buf)
	require.NoError(t, err)

	// Setup installs the logger as the default
	slog.Info("operation finished", "operation_type", 3, "outcome", "success")

	entries, err := buf.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "operation finished", entries[0].Message())
	assert.Equal(t, float64(3), entries[0]["operation_type"])
	assert.Equal(t, "success", entries[0]["outcome"])

	entry, ok := buf.Find("operation finished")
	require.True(t, ok)
	assert.Equal(t, entries[0], entry)
	_, ok = buf.Find("operation started")
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	level, ok := logger.ParseLevel(" Warn ")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelWarn, level)

	level, ok = logger.ParseLevel("fatal")
	assert.False(t, ok)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestContextLogger(t *testing.T) {
	restoreDefault(t)
	buf := &logger.TestLogBuffer{}
	l := slog.New(slog.NewJSONHandler(buf, nil)).With("request_id", "abc")
	fallback := slog.New(slog.NewJSONHandler(&logger.TestLogBuffer{}, nil))

	ctx := logger.WithLogger(context.Background(), l)

	assert.Same(t, l, logger.FromContext(ctx))
	assert.Same(t, l, logger.FromContextOrDefault(ctx, fallback))
	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, slog.Default(), logger.FromContext(context.Background()))

	logger.FromContext(ctx).Info("scoped")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
}

func TestTestLogBufferRejectsNonJSON(t *testing.T) {
	buf := &logger.TestLogBuffer{}
	_, err := buf.Write([]byte("{\"msg\":\"ok\"}\n\nnot json\n"))
	require.NoError(t, err)

	_, err = buf.Entries()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log line 3")

	buf.Reset()
	msgs, err := buf.Messages()
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
