package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handle(t *testing.T, h slog.Handler, level slog.Level, msg string, attrs ...slog.Attr) {
	t.Helper()
	r := slog.NewRecord(time.Date(2026, 1, 15, 10, 30, 45, 123000000, time.UTC), level, msg, 0)
	r.AddAttrs(attrs...)
	require.NoError(t, h.Handle(context.Background(), r))
}

func TestTerminalHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	handle(t, h, slog.LevelInfo, "indexed post", slog.Int64("id", 42))

	out := buf.String()
	assert.Contains(t, out, "10:30:45.123")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "indexed post")
	assert.Contains(t, out, "id=")
	assert.Contains(t, out, "42")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminalHandler_Levels(t *testing.T) {
	for level, label := range map[slog.Level]string{
		slog.LevelDebug: "DBG",
		slog.LevelInfo:  "INF",
		slog.LevelWarn:  "WRN",
		slog.LevelError: "ERR",
	} {
		var buf bytes.Buffer
		handle(t, newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}), level, "msg")
		assert.Contains(t, buf.String(), label)
	}
}

func TestTerminalHandler_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
}

func TestTerminalHandler_DefaultLevel(t *testing.T) {
	h := newTerminalHandler(&bytes.Buffer{}, nil)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestTerminalHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	grouped := h.WithAttrs([]slog.Attr{slog.String("component", "indexer")}).WithGroup("queue")
	grouped = grouped.WithAttrs([]slog.Attr{slog.String("name", "memes")})
	handle(t, grouped, slog.LevelInfo, "received", slog.Int("count", 3))

	out := buf.String()
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "queue.name=")
	assert.Contains(t, out, "queue.count=")
	assert.Same(t, h, h.WithGroup(""))
}

func TestTerminalHandler_GroupAttr(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	handle(t, h, slog.LevelInfo, "msg", slog.Group("request", slog.String("method", "POST"), slog.Int("status", 201)))

	assert.Contains(t, buf.String(), "request.method=")
	assert.Contains(t, buf.String(), "request.status=")
}

func TestTerminalHandler_ErrorValues(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	handle(t, h, slog.LevelError, "receive failed", slog.String("error", "connection refused"))

	out := buf.String()
	assert.Contains(t, out, `"connection refused"`)
	assert.Contains(t, out, ansiRed)
	assert.Contains(t, out, ansiBold)
}
