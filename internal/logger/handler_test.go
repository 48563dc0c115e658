package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookscape/internal/config"
)

type ctxKey struct{}

func TestHandlerAddsRequestIdAndKeepsItWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(config.Logging{Level: "info", Format: "json"}, &buf, "/nowhere", ctxKey{})
	require.NoError(t, err)

	l := slog.New(h).With(slog.String("component", "test"))
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	l.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "test", rec["component"])
	assert.Contains(t, rec, "source")
}

func TestHandlerWithoutRequestIdKey(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(config.Logging{Level: "info", Format: "json"}, &buf, "", nil)
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), struct{}{}, "stray")
	slog.New(h).InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.NotContains(t, rec, "request_id")
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(config.Logging{Level: "warn", Format: "text"}, &buf, "", nil)
	require.NoError(t, err)

	l := slog.New(h)
	l.Info("dropped")
	l.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewHandlerRejectsBadConfig(t *testing.T) {
	_, err := NewHandler(config.Logging{Level: "loud", Format: "text"}, &bytes.Buffer{}, "", nil)
	assert.Error(t, err)

	_, err = NewHandler(config.Logging{Level: "info", Format: "xml"}, &bytes.Buffer{}, "", nil)
	assert.Error(t, err)
}

func TestPGXTracerDropsArgs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tracer := NewPGXTracer(l)
	tracer.Logger.Log(context.Background(), tracelog.LogLevelInfo, "Query", map[string]any{
		"sql":  "SELECT 1",
		"args": []any{"secret"},
		"pid":  uint32(7),
	})

	out := buf.String()
	assert.Contains(t, out, "SELECT 1")
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, `"pid"`)
	assert.Contains(t, out, `"level":"DEBUG"`)
}
