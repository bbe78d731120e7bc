package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skein-dev/skein/pkg/registry"
)

func TestRegisterDefaults(t *testing.T) {
	logger := slog.Default()
	reg := registry.NewRegistry(logger)

	RegisterDefaults(logger, reg)

	for _, name := range []string{"log", "transform", "http_request", "delay"} {
		assert.True(t, reg.Has(name), name)
	}
}

func TestLogHandlerRendersMessage(t *testing.T) {
	handler := NewLogHandler(slog.Default())

	output, err := handler.Execute(context.Background(),
		map[string]any{"order_id": "o-1"},
		map[string]any{"message": `processing {{ .input.order_id }}`, "level": "debug"})
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestTransformHandlerObjectResult(t *testing.T) {
	handler := NewTransformHandler()

	output, err := handler.Execute(context.Background(),
		map[string]any{"first": "Ada", "last": "Lovelace"},
		map[string]any{"expression": `{"full_name": "{{ .input.first }} {{ .input.last }}"}`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"full_name": "Ada Lovelace"}, output)
}

func TestTransformHandlerScalarResult(t *testing.T) {
	handler := NewTransformHandler()

	output, err := handler.Execute(context.Background(),
		map[string]any{"amount": 21},
		map[string]any{"expression": `{{ .input.amount }}`, "target": "doubled_input"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doubled_input": float64(21)}, output)
}

func TestTransformHandlerRequiresExpression(t *testing.T) {
	handler := NewTransformHandler()

	_, err := handler.Execute(context.Background(), nil, map[string]any{})
	require.Error(t, err)
}

func TestHTTPRequestHandler(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	handler := NewHTTPRequestHandler()

	output, err := handler.Execute(context.Background(),
		map[string]any{"order_id": "o-9"},
		map[string]any{
			"url":     server.URL,
			"method":  "post",
			"headers": map[string]any{"Content-Type": "application/json"},
			"body":    `{"order": "{{ .input.order_id }}"}`,
		})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, output["body"])
}

func TestHTTPRequestHandlerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	handler := NewHTTPRequestHandler()

	output, err := handler.Execute(context.Background(), nil, map[string]any{"url": server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, http.StatusBadGateway, output["status_code"])
}

func TestHTTPRequestHandlerRequiresURL(t *testing.T) {
	handler := NewHTTPRequestHandler()

	_, err := handler.Execute(context.Background(), nil, map[string]any{})
	require.Error(t, err)
}

func TestDelayHandler(t *testing.T) {
	handler := NewDelayHandler()

	start := time.Now()
	_, err := handler.Execute(context.Background(), nil, map[string]any{"duration": "20ms"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDelayHandlerObservesCancellation(t *testing.T) {
	handler := NewDelayHandler()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := handler.Execute(ctx, nil, map[string]any{"duration": "10s"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDelayHandlerRejectsBadDuration(t *testing.T) {
	handler := NewDelayHandler()

	_, err := handler.Execute(context.Background(), nil, map[string]any{"duration": "soon"})
	require.Error(t, err)
}
