package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestWithFields_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, false).WithFields(map[string]any{"email": "alice@x.com"})

	logger.Info("hello")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice@x.com", entries[0]["email"])
	assert.Equal(t, "hello", entries[0]["msg"])
}

func TestGetLoggerFromContext(t *testing.T) {
	logger := NewNopLogger()
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, GetLoggerFromContext(ctx))
	assert.NotNil(t, GetLoggerFromContext(context.Background()))
}

func TestRequestLogger_LogsCompletionWithStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, false)

	var fromCtx *Logger
	h := middleware.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetLoggerFromContext(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/verify/abc", nil))

	require.NotNil(t, fromCtx)
	entries := decodeLines(t, &buf)
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	assert.Equal(t, "request completed", last["msg"])
	assert.Equal(t, "WARN", last["level"])
	assert.EqualValues(t, http.StatusNotFound, last["status"])
	assert.Equal(t, "/api/auth/verify/abc", last["path"])
	assert.NotEmpty(t, last["request_id"])
}

func TestRequestLogger_QuietPathsOnlyLogFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, false)

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, strings.TrimSpace(buf.String()))
}
