package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredLogger(t *testing.T) {
	logBuffer := new(bytes.Buffer)
	testLogger := slog.New(slog.NewJSONHandler(logBuffer, nil))

	responseBody := "loan created"
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(responseBody))
	})

	req := httptest.NewRequest(http.MethodPost, "/loans", nil)
	req.RemoteAddr = "192.0.2.1:12345"
	req.Header.Set("User-Agent", "TestAgent/1.0")

	reqID := "req-id-42"
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, reqID))

	rr := httptest.NewRecorder()
	StructuredLogger(testLogger)(nextHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, responseBody, rr.Body.String())

	var logEntry map[string]interface{}
	err := json.Unmarshal(logBuffer.Bytes(), &logEntry)
	require.NoError(t, err, "Failed to unmarshal log output")

	assert.Equal(t, "INFO", logEntry["level"])
	assert.Equal(t, "Served request", logEntry["msg"])
	assert.Equal(t, req.Proto, logEntry["proto"])
	assert.Equal(t, http.MethodPost, logEntry["method"])
	assert.Equal(t, "/loans", logEntry["path"])
	assert.Equal(t, req.RemoteAddr, logEntry["remote_addr"])
	assert.Equal(t, "TestAgent/1.0", logEntry["user_agent"])
	assert.Equal(t, float64(http.StatusCreated), logEntry["status"])
	assert.Equal(t, float64(len(responseBody)), logEntry["bytes_written"])
	assert.Equal(t, reqID, logEntry["request_id"])

	latency, ok := logEntry["latency_ms"].(float64)
	assert.True(t, ok, "Latency should be a float64")
	assert.GreaterOrEqual(t, latency, 0.0)
}
