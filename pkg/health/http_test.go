package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessHandler(t *testing.T) {
	h := New()
	h.AddLivenessCheck(NewCheckFunc("process", func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["process"].Status)
}

func TestReadinessHandlerUnhealthy(t *testing.T) {
	h := New(WithFailureThreshold(1))
	h.AddReadinessCheck(NewCheckFunc("portal", func(context.Context) error { return errors.New("connection refused") }))

	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Message, "portal")
	assert.Equal(t, "error", body.Checks["portal"].Status)
	assert.Equal(t, "connection refused", body.Checks["portal"].Error)
	assert.Equal(t, 1, body.Checks["portal"].Failures)
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse(&HealthStatus{Healthy: true, Checks: []CheckResult{{Name: "redis", Healthy: true}}}, nil)
	assert.Equal(t, "healthy", resp.Status)
	assert.Empty(t, resp.Message)
	assert.Equal(t, "ok", resp.Checks["redis"].Status)
}
