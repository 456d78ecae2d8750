package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/librus_mcp/internal/storage_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newMonitor(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	cfg.Logger = logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	cfg.FailureThreshold = 1
	hm := NewHealthMonitor(cfg)

	router := chi.NewRouter()
	hm.Mount(router, "/health/live", "/health/ready")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestReadinessWithHealthyDependencies(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer portal.Close()

	srv := newMonitor(t, Config{
		PortalURL: portal.URL,
		Storage:   storage_manager.NewLocalFileProvider(t.TempDir()),
		Archive:   pingFunc(func(context.Context) error { return nil }),
		Version:   "1.2.3",
	})

	code, body := get(t, srv.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, statusReady, body["status"])
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, checks, "storage")
	assert.Contains(t, checks, "archive")
	assert.Contains(t, checks, "librus_portal")

	code, body = get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.2.3", body["version"])
}

func TestReadinessFailsWhenArchiveIsDown(t *testing.T) {
	srv := newMonitor(t, Config{
		Archive: pingFunc(func(context.Context) error { return errors.New("database is locked") }),
	})

	code, body := get(t, srv.URL+"/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, statusNotReady, body["status"])
	assert.Contains(t, body["error"], "archive")

	code, body = get(t, srv.URL+"/health/live")
	assert.Equal(t, http.StatusOK, code, "liveness ignores dependencies")
	assert.Equal(t, statusHealthy, body["status"])
}

func TestShuttingDownFailsReadiness(t *testing.T) {
	hm := NewHealthMonitor(Config{
		Logger:           logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
		FailureThreshold: 1,
	})
	rec := httptest.NewRecorder()
	hm.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	hm.MarkShuttingDown()
	rec = httptest.NewRecorder()
	hm.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutdown")
}
