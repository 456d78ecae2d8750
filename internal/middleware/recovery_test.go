package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryAnswersWithJSONRPCError(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: logger.InfoLevel, Output: &buf})

	handler := Recovery(DefaultRecoveryConfig(log))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil memory")
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, jsonRPCInternalError, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, buf.String(), "nil memory")
	assert.Contains(t, buf.String(), "abc")
}

func TestRecoveryPassesThrough(t *testing.T) {
	handler := Recovery(DefaultRecoveryConfig(nil))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRecoveryRepanicsAbort(t *testing.T) {
	handler := Recovery(DefaultRecoveryConfig(nil))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
