// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lewisedginton/librus_mcp/pkg/logger"
)

// jsonRPCInternalError is what MCP clients receive when a request handler panics.
const jsonRPCInternalError = `{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal server error"},"id":null}`

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	Logger              logger.Logger
	EnableStackTrace    bool   // Whether to log full stack traces
	ResponseMessage     string // Custom message to return to clients
	ResponseContentType string // Content type for error responses
}

// DefaultRecoveryConfig answers with a JSON-RPC internal error
func DefaultRecoveryConfig(log logger.Logger) RecoveryConfig {
	return RecoveryConfig{
		Logger:              log,
		EnableStackTrace:    true,
		ResponseMessage:     jsonRPCInternalError,
		ResponseContentType: "application/json",
	}
}

// Recovery returns a middleware that recovers from panics and logs them.
// http.ErrAbortHandler is re-panicked so the server aborts the connection.
func Recovery(config RecoveryConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(rec)
				}
				handlePanic(w, r, rec, config)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func handlePanic(w http.ResponseWriter, r *http.Request, rec any, config RecoveryConfig) {
	var stackTrace string
	if config.EnableStackTrace {
		stackTrace = string(debug.Stack())
	}
	logPanic(r, rec, stackTrace, config.Logger)

	w.Header().Set("Content-Type", config.ResponseContentType)
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusInternalServerError)
	if config.ResponseMessage != "" {
		_, _ = w.Write([]byte(config.ResponseMessage))
	}
}

func logPanic(r *http.Request, rec any, stackTrace string, log logger.Logger) {
	if log == nil {
		return
	}

	fields := []logger.LogField{
		logger.StringField("panic_error", fmt.Sprintf("%v", rec)),
		logger.HTTPMethodField(r.Method),
		logger.HTTPPathField(r.URL.Path),
		logger.ClientIPField(r.RemoteAddr),
		logger.StringField("user_agent", r.UserAgent()),
	}
	if id := logger.GetCorrelationIDFromContext(r.Context()); id != "" {
		fields = append(fields, logger.CorrelationIDField(id))
	}
	if session := r.Header.Get("Mcp-Session-Id"); session != "" {
		fields = append(fields, logger.StringField("mcp_session_id", session))
	}
	if stackTrace != "" {
		fields = append(fields, logger.StringField("stack_trace", stackTrace))
	}

	log.Error("HTTP request panic recovered", fields...)
}
