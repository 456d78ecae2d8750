package health

import (
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/librus_mcp/pkg/logger"
)

// HealthResponse is the JSON body served by the probe endpoints.
type HealthResponse struct {
	Status  string                 `json:"status"` // "healthy" | "unhealthy"
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus represents the status of an individual check in the HTTP response.
type CheckStatus struct {
	Status   string `json:"status"` // "ok" | "error"
	Error    string `json:"error,omitempty"`
	Failures int    `json:"failures,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// LivenessHandler returns 200 while the process is alive and 503 when it should be restarted.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckLiveness(r.Context())
		h.writeHealthResponse(w, status, err)
	}
}

// ReadinessHandler returns 200 when the server can answer tool calls and 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckReadiness(r.Context())
		h.writeHealthResponse(w, status, err)
	}
}

// NewResponse converts a status into its wire form.
func NewResponse(status *HealthStatus, err error) HealthResponse {
	response := HealthResponse{Status: "healthy", Checks: make(map[string]CheckStatus, len(status.Checks))}
	if !status.Healthy {
		response.Status = "unhealthy"
		if err != nil {
			response.Message = err.Error()
		}
	}
	for _, result := range status.Checks {
		cs := CheckStatus{Status: "ok", Failures: result.Failures, Latency: result.Latency.String()}
		if !result.Healthy {
			cs.Status = "error"
			cs.Error = result.Error
		}
		response.Checks[result.Name] = cs
	}
	return response
}

func (h *HealthChecker) writeHealthResponse(w http.ResponseWriter, status *HealthStatus, err error) {
	body, marshalErr := json.Marshal(NewResponse(status, err))
	if marshalErr != nil {
		if h.logger != nil {
			h.logger.Error("Failed to encode health response", logger.ErrorField(marshalErr))
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(append(body, '\n'))
}
