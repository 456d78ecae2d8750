// Package checkers holds health.Check implementations for the service's dependencies.
package checkers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPChecker checks that an HTTP endpoint answers, e.g. the school portal login page.
// Any status below 500 counts as reachable.
type HTTPChecker struct {
	url    string
	method string
	client *http.Client
	name   string
}

// NewHTTPChecker creates a checker that issues GET requests with a 10 second timeout.
// If name is empty, defaults to the URL.
func NewHTTPChecker(url string, name string) *HTTPChecker {
	return NewHTTPCheckerWithClient(url, name, &http.Client{Timeout: 10 * time.Second})
}

// NewHTTPCheckerWithClient creates a checker that uses the given client.
func NewHTTPCheckerWithClient(url string, name string, client *http.Client) *HTTPChecker {
	if name == "" {
		name = url
	}
	return &HTTPChecker{url: url, name: name, method: http.MethodGet, client: client}
}

// WithMethod switches the probe method, HEAD being a cheap option for heavy pages.
func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.method = method
	return h
}

// Name returns the name of this health check.
func (h *HTTPChecker) Name() string {
	return h.name
}

// Check performs one request to the configured endpoint.
func (h *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("unhealthy status code: %d", resp.StatusCode)
	}
	return nil
}
