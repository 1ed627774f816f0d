package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPChecker performs HTTP-based instance health checks.
//
// An instance is healthy iff the probe responds 2xx and, when the body is
// a JSON document with a "status" field, that field equals "healthy".
type HTTPChecker struct {
	// URL is the full probe URL (e.g. "http://10.0.0.5:8001/health")
	URL string

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client
}

// NewHTTPChecker creates a new HTTP health checker with a 5 s timeout.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL: url,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}

// Check performs the HTTP health check
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to create request: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("request failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer resp.Body.Close()

	// Read a bounded amount; health bodies are tiny.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	if healthy && isJSON(resp.Header.Get("Content-Type")) {
		var payload struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Status != "" {
			if payload.Status != "healthy" {
				healthy = false
				message = fmt.Sprintf("status %q reported by instance", payload.Status)
			}
		}
	}

	return Result{
		Healthy:   healthy,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
