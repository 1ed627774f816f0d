package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// InternalResponse is the decoded result of a gateway-initiated call
type InternalResponse struct {
	StatusCode int
	// JSON holds the decoded body when the upstream returned JSON.
	JSON map[string]interface{}
	// Text holds the raw body otherwise.
	Text string
}

// InternalRequest is used by the gateway itself to call other services.
// The body, when non-nil, is JSON-encoded. The response is decoded as
// JSON when possible, otherwise returned as raw text plus status.
func (p *Proxy) InternalRequest(ctx context.Context, method, url string, body interface{}) (*InternalResponse, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("internal request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &InternalResponse{StatusCode: resp.StatusCode}
	var decoded map[string]interface{}
	if json.Unmarshal(raw, &decoded) == nil {
		out.JSON = decoded
	} else {
		out.Text = string(raw)
	}
	return out, nil
}
