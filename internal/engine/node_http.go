package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPNode performs an outbound HTTP call. Network errors and 5xx
// responses are retryable; 4xx responses fail the node immediately.
type HTTPNode struct {
	client *http.Client
}

// NewHTTPNode creates an HTTP node executor with the given client.
func NewHTTPNode(client *http.Client) *HTTPNode {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNode{client: client}
}

func (n *HTTPNode) Type() string { return "http_request" }

func (n *HTTPNode) Execute(ctx context.Context, in *Input) (*Output, error) {
	url, _ := in.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http_request node requires a url")
	}

	method, _ := in.Config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}
	method = strings.ToUpper(method)

	var body io.Reader
	if method != http.MethodGet {
		encoded, err := json.Marshal(in.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Hookflow/1.0")
	req.Header.Set("X-Correlation-ID", in.CorrelationID)
	if headers, ok := in.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, Retryable(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Retryable(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return nil, Retryable(fmt.Errorf("upstream returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	// Pass parsed JSON downstream when the upstream answers with it,
	// otherwise the raw text.
	var parsed any
	data := map[string]any{
		"status": resp.StatusCode,
	}
	if json.Unmarshal(respBody, &parsed) == nil {
		data["body"] = parsed
	} else {
		data["body"] = string(respBody)
	}

	return &Output{Data: data}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
