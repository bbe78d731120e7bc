package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skein-dev/skein/pkg/template"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPRequestHandler calls an HTTP endpoint. Config keys: "url" (required,
// templated against input), "method" (default GET), "headers" (string map),
// "body" (templated string) and "timeout" (Go duration). JSON response bodies
// decode into the output under "body"; anything else is returned as text.
type HTTPRequestHandler struct {
	client *http.Client
}

func NewHTTPRequestHandler() *HTTPRequestHandler {
	return &HTTPRequestHandler{client: &http.Client{}}
}

func (h *HTTPRequestHandler) Execute(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error) {
	rendered, err := template.RenderConfig(config, input)
	if err != nil {
		return nil, err
	}

	url, _ := rendered["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http_request handler requires a 'url' config value")
	}

	method, _ := rendered["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	timeout := defaultHTTPTimeout

	if raw, ok := rendered["timeout"].(string); ok && raw != "" {
		timeout, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("http_request handler: invalid timeout %q", raw)
		}
	}

	// Template rendering coerces JSON-shaped bodies into maps; marshal those
	// back to bytes.
	var body io.Reader

	switch payload := rendered["body"].(type) {
	case string:
		if payload != "" {
			body = strings.NewReader(payload)
		}
	case map[string]any, []any:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if headers, ok := rendered["headers"].(map[string]any); ok {
		for key, value := range headers {
			if str, ok := value.(string); ok {
				req.Header.Set(key, str)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
	}

	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		output["body"] = decoded
	} else {
		output["body"] = string(raw)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return output, fmt.Errorf("http request returned status %d", resp.StatusCode)
	}

	return output, nil
}
