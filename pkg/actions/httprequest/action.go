// Package httprequest provides the webhook action.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrHTTPStatus is returned for non-2xx responses.
var ErrHTTPStatus = errors.New("unexpected http status")

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Action performs an HTTP request.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
	Timeout time.Duration

	client Doer
}

// NewAction creates an Action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, _ := config["url"].(string)
	if strings.TrimSpace(url) == "" {
		return nil, protocol.ConfigError("missing required field 'url'")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)

	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			strVal, ok := v.(string)
			if !ok {
				return nil, protocol.ConfigError("header '%s' must be a string", k)
			}

			headers[k] = strVal
		}
	}

	timeout := defaultTimeout

	switch ms := config["timeout_ms"].(type) {
	case float64:
		timeout = time.Duration(ms) * time.Millisecond
	case int:
		timeout = time.Duration(ms) * time.Millisecond
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    config["body"],
		Timeout: timeout,
		client:  &http.Client{},
	}, nil
}

// Execute performs the request and returns status, headers and the decoded body.
func (a *Action) Execute(ctx context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "http_request")

	if a.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	req, err := a.buildRequest(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Sending HTTP request", "method", req.Method, "url", req.URL.String())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	return a.processResponse(ctx, resp, logger)
}

func (a *Action) buildRequest(ctx context.Context, execCtx models.ExecutionContext) (*http.Request, error) {
	url, err := template.RenderString(a.URL, &execCtx)
	if err != nil {
		return nil, protocol.ConfigError("render url: %v", err)
	}

	body, err := a.buildRequestBody(execCtx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, body)
	if err != nil {
		return nil, protocol.ConfigError("build request: %v", err)
	}

	if a.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderString(value, &execCtx)
		if err != nil {
			return nil, protocol.ConfigError("render header '%s': %v", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func (a *Action) buildRequestBody(execCtx models.ExecutionContext) (io.Reader, error) {
	if a.Body == nil {
		return http.NoBody, nil
	}

	if str, ok := a.Body.(string); ok {
		rendered, err := template.RenderString(str, &execCtx)
		if err != nil {
			return nil, protocol.ConfigError("render body: %v", err)
		}

		return strings.NewReader(rendered), nil
	}

	rendered, err := template.RenderValue(a.Body, &execCtx)
	if err != nil {
		return nil, protocol.ConfigError("render body: %v", err)
	}

	payload, err := json.Marshal(rendered)
	if err != nil {
		return nil, protocol.ConfigError("marshal body: %v", err)
	}

	return bytes.NewReader(payload), nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "bytes", len(bodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			err = fmt.Errorf("%w: %w", protocol.ErrPermanent, err)
		}

		return result, err
	}

	return result, nil
}
