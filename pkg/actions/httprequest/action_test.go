package httprequest_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/actions/httprequest"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceContext() models.ExecutionContext {
	return models.ExecutionContext{
		TriggeredBy: models.TriggerTypeEvent,
		Event:       "invoice.created",
		Entity:      map[string]any{"id": "inv-1", "amount": 1500},
		Metadata:    map[string]any{"token": "secret"},
	}
}

func TestNewAction(t *testing.T) {
	t.Parallel()

	action, err := httprequest.NewAction(map[string]any{
		"url":        "https://hooks.example.com/{{.entity.id}}",
		"method":     "put",
		"headers":    map[string]any{"X-Token": "{{.metadata.token}}"},
		"timeout_ms": 2500.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "PUT", action.Method)
	assert.Equal(t, map[string]string{"X-Token": "{{.metadata.token}}"}, action.Headers)
	assert.Equal(t, 2500*time.Millisecond, action.Timeout)

	action, err = httprequest.NewAction(map[string]any{"url": "https://hooks.example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, action.Method)
}

func TestNewAction_ConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := httprequest.NewAction(map[string]any{})
	assert.True(t, protocol.IsConfigError(err))

	_, err = httprequest.NewAction(map[string]any{"url": "https://x", "headers": map[string]any{"A": 1}})
	assert.True(t, protocol.IsConfigError(err))
}

func TestAction_Execute_PostsRenderedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/hooks/inv-1", request.URL.Path)
		assert.Equal(t, "secret", request.Header.Get("X-Token"))
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

		var body map[string]any

		err := json.NewDecoder(request.Body).Decode(&body)
		assert.NoError(t, err)
		assert.Equal(t, "inv-1", body["invoice"])
		assert.InDelta(t, 1500.0, body["amount"], 0.001)

		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"received": true}`))
	}))
	defer server.Close()

	action, err := httprequest.NewActionFactory(nil).Create(context.Background(), map[string]any{
		"url":     server.URL + "/hooks/{{.entity.id}}",
		"headers": map[string]any{"X-Token": "{{.metadata.token}}"},
		"body": map[string]any{
			"invoice": "{{.entity.id}}",
			"amount":  "{{.entity.amount}}",
		},
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), invoiceContext(), slog.Default())
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resultMap["status_code"])
	assert.Equal(t, map[string]any{"received": true}, resultMap["body"])
}

func TestAction_Execute_NonJSONResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte("ok"))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL, "method": "GET"})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), invoiceContext(), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "ok", result.(map[string]any)["body"])
}

func TestAction_Execute_StatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(tt.status)
			}))
			defer server.Close()

			action, err := httprequest.NewAction(map[string]any{"url": server.URL})
			require.NoError(t, err)

			_, err = action.Execute(context.Background(), invoiceContext(), slog.Default())
			require.Error(t, err)
			assert.True(t, errors.Is(err, httprequest.ErrHTTPStatus))
			assert.Equal(t, tt.retryable, protocol.IsRetryable(err))
		})
	}
}

func TestAction_Execute_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-request.Context().Done():
		}

		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL, "timeout_ms": 50})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), invoiceContext(), slog.Default())
	require.Error(t, err)
	assert.True(t, protocol.IsRetryable(err))
}

func TestActionFactory(t *testing.T) {
	t.Parallel()

	factory := httprequest.NewActionFactory(nil)

	assert.Equal(t, "http_request", factory.ID())
	assert.Equal(t, "HTTP Request", factory.Name())
	assert.Contains(t, factory.Schema()["required"], "url")
}
