package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reasoner/internal/domain/agent/ports"
	reasonerrors "reasoner/internal/errors"
)

func TestOpenAIClientComplete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message":       map[string]any{"content": "hello"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{Model: "gpt-test", APIKey: "secret", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), ports.CompletionRequest{
		Messages:       []ports.Message{{Role: ports.RoleUser, Content: "hi"}},
		Temperature:    0.2,
		ResponseFormat: &ports.ResponseFormat{Name: "x", Schema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-test", captured["model"])
	assert.Contains(t, captured, "response_format")
	assert.Equal(t, "gpt-test", client.Model())
}

func TestOpenAIClientClassifiesStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{Model: "m", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, reasonerrors.IsTransient(err))

	status = http.StatusUnauthorized
	_, err = client.Complete(context.Background(), ports.CompletionRequest{})
	require.Error(t, err)
	assert.False(t, reasonerrors.IsTransient(err))
}

func TestOpenAIClientRequiresModel(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)

	client, err := New(Config{Provider: "offline"})
	require.NoError(t, err)
	assert.Equal(t, "offline", client.Model())
}
