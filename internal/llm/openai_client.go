package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"reasoner/internal/domain/agent/ports"
	reasonerrors "reasoner/internal/errors"
	"reasoner/internal/httpclient"
	"reasoner/internal/logging"
	jsonx "reasoner/internal/shared/json"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAITimeout = 120 * time.Second
	maxResponseBytes     = 8 << 20
)

// openaiClient speaks the OpenAI-compatible chat completions API.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient constructs a chat completions client from cfg.
func NewOpenAIClient(cfg Config) (ports.LLMClient, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	logger := logging.WithComponent(cfg.Logger, "llm")
	return &openaiClient{
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		headers:    cfg.Headers,
		httpClient: httpclient.New(httpclient.Options{Timeout: timeout, Logger: logger}),
		logger:     logger,
	}, nil
}

func (c *openaiClient) Model() string { return c.model }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	requestID := uuid.NewString()
	logger := logging.FromContext(ctx, c.logger)
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	payload := map[string]any{
		"model":    c.model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.ResponseFormat != nil {
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.ResponseFormat.Name,
				"schema": req.ResponseFormat.Schema,
			},
		}
	}

	body, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat/completions"
	logger.Debug("%sPOST %s model=%s phase=%s", prefix, endpoint, c.model, req.Phase())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Debug("%sHTTP request failed: %v", prefix, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, reasonerrors.Transient(err, "Could not reach the language model.")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadBody(resp, maxResponseBytes)
	if err != nil {
		logger.Debug("%sresponse %d rejected: %v", prefix, resp.StatusCode, err)
		return nil, err
	}

	var parsed chatResponse
	if err := jsonx.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, reasonerrors.Permanent(fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message), "The language model rejected the request.")
	}
	if len(parsed.Choices) == 0 {
		return nil, reasonerrors.Transient(errors.New("no choices in response"), "The language model returned an empty response.")
	}

	result := &ports.CompletionResponse{
		Content:    parsed.Choices[0].Message.Content,
		StopReason: parsed.Choices[0].FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		Metadata: map[string]any{"request_id": requestID},
	}
	logger.Debug("%sstop=%s content=%d chars tokens=%d", prefix, result.StopReason, len(result.Content), result.Usage.TotalTokens)
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
