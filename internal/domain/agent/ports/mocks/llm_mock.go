package mocks

import (
	"context"
	"sync"

	"reasoner/internal/domain/agent/ports"
)

type MockLLMClient struct {
	CompleteFunc func(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error)
	ModelFunc    func() string

	mu       sync.Mutex
	requests []ports.CompletionRequest
}

func (m *MockLLMClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &ports.CompletionResponse{
		Content:    "Mock response",
		StopReason: "stop",
		Usage:      ports.TokenUsage{TotalTokens: 100},
	}, nil
}

func (m *MockLLMClient) Model() string {
	if m.ModelFunc != nil {
		return m.ModelFunc()
	}
	return "mock-model"
}

// Requests returns every request seen so far.
func (m *MockLLMClient) Requests() []ports.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.CompletionRequest(nil), m.requests...)
}

// CallsFor counts the requests issued for phase.
func (m *MockLLMClient) CallsFor(phase string) int {
	count := 0
	for _, req := range m.Requests() {
		if req.Phase() == phase {
			count++
		}
	}
	return count
}

// Reply builds a successful completion response.
func Reply(content string) *ports.CompletionResponse {
	return &ports.CompletionResponse{Content: content, StopReason: "stop"}
}
