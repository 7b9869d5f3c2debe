package mocks

import (
	"context"
	"fmt"
	"sync"

	"reasoner/internal/domain/agent/ports"
)

type ToolCall struct {
	ActionID string
	Input    string
}

type MockToolInvoker struct {
	InvokeFunc func(ctx context.Context, actionID, input string) (ports.ToolResult, error)
	HasFunc    func(actionID string) bool

	mu    sync.Mutex
	calls []ToolCall
}

func (m *MockToolInvoker) Invoke(ctx context.Context, actionID, input string) (ports.ToolResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ToolCall{ActionID: actionID, Input: input})
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, actionID, input)
	}
	return ports.ToolResult{}, fmt.Errorf("%w: %s", ports.ErrToolNotFound, actionID)
}

func (m *MockToolInvoker) Has(actionID string) bool {
	if m.HasFunc != nil {
		return m.HasFunc(actionID)
	}
	return m.InvokeFunc != nil
}

// Calls returns the invocations recorded so far.
func (m *MockToolInvoker) Calls() []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolCall(nil), m.calls...)
}

type MockRetriever struct {
	QueryFunc func(ctx context.Context, text string, topK int) ([]ports.RetrievedDocument, error)
}

func (m *MockRetriever) Query(ctx context.Context, text string, topK int) ([]ports.RetrievedDocument, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, text, topK)
	}
	return nil, nil
}

// RecordingSink keeps every emitted event.
type RecordingSink struct {
	mu     sync.Mutex
	events []ports.Event
}

func (s *RecordingSink) Emit(event ports.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *RecordingSink) Events() []ports.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Event(nil), s.events...)
}

// OfType filters recorded events by type.
func (s *RecordingSink) OfType(eventType ports.EventType) []ports.Event {
	var out []ports.Event
	for _, ev := range s.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
