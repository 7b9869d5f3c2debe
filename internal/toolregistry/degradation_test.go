package toolregistry

import (
	"context"
	"errors"
	"testing"

	"reasoner/internal/domain/agent/ports"
)

type stubTool struct {
	name   string
	result ports.ToolResult
	err    error
	calls  int
	inputs []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.name + " tool" }
func (s *stubTool) Invoke(_ context.Context, input string) (ports.ToolResult, error) {
	s.calls++
	s.inputs = append(s.inputs, input)
	return s.result, s.err
}

func makeLookup(tools ...*stubTool) ToolLookup {
	return func(name string) (Tool, bool) {
		for _, tool := range tools {
			if tool.name == name {
				return tool, true
			}
		}
		return nil, false
	}
}

func TestDegradation_PrimarySuccess(t *testing.T) {
	primary := &stubTool{name: "web_search", result: ports.ToolResult{Content: "ok"}}
	fallback := &stubTool{name: "search", result: ports.ToolResult{Content: "fb"}}

	tool := WithFallbacks(primary, makeLookup(fallback), DefaultDegradationConfig())
	res, err := tool.Invoke(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "ok" {
		t.Fatalf("expected content 'ok', got %q", res.Content)
	}
	if res.Metadata != nil {
		t.Fatalf("expected no degradation metadata, got %v", res.Metadata)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not run, ran %d times", fallback.calls)
	}
}

func TestDegradation_FallsBackOnError(t *testing.T) {
	primary := &stubTool{name: "web_search", err: ErrWebSearchUnconfigured}
	fallback := &stubTool{name: "search", result: ports.ToolResult{Content: "from kb"}}

	tool := WithFallbacks(primary, makeLookup(fallback), DefaultDegradationConfig())
	res, err := tool.Invoke(context.Background(), "capital of France")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "from kb" {
		t.Fatalf("expected fallback content, got %q", res.Content)
	}
	if res.Metadata[metadataDegradedFrom] != "web_search" || res.Metadata[metadataDegradedTo] != "search" {
		t.Fatalf("unexpected degradation metadata: %v", res.Metadata)
	}
	if len(fallback.inputs) != 1 || fallback.inputs[0] != "capital of France" {
		t.Fatalf("fallback should receive the original input, got %v", fallback.inputs)
	}
}

func TestDegradation_AllFallbacksFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	primary := &stubTool{name: "web_search", err: primaryErr}
	fb1 := &stubTool{name: "search", err: errors.New("kb down")}
	fb2 := &stubTool{name: "archive", err: errors.New("archive down")}
	fb3 := &stubTool{name: "never", result: ports.ToolResult{Content: "unreachable"}}

	config := DegradationConfig{FallbackMap: map[string][]string{"web_search": {"missing", "search", "archive", "never"}}, MaxFallbackAttempts: 3}
	tool := WithFallbacks(primary, makeLookup(fb1, fb2, fb3), config)
	_, err := tool.Invoke(context.Background(), "q")
	if !errors.Is(err, primaryErr) {
		t.Fatalf("expected primary error to be wrapped, got %v", err)
	}
	if fb1.calls != 1 || fb2.calls != 1 {
		t.Fatalf("expected both configured fallbacks to run, got %d and %d", fb1.calls, fb2.calls)
	}
	if fb3.calls != 0 {
		t.Fatal("fallback beyond MaxFallbackAttempts must not run")
	}
}

func TestDegradation_NoFallbacksReturnsToolUnchanged(t *testing.T) {
	primary := &stubTool{name: "calculate"}
	if got := WithFallbacks(primary, makeLookup(), DefaultDegradationConfig()); got != Tool(primary) {
		t.Fatal("tools without fallbacks should not be wrapped")
	}
}

func TestDegradation_SkipsSelfReference(t *testing.T) {
	primary := &stubTool{name: "search", err: errors.New("down")}
	config := DegradationConfig{FallbackMap: map[string][]string{"search": {"search"}}}
	tool := WithFallbacks(primary, makeLookup(primary), config)
	if _, err := tool.Invoke(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if primary.calls != 1 {
		t.Fatalf("primary must not be retried as its own fallback, called %d times", primary.calls)
	}
}
