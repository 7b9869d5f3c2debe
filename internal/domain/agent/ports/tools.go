package ports

import (
	"context"
	"errors"
)

// ErrToolNotFound is returned by ToolInvoker implementations for unknown action ids.
var ErrToolNotFound = errors.New("tool not found")

// Source is a citation attached to a tool result or answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Content  string         `json:"content"`
	Sources  []Source       `json:"sources,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolInvoker dispatches an action id to a registered tool.
type ToolInvoker interface {
	Invoke(ctx context.Context, actionID, input string) (ToolResult, error)
	Has(actionID string) bool
}

// MergeSources appends sources not already present in dst, keyed by title and URL.
func MergeSources(dst []Source, src ...Source) []Source {
	seen := make(map[Source]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
