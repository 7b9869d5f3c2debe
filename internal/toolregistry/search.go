package toolregistry

import (
	"context"
	"fmt"
	"strings"

	"reasoner/internal/domain/agent/ports"
)

const (
	defaultSearchTopK = 5
	noResultsContent  = "No relevant information found in the knowledge base."
)

// NewSearchTool exposes retriever as the "search" tool.
func NewSearchTool(retriever ports.Retriever, topK int) Tool {
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	return &searchTool{retriever: retriever, topK: topK}
}

type searchTool struct {
	retriever ports.Retriever
	topK      int
}

func (t *searchTool) Name() string { return "search" }

func (t *searchTool) Description() string {
	return "Search the local knowledge base for passages relevant to the input."
}

func (t *searchTool) Invoke(ctx context.Context, input string) (ports.ToolResult, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return ports.ToolResult{}, fmt.Errorf("search query is empty")
	}
	if t.retriever == nil {
		return ports.ToolResult{}, fmt.Errorf("knowledge base is not configured")
	}
	docs, err := t.retriever.Query(ctx, query, t.topK)
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("query knowledge base: %w", err)
	}
	if len(docs) == 0 {
		return ports.ToolResult{Content: noResultsContent}, nil
	}

	var sb strings.Builder
	sources := make([]ports.Source, 0, len(docs))
	for i, doc := range docs {
		src := doc.SourceFor()
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s (%.2f): %s", i+1, src.Title, doc.Score, strings.TrimSpace(doc.Content))
		sources = ports.MergeSources(sources, src)
	}
	return ports.ToolResult{
		Content:  sb.String(),
		Sources:  sources,
		Metadata: map[string]any{"documents": len(docs)},
	}, nil
}
