package toolregistry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/httpclient"
	jsonx "reasoner/internal/shared/json"
)

const (
	defaultWebSearchEndpoint = "https://api.tavily.com/search"
	defaultWebSearchResults  = 5
	maxWebSearchResponse     = 2 << 20
)

// ErrWebSearchUnconfigured is returned when no API key has been set.
var ErrWebSearchUnconfigured = errors.New("web search is not configured")

// WebSearchConfig configures the Tavily-backed web_search tool.
type WebSearchConfig struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

// NewWebSearchTool returns the "web_search" tool.
func NewWebSearchTool(cfg WebSearchConfig) Tool {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultWebSearchEndpoint
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 10 {
		cfg.MaxResults = defaultWebSearchResults
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.New(httpclient.Options{Breaker: "web_search"})
	}
	return &webSearchTool{cfg: cfg}
}

type webSearchTool struct {
	cfg WebSearchConfig
}

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) Description() string {
	return "Search the web for current information. Returns summaries and URLs."
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *webSearchTool) Invoke(ctx context.Context, input string) (ports.ToolResult, error) {
	if t.cfg.APIKey == "" {
		return ports.ToolResult{}, ErrWebSearchUnconfigured
	}
	query := strings.TrimSpace(input)
	if query == "" {
		return ports.ToolResult{}, fmt.Errorf("web search query is empty")
	}

	body, err := jsonx.Marshal(map[string]any{
		"api_key":        t.cfg.APIKey,
		"query":          query,
		"max_results":    t.cfg.MaxResults,
		"search_depth":   "basic",
		"include_answer": true,
	})
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.cfg.Client.Do(req)
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("web search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := httpclient.ReadBody(resp, maxWebSearchResponse)
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("web search: %w", err)
	}

	var parsed tavilyResponse
	if err := jsonx.Unmarshal(payload, &parsed); err != nil {
		return ports.ToolResult{}, fmt.Errorf("decode response: %w", err)
	}
	return formatWebResults(parsed), nil
}

func formatWebResults(parsed tavilyResponse) ports.ToolResult {
	var sb strings.Builder
	if parsed.Answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n\n", parsed.Answer)
	}
	if len(parsed.Results) == 0 && parsed.Answer == "" {
		sb.WriteString("No web results found.")
	}
	sources := make([]ports.Source, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		fmt.Fprintf(&sb, "[%d] %s\n    %s\n", i+1, r.Title, strings.TrimSpace(r.Content))
		sources = ports.MergeSources(sources, ports.Source{Title: r.Title, URL: r.URL})
	}
	return ports.ToolResult{Content: strings.TrimSpace(sb.String()), Sources: sources}
}
