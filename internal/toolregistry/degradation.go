package toolregistry

import (
	"context"
	"fmt"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
)

const (
	defaultMaxFallbackAttempts = 2

	metadataDegradedFrom = "degraded_from"
	metadataDegradedTo   = "degraded_to"
)

// ToolLookup resolves a tool by name. It returns false when the requested
// tool is not available.
type ToolLookup func(name string) (Tool, bool)

// DegradationConfig controls fallback behaviour.
type DegradationConfig struct {
	// FallbackMap maps a tool name to an ordered list of fallback tool names.
	FallbackMap map[string][]string
	// MaxFallbackAttempts caps how many fallback tools will be tried. A value
	// of 0 means "use the default" (2).
	MaxFallbackAttempts int
	Logger              logging.Logger
}

// DefaultDegradationConfig falls back from web search to the knowledge base.
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		FallbackMap:         map[string][]string{"web_search": {"search"}},
		MaxFallbackAttempts: defaultMaxFallbackAttempts,
	}
}

// degradingTool tries fallback tools, in order, when the primary one fails.
// When every fallback fails too, the primary error is returned.
type degradingTool struct {
	Tool
	lookup    ToolLookup
	fallbacks []string
	logger    logging.Logger
}

// WithFallbacks wraps tool with the fallbacks configured for its name.
// lookup is used to resolve fallback tool names at invocation time.
func WithFallbacks(tool Tool, lookup ToolLookup, config DegradationConfig) Tool {
	if tool == nil || lookup == nil {
		return tool
	}
	fallbacks := config.FallbackMap[normalizeName(tool.Name())]
	if len(fallbacks) == 0 {
		return tool
	}
	limit := config.MaxFallbackAttempts
	if limit <= 0 {
		limit = defaultMaxFallbackAttempts
	}
	if limit < len(fallbacks) {
		fallbacks = fallbacks[:limit]
	}
	return &degradingTool{
		Tool:      tool,
		lookup:    lookup,
		fallbacks: append([]string(nil), fallbacks...),
		logger:    logging.WithComponent(config.Logger, "tools"),
	}
}

func (d *degradingTool) Invoke(ctx context.Context, input string) (ports.ToolResult, error) {
	result, err := d.Tool.Invoke(ctx, input)
	if err == nil {
		return result, nil
	}
	primary := normalizeName(d.Tool.Name())

	for _, name := range d.fallbacks {
		if ctx.Err() != nil {
			break
		}
		fallback, ok := d.lookup(name)
		if !ok || normalizeName(fallback.Name()) == primary {
			continue
		}
		fbResult, fbErr := fallback.Invoke(ctx, input)
		if fbErr != nil {
			d.logger.Debug("fallback %s for %s failed: %v", name, primary, fbErr)
			continue
		}
		d.logger.Info("tool %s degraded to %s: %v", primary, name, err)
		fbResult.Metadata = cloneMetadata(fbResult.Metadata)
		if fbResult.Metadata == nil {
			fbResult.Metadata = make(map[string]any, 2)
		}
		fbResult.Metadata[metadataDegradedFrom] = primary
		fbResult.Metadata[metadataDegradedTo] = name
		return fbResult, nil
	}
	return result, fmt.Errorf("%s failed without a working fallback: %w", primary, err)
}
