// Package toolregistry maps action identifiers to tools and layers caching
// and fallback behaviour on top of them.
package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
	"reasoner/internal/observability"
)

// Tool is one invocable capability.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input string) (ports.ToolResult, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, input string) (ports.ToolResult, error)
}

func (f Func) Name() string        { return f.ToolName }
func (f Func) Description() string { return f.Desc }
func (f Func) Invoke(ctx context.Context, input string) (ports.ToolResult, error) {
	return f.Fn(ctx, input)
}

// Definition describes a registered tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Config wires a Registry.
type Config struct {
	Logger  logging.Logger
	Metrics *observability.Metrics
}

// Registry implements ports.ToolInvoker over registered tools.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	logger  logging.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		logger:  logging.WithComponent(cfg.Logger, "tools"),
		metrics: cfg.Metrics,
	}
}

// Register adds tool under its lower-cased name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := normalizeName(tool.Name())
	if name == "" {
		return fmt.Errorf("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[normalizeName(name)]
	return tool, ok
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns definitions of every tool, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for name, tool := range r.tools {
		defs = append(defs, Definition{Name: name, Description: tool.Description()})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke runs the tool registered under actionID. Unknown ids return an
// error wrapping ports.ErrToolNotFound.
func (r *Registry) Invoke(ctx context.Context, actionID, input string) (ports.ToolResult, error) {
	tool, ok := r.Get(actionID)
	if !ok {
		r.metrics.IncToolInvocation(normalizeName(actionID), "not_found")
		return ports.ToolResult{}, fmt.Errorf("%w: %s", ports.ErrToolNotFound, actionID)
	}
	name := normalizeName(actionID)

	result, err := tool.Invoke(ctx, input)
	switch {
	case err != nil:
		r.metrics.IncToolInvocation(name, "error")
		logging.FromContext(ctx, r.logger).Warn("tool %s failed: %v", name, err)
		return ports.ToolResult{}, fmt.Errorf("tool %s: %w", name, err)
	case result.Metadata[metadataCacheHit] == true:
		r.metrics.IncToolInvocation(name, "cache_hit")
	case result.Metadata[metadataDegradedTo] != nil:
		r.metrics.IncToolInvocation(name, "degraded")
	default:
		r.metrics.IncToolInvocation(name, "ok")
	}
	return result, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ ports.ToolInvoker = (*Registry)(nil)
