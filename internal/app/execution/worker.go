package execution

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/task"
)

// WorkRequest is what a worker receives for one task attempt.
type WorkRequest struct {
	Goal         string
	Task         task.Task
	Dependencies map[string]string
}

// WorkResult is a worker's output for one task attempt.
type WorkResult struct {
	Content string
	Sources []ports.Source
}

// Worker performs the work assigned to a task. Implementations are looked up
// by the task's assigned agent name.
type Worker interface {
	Execute(ctx context.Context, req WorkRequest) (WorkResult, error)
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, req WorkRequest) (WorkResult, error)

func (f WorkerFunc) Execute(ctx context.Context, req WorkRequest) (WorkResult, error) {
	return f(ctx, req)
}

// Descriptor advertises a registered worker to planners.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps capability names to workers. It is populated by the
// composition root before any run starts.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
	descs   map[string]string
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
		descs:   make(map[string]string),
	}
}

// Register adds worker under name.
func (r *Registry) Register(name, description string, worker Worker) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("worker name is required")
	}
	if worker == nil {
		return fmt.Errorf("worker %s is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("worker already registered: %s", name)
	}
	r.workers[name] = worker
	r.descs[name] = description
	return nil
}

// Get returns the worker registered under name.
func (r *Registry) Get(name string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Names returns registered worker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors lists registered workers with their descriptions, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, Descriptor{Name: name, Description: r.descs[name]})
	}
	return out
}
