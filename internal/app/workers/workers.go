// Package workers provides the execution.Worker implementations the
// composition root registers with the engine.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"reasoner/internal/app/execution"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/react"
	"reasoner/internal/logging"
)

// Names under which the workers are registered.
const (
	NameLLM       = "llm"
	NameReasoning = "reasoning"
	NameRetrieval = "retrieval"
)

const phaseTask = "task"

// ErrNoAnswer is returned when a reasoning task ends without a usable answer.
var ErrNoAnswer = errors.New("reasoning produced no answer")

// Register adds every available worker to registry. Nil collaborators skip
// the corresponding worker.
func Register(registry *execution.Registry, gw *gateway.Gateway, engine *react.ReactEngine, retriever ports.Retriever, logger logging.Logger) error {
	if gw != nil {
		if err := registry.Register(NameLLM, "Writes text with the language model: summaries, comparisons, drafts.", NewLLMWorker(gw)); err != nil {
			return err
		}
	}
	if engine != nil {
		if err := registry.Register(NameReasoning, "Answers a question step by step using tools, verifying each result.", NewReasoningWorker(engine, logger)); err != nil {
			return err
		}
	}
	if retriever != nil {
		if err := registry.Register(NameRetrieval, "Looks up passages in the local knowledge base.", NewRetrievalWorker(retriever, 5)); err != nil {
			return err
		}
	}
	return nil
}

// LLMWorker answers a task with one model call.
type LLMWorker struct {
	gateway *gateway.Gateway
}

// NewLLMWorker creates an LLM worker.
func NewLLMWorker(gw *gateway.Gateway) *LLMWorker {
	return &LLMWorker{gateway: gw}
}

func (w *LLMWorker) Execute(ctx context.Context, req execution.WorkRequest) (execution.WorkResult, error) {
	var b strings.Builder
	if req.Goal != "" {
		fmt.Fprintf(&b, "Overall goal: %s\n\n", req.Goal)
	}
	fmt.Fprintf(&b, "Task: %s\n", req.Task.Title)
	if req.Task.Description != "" {
		fmt.Fprintf(&b, "%s\n", req.Task.Description)
	}
	if deps := formatDependencies(req.Dependencies); deps != "" {
		fmt.Fprintf(&b, "\nResults of earlier tasks:\n%s", deps)
	}

	text, err := w.gateway.Generate(ctx, gateway.Prompt{
		Phase:  phaseTask,
		System: "You complete one task of a larger plan. Answer the task directly and concisely.",
		User:   b.String(),
	})
	if err != nil {
		return execution.WorkResult{}, err
	}
	return execution.WorkResult{Content: text}, nil
}

// ReasoningWorker runs the reasoning loop for a task.
type ReasoningWorker struct {
	engine *react.ReactEngine
	logger logging.Logger
}

// NewReasoningWorker creates a reasoning worker.
func NewReasoningWorker(engine *react.ReactEngine, logger logging.Logger) *ReasoningWorker {
	return &ReasoningWorker{engine: engine, logger: logging.WithComponent(logger, "reasoning-worker")}
}

func (w *ReasoningWorker) Execute(ctx context.Context, req execution.WorkRequest) (execution.WorkResult, error) {
	query := req.Task.Title
	if req.Task.Description != "" {
		query = req.Task.Title + ": " + req.Task.Description
	}
	result := w.engine.Run(ctx, react.Request{
		Query:          query,
		InitialContext: formatDependencies(req.Dependencies),
	})
	if result.StopReason == react.StopCancelled {
		return execution.WorkResult{}, context.Canceled
	}
	if !result.Success {
		w.logger.Debug("task %s: reasoning stopped with %s", req.Task.ID, result.StopReason)
		return execution.WorkResult{}, fmt.Errorf("%w (stop=%s)", ErrNoAnswer, result.StopReason)
	}
	return execution.WorkResult{Content: result.FinalAnswer, Sources: result.Sources}, nil
}

// RetrievalWorker returns knowledge base passages for a task.
type RetrievalWorker struct {
	retriever ports.Retriever
	topK      int
}

// NewRetrievalWorker creates a retrieval worker returning up to topK passages.
func NewRetrievalWorker(retriever ports.Retriever, topK int) *RetrievalWorker {
	if topK <= 0 {
		topK = 5
	}
	return &RetrievalWorker{retriever: retriever, topK: topK}
}

func (w *RetrievalWorker) Execute(ctx context.Context, req execution.WorkRequest) (execution.WorkResult, error) {
	query := strings.TrimSpace(req.Task.Description)
	if query == "" {
		query = req.Task.Title
	}
	docs, err := w.retriever.Query(ctx, query, w.topK)
	if err != nil {
		return execution.WorkResult{}, fmt.Errorf("retrieve %q: %w", query, err)
	}
	if len(docs) == 0 {
		return execution.WorkResult{Content: "No relevant documents found for: " + query}, nil
	}

	var b strings.Builder
	var sources []ports.Source
	for i, doc := range docs {
		src := doc.SourceFor()
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, src.Title, strings.TrimSpace(doc.Content))
		sources = ports.MergeSources(sources, src)
	}
	return execution.WorkResult{Content: strings.TrimSpace(b.String()), Sources: sources}, nil
}

func formatDependencies(deps map[string]string) string {
	if len(deps) == 0 {
		return ""
	}
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "[%s] %s\n", id, deps[id])
	}
	return b.String()
}
