package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reasoner/internal/app/execution"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/agent/react"
	"reasoner/internal/domain/agent/strategy"
	"reasoner/internal/domain/task"
	"reasoner/internal/logging"
)

const (
	phaseDirect    = "direct_answer"
	phaseGrounded  = "grounded_answer"
	phaseClarify   = "clarify"
	maxHistoryTurn = 10
	maxDocChars    = 1200
)

// ApologyAnswer is returned when no route could produce an answer.
const ApologyAnswer = "I'm sorry, I could not generate an answer right now. Please try again in a moment or rephrase the question."

// ClarifyFallback is returned when the clarifying question cannot be
// generated.
const ClarifyFallback = "Could you tell me a bit more about what you are looking for? " +
	"A specific goal or example would help me answer accurately."

const directSystem = "You are a knowledgeable assistant. Answer the user's question directly and concisely. " +
	"If you are not sure, say so instead of guessing."

const groundedSystem = "You answer questions using the provided documents. Prefer the documents over prior knowledge, " +
	"cite them by their [number] when you use them, and say plainly when they do not contain the answer."

const clarifySystem = "The user's request is ambiguous. Ask one short clarifying question that would let you answer it. " +
	"Do not answer the request itself."

func (c *Coordinator) directAnswer(ctx context.Context, q Query) outcome {
	answer, err := c.deps.Gateway.Generate(ctx, gateway.Prompt{
		Phase:   phaseDirect,
		System:  directSystem,
		History: historyMessages(q.History),
		User:    withUserContext(q),
	})
	if err != nil {
		logging.FromContext(ctx, c.logger).Warn("direct answer failed: %v", err)
		return outcome{answer: ApologyAnswer, failed: true}
	}
	return outcome{answer: answer}
}

func (c *Coordinator) clarify(ctx context.Context, q Query) outcome {
	if strings.TrimSpace(q.Text) == "" {
		return outcome{answer: ClarifyFallback}
	}
	question, err := c.deps.Gateway.Generate(ctx, gateway.Prompt{
		Phase:   phaseClarify,
		System:  clarifySystem,
		History: historyMessages(q.History),
		User:    q.Text,
	})
	if err != nil || strings.TrimSpace(question) == "" {
		if err != nil {
			logging.FromContext(ctx, c.logger).Warn("clarifying question failed, using fallback: %v", err)
		}
		return outcome{answer: ClarifyFallback}
	}
	return outcome{answer: question}
}

// singleRetrieval looks documents up once and answers from them. The lookup
// is bounded by the retrieval timeout; on error or timeout the answer is
// generated without documents.
func (c *Coordinator) singleRetrieval(ctx context.Context, q Query) outcome {
	docs := c.retrieve(ctx, q.Text)

	var b strings.Builder
	b.WriteString(withUserContext(q))
	docContext := formatDocuments(docs)
	if docContext == "" {
		b.WriteString("\n\nNo supporting documents were found; answer from general knowledge and say so.")
	} else {
		b.WriteString("\n\nDocuments:\n")
		b.WriteString(docContext)
	}

	answer, err := c.deps.Gateway.Generate(ctx, gateway.Prompt{
		Phase:   phaseGrounded,
		System:  groundedSystem,
		History: historyMessages(q.History),
		User:    b.String(),
	})
	failed := err != nil
	if failed {
		logging.FromContext(ctx, c.logger).Warn("grounded answer failed: %v", err)
		answer = ApologyAnswer
	}

	sources := make([]ports.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, doc.SourceFor())
	}
	return outcome{
		answer:  answer,
		context: docContext,
		sources: ports.MergeSources(nil, sources...),
		failed:  failed,
	}
}

func (c *Coordinator) retrieve(ctx context.Context, query string) []ports.RetrievedDocument {
	if c.deps.Retriever == nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, c.retrievalTimeout)
	defer cancel()

	docs, err := c.deps.Retriever.Query(lookupCtx, query, c.retrievalTopK)
	if err != nil {
		logger := logging.FromContext(ctx, c.logger)
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("retrieval timed out after %s, answering without documents", c.retrievalTimeout)
		} else {
			logger.Warn("retrieval failed, answering without documents: %v", err)
		}
		return nil
	}
	return docs
}

func (c *Coordinator) iterative(ctx context.Context, q Query) outcome {
	if c.deps.React == nil {
		logging.FromContext(ctx, c.logger).Warn("no reasoning engine configured, using single retrieval")
		return c.singleRetrieval(ctx, q)
	}
	result := c.deps.React.Run(ctx, react.Request{
		Query:          q.Text,
		InitialContext: initialContext(q),
	})

	var b strings.Builder
	for _, step := range result.Steps {
		if step.Observation != nil && step.Observation.Success {
			b.WriteString(step.Observation.Content)
			b.WriteString("\n")
		}
	}
	return outcome{
		answer:  result.FinalAnswer,
		context: strings.TrimSpace(b.String()),
		sources: result.Sources,
		steps:   result.Steps,
	}
}

func (c *Coordinator) canPlan() bool {
	return c.deps.Planner != nil && c.deps.Engine != nil && c.deps.Workers != nil && len(c.deps.Workers.Names()) > 0
}

// planned decomposes q into a task plan and runs it. Planner failures are
// returned for the caller to fall back on; validation errors and the safety
// ceiling are fatal.
func (c *Coordinator) planned(ctx context.Context, q Query) (outcome, error) {
	steps, err := c.deps.Planner.Plan(ctx, q.Text, c.deps.Workers.Descriptors())
	if err != nil {
		return outcome{}, fmt.Errorf("plan %q: %w", q.Text, err)
	}
	queue, err := c.buildQueue(q.Text, steps)
	if err != nil {
		return outcome{}, err
	}

	report, err := c.deps.Engine.Run(ctx, queue)
	if err != nil && report == nil {
		return outcome{}, err
	}
	if err != nil {
		logging.FromContext(ctx, c.logger).Warn("planned run ended early: %v", err)
	}
	return outcome{
		answer:  report.Summary,
		context: reportContext(report),
		report:  report,
		planned: true,
	}, nil
}

// RunPlan executes an explicit plan without strategy selection.
func (c *Coordinator) RunPlan(ctx context.Context, goal string, steps []task.StepDescriptor) (*execution.Report, error) {
	if c.deps.Engine == nil || c.deps.Workers == nil {
		return nil, errors.New("no execution engine configured")
	}
	queue, err := c.buildQueue(goal, steps)
	if err != nil {
		return nil, err
	}
	return c.deps.Engine.Run(ctx, queue)
}

func (c *Coordinator) buildQueue(goal string, steps []task.StepDescriptor) (*task.Queue, error) {
	queue, err := task.BuildQueue(steps, task.BuildOptions{
		Goal:              goal,
		KnownAgents:       c.deps.Workers.Names(),
		DefaultMaxRetries: &c.taskRetries,
		QueueOptions:      []task.QueueOption{task.WithTransitionHook(execution.MetricsHook(c.metrics))},
	})
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return queue, nil
}

func reportContext(report *execution.Report) string {
	var b strings.Builder
	for _, t := range report.Tasks {
		if t.Status == task.StatusCompleted {
			fmt.Fprintf(&b, "%s: %s\n", t.Title, t.Result)
		}
	}
	return strings.TrimSpace(b.String())
}

func formatDocuments(docs []ports.RetrievedDocument) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", i+1, doc.SourceFor().Title, clip(doc.Content, maxDocChars))
	}
	return b.String()
}

func historyMessages(turns []strategy.Turn) []ports.Message {
	if len(turns) > maxHistoryTurn {
		turns = turns[len(turns)-maxHistoryTurn:]
	}
	out := make([]ports.Message, 0, len(turns))
	for _, t := range turns {
		role := ports.RoleUser
		if strings.EqualFold(t.Role, ports.RoleAssistant) {
			role = ports.RoleAssistant
		}
		out = append(out, ports.Message{Role: role, Content: t.Text})
	}
	return out
}

func withUserContext(q Query) string {
	if strings.TrimSpace(q.UserContext) == "" {
		return q.Text
	}
	return fmt.Sprintf("%s\n\nAbout the user: %s", q.Text, q.UserContext)
}

func initialContext(q Query) string {
	var parts []string
	if uc := strings.TrimSpace(q.UserContext); uc != "" {
		parts = append(parts, "About the user: "+uc)
	}
	for _, m := range historyMessages(q.History) {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
