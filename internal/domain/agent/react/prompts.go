package react

import (
	"fmt"
	"strings"

	"reasoner/internal/domain/agent/ports"
)

const thinkSystemPrompt = `You are a careful research assistant that reasons step by step.
At each step decide on exactly one action:
%s
- FINAL_ANSWER: action_input is the complete answer for the user.
- CLARIFY: action_input is a question asking the user for missing information.
- REFINE_QUERY: action_input is a better formulation of the question to work on.

Respond with a JSON object only:
{"thought": "...", "action": "...", "action_input": "...", "confidence": 0.0, "self_assessment": "..."}
confidence is your certainty in [0,1] that the task can be finished with this action.`

const verifySystemPrompt = `You check whether a tool result actually helps answer a question.
Respond with a JSON object only:
{"is_valid": true, "quality_score": 0.0, "issues": ["..."], "should_retry": false, "retry_strategy": "refine_query|different_source|decompose"}
quality_score is in [0,1]. Mark is_valid false when the result is empty, off-topic or an error.`

const correctSystemPrompt = `A previous action produced an unusable result. Propose a different action.
Never repeat an action_input that already failed.
Respond with a JSON object only:
{"thought": "...", "action": "...", "action_input": "...", "confidence": 0.0}`

const synthesisSystemPrompt = `You write the final answer to a question from research notes.
Use only the notes. When they are insufficient, say what is missing.`

var toolDescriptions = []struct {
	action Action
	text   string
}{
	{ActionSearch, "- SEARCH: action_input is a query for the internal knowledge base."},
	{ActionWebSearch, "- WEB_SEARCH: action_input is a query for the public web."},
	{ActionCalculate, "- CALCULATE: action_input is an arithmetic expression such as (12*4)/3."},
	{ActionVerify, "- VERIFY: action_input is a claim to fact-check."},
}

func (e *ReactEngine) thinkSystem() string {
	var lines []string
	for _, tool := range toolDescriptions {
		if e.tools != nil && e.tools.Has(tool.action.ToolName()) {
			lines = append(lines, tool.text)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "- (no tools are available, answer from your own knowledge)")
	}
	return fmt.Sprintf(thinkSystemPrompt, strings.Join(lines, "\n"))
}

func buildThinkPrompt(query, context string, steps []Step, demandAnswer bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", query)
	if context != "" {
		fmt.Fprintf(&b, "\nContext gathered so far:\n%s\n", context)
	}
	if len(steps) > 0 {
		b.WriteString("\nPrevious steps:\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "%d. thought=%q action=%s input=%q\n", s.Number, s.Thought, s.Action, s.ActionInput)
		}
	}
	if demandAnswer {
		b.WriteString("\nThis is your last step. You must choose FINAL_ANSWER now and answer as well as the context allows.")
	} else {
		b.WriteString("\nDecide the next action.")
	}
	return b.String()
}

func buildDetourPrompt(query, context string, proposed ThoughtAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", query)
	if context != "" {
		fmt.Fprintf(&b, "\nContext gathered so far:\n%s\n", context)
	}
	fmt.Fprintf(&b, "\nYou proposed %s(%q) with confidence %.2f. ", proposed.Action, proposed.ActionInput, proposed.Confidence)
	b.WriteString("If you can already answer, respond with FINAL_ANSWER and the complete answer. ")
	b.WriteString("Otherwise repeat your proposed action.")
	return b.String()
}

func buildVerifyPrompt(query string, step ThoughtAction, obs Observation) string {
	return fmt.Sprintf("Question: %s\n\nAction: %s(%q)\n\nResult:\n%s\n\nJudge the result.",
		query, step.Action, step.ActionInput, obs.Content)
}

func buildCorrectPrompt(query string, failed []Attempt, v VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nFailed attempts:\n", query)
	for i, a := range failed {
		fmt.Fprintf(&b, "%d. action=%s input=%q\n   result: %s\n", i+1, a.Action, a.ActionInput, a.Observation)
	}
	if len(v.Issues) > 0 {
		fmt.Fprintf(&b, "\nIssues: %s\n", strings.Join(v.Issues, "; "))
	}
	if v.RetryStrategy != "" {
		fmt.Fprintf(&b, "Suggested strategy: %s\n", v.RetryStrategy)
	}
	b.WriteString("\nPropose one new action.")
	return b.String()
}

func buildSynthesisPrompt(query, context string) string {
	if context == "" {
		context = "(no notes were collected)"
	}
	return fmt.Sprintf("Question: %s\n\nResearch notes:\n%s\n\nWrite the final answer.", query, context)
}

var thinkSchema = &ports.ResponseFormat{
	Name: "thought_action",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"thought", "action", "action_input", "confidence"},
		"properties": map[string]any{
			"thought":         map[string]any{"type": "string"},
			"action":          map[string]any{"type": "string"},
			"action_input":    map[string]any{"type": "string"},
			"confidence":      map[string]any{"type": "number"},
			"self_assessment": map[string]any{"type": "string"},
		},
	},
}

var verifySchema = &ports.ResponseFormat{
	Name: "verification",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"is_valid", "quality_score"},
		"properties": map[string]any{
			"is_valid":       map[string]any{"type": "boolean"},
			"quality_score":  map[string]any{"type": "number"},
			"issues":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"should_retry":   map[string]any{"type": "boolean"},
			"retry_strategy": map[string]any{"type": "string"},
		},
	},
}
