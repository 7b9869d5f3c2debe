package strategy

import (
	"fmt"
	"strings"

	"reasoner/internal/domain/agent/ports"
)

const maxHistoryTurns = 6

const selectorSystemPrompt = `You decide how an assistant should answer a user query before it starts working.
Strategies:
- direct_answer: the answer is common knowledge or conversational.
- single_retrieval: one lookup in the knowledge base is enough.
- iterative: several reasoning and tool steps are needed.
- escalate: a human expert must review the answer.
- clarify: the query is too ambiguous to act on.

The assistant covers these domains: %s
It can use these tools: %s

Respond with a JSON object only:
{"strategy": "...", "confidence": 0.0, "reasoning": "...", "requires_verification": false,
 "estimated_complexity": "simple|moderate|complex|multi_hop", "requires_planning": false}
Set requires_planning when the request is a multi-part goal that should be split into separate tasks.`

func buildSelectorSystem(self SelfDescription) string {
	domains := strings.Join(self.Domains, ", ")
	if domains == "" {
		domains = "general knowledge"
	}
	tools := strings.Join(self.Tools, ", ")
	if tools == "" {
		tools = "none"
	}
	return fmt.Sprintf(selectorSystemPrompt, domains, tools)
}

func buildSelectorPrompt(q Query, hint *Recommendation) string {
	var b strings.Builder
	history := q.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		}
		b.WriteString("\n")
	}
	if q.UserContext != "" {
		fmt.Fprintf(&b, "User context: %s\n\n", q.UserContext)
	}
	if hint != nil {
		fmt.Fprintf(&b, "Hint: similar %q queries were answered best with %s (average quality %.2f). Treat this as a suggestion only.\n\n",
			hint.Pattern, hint.Strategy, hint.AverageScore)
	}
	fmt.Fprintf(&b, "Query: %s", q.Text)
	return b.String()
}

var decisionSchema = &ports.ResponseFormat{
	Name: "strategy_decision",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"strategy", "confidence", "reasoning"},
		"properties": map[string]any{
			"strategy":              map[string]any{"type": "string"},
			"confidence":            map[string]any{"type": "number"},
			"reasoning":             map[string]any{"type": "string"},
			"requires_verification": map[string]any{"type": "boolean"},
			"estimated_complexity":  map[string]any{"type": "string"},
			"requires_planning":     map[string]any{"type": "boolean"},
		},
	},
}
