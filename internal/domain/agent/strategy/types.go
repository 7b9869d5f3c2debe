// Package strategy decides how a query should be answered before any work
// starts: directly, with one retrieval, with iterative reasoning, by
// escalating to a human, or by asking for clarification.
package strategy

import "strings"

// Strategy is a high-level answering approach.
type Strategy string

const (
	DirectAnswer    Strategy = "direct_answer"
	SingleRetrieval Strategy = "single_retrieval"
	Iterative       Strategy = "iterative"
	Escalate        Strategy = "escalate"
	Clarify         Strategy = "clarify"
)

// ParseStrategy accepts the canonical names in any case, plus a few common
// model spellings.
func ParseStrategy(raw string) (Strategy, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch Strategy(s) {
	case DirectAnswer, SingleRetrieval, Iterative, Escalate, Clarify:
		return Strategy(s), true
	}
	switch s {
	case "direct", "answer_directly":
		return DirectAnswer, true
	case "retrieval", "retrieve", "single_retrieve", "rag":
		return SingleRetrieval, true
	case "iterative_reasoning", "react", "multi_step":
		return Iterative, true
	case "clarification", "ask_for_clarification":
		return Clarify, true
	}
	return "", false
}

// Stronger returns the next more thorough strategy, used when an answer
// produced by s was judged too weak.
func (s Strategy) Stronger() Strategy {
	switch s {
	case DirectAnswer:
		return SingleRetrieval
	case SingleRetrieval:
		return Iterative
	}
	return s
}

// Complexity is the estimated difficulty of a query.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
	MultiHop Complexity = "multi_hop"
)

func parseComplexity(raw string) Complexity {
	c := Complexity(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(raw))))
	switch c {
	case Simple, Moderate, Complex, MultiHop:
		return c
	}
	return Moderate
}

// Turn is one message of prior conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Query is an incoming request. It is never mutated.
type Query struct {
	Text        string `json:"text"`
	History     []Turn `json:"history,omitempty"`
	UserContext string `json:"user_context,omitempty"`
}

// Decision is the selector's verdict for one query.
type Decision struct {
	Strategy             Strategy   `json:"strategy"`
	Confidence           float64    `json:"confidence"`
	Reasoning            string     `json:"reasoning"`
	RequiresVerification bool       `json:"requires_verification"`
	EstimatedComplexity  Complexity `json:"estimated_complexity"`
	RequiresPlanning     bool       `json:"requires_planning"`
}

// SelfDescription tells the selector what the system can do.
type SelfDescription struct {
	Domains             []string `json:"domains" yaml:"domains" mapstructure:"domains"`
	Tools               []string `json:"tools" yaml:"tools" mapstructure:"tools"`
	ConfidenceThreshold float64  `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	HighRiskTopics      []string `json:"high_risk_topics" yaml:"high_risk_topics" mapstructure:"high_risk_topics"`
}

// DefaultSelfDescription returns the built-in capability profile.
func DefaultSelfDescription() SelfDescription {
	return SelfDescription{
		Domains:             []string{"general knowledge", "indexed documents"},
		Tools:               []string{"search", "calculate"},
		ConfidenceThreshold: 0.6,
		HighRiskTopics:      []string{"medical", "legal", "financial", "safety"},
	}
}

// Recommendation is what past experience says about a query shape.
type Recommendation struct {
	Pattern      string
	Strategy     Strategy
	AverageScore float64
}

// ExperienceAdvisor supplies a soft hint from past outcomes. It never
// overrides the selector's decision.
type ExperienceAdvisor interface {
	Recommend(query string) (Recommendation, bool)
}
