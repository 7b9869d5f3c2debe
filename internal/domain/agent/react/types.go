package react

import (
	"strings"
	"time"

	"reasoner/internal/domain/agent/ports"
)

// Action is what a reasoning step decides to do next.
type Action string

const (
	ActionSearch      Action = "SEARCH"
	ActionWebSearch   Action = "WEB_SEARCH"
	ActionCalculate   Action = "CALCULATE"
	ActionFinalAnswer Action = "FINAL_ANSWER"
	ActionClarify     Action = "CLARIFY"
	ActionRefineQuery Action = "REFINE_QUERY"
	ActionVerify      Action = "VERIFY"
)

var toolActions = map[Action]string{
	ActionSearch:    "search",
	ActionWebSearch: "web_search",
	ActionCalculate: "calculate",
	ActionVerify:    "verify",
}

// ParseAction normalizes model spellings such as "final answer" or
// "web-search". Unknown names are returned upper-cased with ok=false.
func ParseAction(raw string) (Action, bool) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	a := Action(name)
	switch a {
	case ActionFinalAnswer, ActionClarify, ActionRefineQuery:
		return a, true
	}
	_, ok := toolActions[a]
	return a, ok
}

// Terminal reports whether the action ends the loop without a tool call.
func (a Action) Terminal() bool {
	return a == ActionFinalAnswer || a == ActionClarify
}

// ToolName is the registry name invoked for a, or the lower-cased action
// name for actions without a built-in mapping.
func (a Action) ToolName() string {
	if name, ok := toolActions[a]; ok {
		return name
	}
	return strings.ToLower(string(a))
}

// ThoughtAction is the decoded output of one THINK call.
type ThoughtAction struct {
	Thought        string  `json:"thought"`
	Action         Action  `json:"action"`
	ActionInput    string  `json:"action_input"`
	Confidence     float64 `json:"confidence"`
	SelfAssessment string  `json:"self_assessment,omitempty"`
}

// Observation is the outcome of acting on a step.
type Observation struct {
	Content string         `json:"content"`
	Sources []ports.Source `json:"sources,omitempty"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// RetryStrategy hints how a failing observation should be corrected.
type RetryStrategy string

const (
	RetryRefineQuery     RetryStrategy = "refine_query"
	RetryDifferentSource RetryStrategy = "different_source"
	RetryDecompose       RetryStrategy = "decompose"
)

// VerificationResult judges one observation against the query.
type VerificationResult struct {
	IsValid       bool          `json:"is_valid"`
	QualityScore  float64       `json:"quality_score"`
	Issues        []string      `json:"issues,omitempty"`
	ShouldRetry   bool          `json:"should_retry"`
	RetryStrategy RetryStrategy `json:"retry_strategy,omitempty"`
}

// Attempt is an action that was tried and the observation it produced.
type Attempt struct {
	Action      Action `json:"action"`
	ActionInput string `json:"action_input"`
	Observation string `json:"observation"`
}

// Step is one entry of the audit trail. Steps are never modified after they
// are appended to a Result.
type Step struct {
	Number       int                 `json:"step_number"`
	Thought      string              `json:"thought"`
	Action       Action              `json:"action"`
	ActionInput  string              `json:"action_input"`
	Confidence   float64             `json:"confidence"`
	Observation  *Observation        `json:"observation,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	// Original holds the first attempt when the step was self-corrected.
	Original  *Attempt  `json:"original,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Corrected reports whether the step replaced a failing attempt.
func (s Step) Corrected() bool {
	return s.Original != nil
}

// StopReason explains why a run ended.
type StopReason string

const (
	StopFinalAnswer   StopReason = "final_answer"
	StopClarify       StopReason = "clarify"
	StopMaxIterations StopReason = "max_iterations"
	StopCancelled     StopReason = "cancelled"
)

// Request is one reasoning run. Zero values fall back to engine defaults.
type Request struct {
	Query                 string
	InitialContext        string
	SkipVerification      bool
	MaxIterations         int
	VerificationThreshold float64
}

// Result is the outcome of a run.
type Result struct {
	FinalAnswer        string         `json:"final_answer"`
	Steps              []Step         `json:"steps"`
	Sources            []ports.Source `json:"sources,omitempty"`
	Success            bool           `json:"success"`
	VerificationPassed bool           `json:"verification_passed"`
	Confidence         float64        `json:"confidence"`
	Thoughts           int            `json:"thoughts"`
	Corrections        int            `json:"corrections"`
	StopReason         StopReason     `json:"stop_reason"`
}
