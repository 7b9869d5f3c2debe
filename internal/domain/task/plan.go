package task

import (
	"fmt"
	"strings"
)

// StepDescriptor is one step of a plan as produced by a planner. DependsOn
// holds 1-based indexes of earlier steps.
type StepDescriptor struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Agent       string `json:"agent" yaml:"agent"`
	DependsOn   []int  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Priority    int    `json:"priority,omitempty" yaml:"priority,omitempty"`
	ShowToUser  bool   `json:"show_to_user,omitempty" yaml:"show_to_user,omitempty"`
	MaxRetries  *int   `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// BuildOptions configures BuildQueue.
type BuildOptions struct {
	Goal              string
	KnownAgents       []string
	// DefaultMaxRetries is the budget for steps without their own; nil
	// means DefaultMaxRetries and an explicit zero disables retries.
	DefaultMaxRetries *int
	QueueOptions      []QueueOption
}

// StepID is the task id given to the step at 1-based index n.
func StepID(n int) string {
	return fmt.Sprintf("step-%d", n)
}

// ValidatePlan rejects malformed plans before any task exists: zero steps,
// missing fields, unknown agents and dependency references that are out of
// range, self-referencing or pointing forward. Every problem is reported.
func ValidatePlan(steps []StepDescriptor, knownAgents []string) error {
	ve := &ValidationErrors{}
	if len(steps) == 0 {
		ve.Add("steps", "plan must contain at least one step")
		return ve
	}

	agents := make(map[string]bool, len(knownAgents))
	for _, a := range knownAgents {
		agents[a] = true
	}

	for i, step := range steps {
		n := i + 1
		prefix := fmt.Sprintf("steps[%d]", n)
		if strings.TrimSpace(step.Title) == "" {
			ve.Addf(prefix+".title", "step %d is missing a title", n)
		}
		if strings.TrimSpace(step.Description) == "" {
			ve.Addf(prefix+".description", "step %d is missing a description", n)
		}
		switch agent := strings.TrimSpace(step.Agent); {
		case agent == "":
			ve.Addf(prefix+".agent", "step %d is missing an agent", n)
		case len(agents) > 0 && !agents[agent]:
			ve.Addf(prefix+".agent", "step %d is assigned to unknown agent %q", n, agent)
		}
		if step.MaxRetries != nil && *step.MaxRetries < 0 {
			ve.Addf(prefix+".max_retries", "step %d has negative max_retries %d", n, *step.MaxRetries)
		}

		seen := make(map[int]bool, len(step.DependsOn))
		for j, dep := range step.DependsOn {
			field := fmt.Sprintf("%s.depends_on[%d]", prefix, j)
			switch {
			case dep < 1 || dep > len(steps):
				ve.Addf(field, "step %d depends on step %d, but the plan only has %d steps", n, dep, len(steps))
			case dep == n:
				ve.Addf(field, "step %d depends on itself", n)
			case dep > n:
				ve.Addf(field, "step %d depends on later step %d (forward reference)", n, dep)
			case seen[dep]:
				ve.Addf(field, "step %d lists step %d more than once", n, dep)
			}
			seen[dep] = true
		}
	}
	return ve.OrNil()
}

// BuildQueue validates steps and translates them into a Queue whose task ids
// are StepID(n).
func BuildQueue(steps []StepDescriptor, opts BuildOptions) (*Queue, error) {
	if err := ValidatePlan(steps, opts.KnownAgents); err != nil {
		return nil, err
	}

	defaultRetries := DefaultMaxRetries
	if opts.DefaultMaxRetries != nil && *opts.DefaultMaxRetries >= 0 {
		defaultRetries = *opts.DefaultMaxRetries
	}

	tasks := make([]Task, 0, len(steps))
	for i, step := range steps {
		deps := make([]string, 0, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			deps = append(deps, StepID(dep))
		}
		retries := defaultRetries
		if step.MaxRetries != nil {
			retries = *step.MaxRetries
		}
		tasks = append(tasks, Task{
			ID:            StepID(i + 1),
			Title:         strings.TrimSpace(step.Title),
			Description:   strings.TrimSpace(step.Description),
			AssignedAgent: strings.TrimSpace(step.Agent),
			DependsOn:     deps,
			MaxRetries:    retries,
			Priority:      step.Priority,
			ShowToUser:    step.ShowToUser,
		})
	}

	queueOpts := append([]QueueOption{WithGoal(opts.Goal)}, opts.QueueOptions...)
	return NewQueue(tasks, queueOpts...)
}
