// Package planner turns a goal into an ordered list of plan steps, either by
// asking the model or by reading a YAML plan file.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reasoner/internal/app/execution"
	"reasoner/internal/domain/agent/gateway"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/task"
	"reasoner/internal/logging"
)

const (
	phasePlan       = "plan"
	defaultMaxSteps = 8
)

// ErrEmptyGoal is returned when asked to plan nothing.
var ErrEmptyGoal = errors.New("goal is empty")

// Planner decomposes a goal into steps for the given workers.
type Planner interface {
	Plan(ctx context.Context, goal string, agents []execution.Descriptor) ([]task.StepDescriptor, error)
}

// Config tunes the LLM planner.
type Config struct {
	MaxSteps int
	Logger   logging.Logger
}

// LLMPlanner asks the model for a plan.
type LLMPlanner struct {
	gateway  *gateway.Gateway
	maxSteps int
	logger   logging.Logger
}

// NewLLMPlanner creates a planner backed by gw.
func NewLLMPlanner(gw *gateway.Gateway, cfg Config) *LLMPlanner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return &LLMPlanner{gateway: gw, maxSteps: cfg.MaxSteps, logger: logging.WithComponent(cfg.Logger, "planner")}
}

type planResponse struct {
	Steps []task.StepDescriptor `json:"steps"`
}

// Plan returns the model's steps for goal. The result is normalized but not
// validated; task.BuildQueue reports structural problems.
func (p *LLMPlanner) Plan(ctx context.Context, goal string, agents []execution.Descriptor) ([]task.StepDescriptor, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no workers available to plan for")
	}

	var resp planResponse
	err := p.gateway.GenerateJSON(ctx, gateway.Prompt{
		Phase:       phasePlan,
		System:      buildPlannerSystem(agents, p.maxSteps),
		User:        fmt.Sprintf("Goal: %s", goal),
		Temperature: gateway.Temperature(0.2),
		Schema:      planSchema,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("plan goal: %w", err)
	}

	steps := normalizeSteps(resp.Steps, agents, p.maxSteps)
	logging.FromContext(ctx, p.logger).Info("planned %d steps for %q", len(steps), clip(goal, 80))
	return steps, nil
}

// normalizeSteps trims fields, lower-cases agent names, fills in the agent
// when only one worker exists and truncates to maxSteps. Only dependencies on
// steps removed by truncation are dropped; any other bad reference is kept
// for task.ValidatePlan to report.
func normalizeSteps(steps []task.StepDescriptor, agents []execution.Descriptor, maxSteps int) []task.StepDescriptor {
	planned := len(steps)
	if planned > maxSteps {
		steps = steps[:maxSteps]
	}
	out := make([]task.StepDescriptor, 0, len(steps))
	for _, step := range steps {
		step = fillStep(step)
		step.Agent = strings.ToLower(step.Agent)
		if step.Agent == "" && len(agents) == 1 {
			step.Agent = agents[0].Name
		}
		deps := step.DependsOn[:0:0]
		for _, d := range step.DependsOn {
			if d > len(steps) && d <= planned {
				continue
			}
			deps = append(deps, d)
		}
		step.DependsOn = deps
		out = append(out, step)
	}
	// The last step is what the user asked for.
	if len(out) > 0 {
		out[len(out)-1].ShowToUser = true
	}
	return out
}

// fillStep trims a step and lets title and description stand in for each
// other when only one is given.
func fillStep(step task.StepDescriptor) task.StepDescriptor {
	step.Title = strings.TrimSpace(step.Title)
	step.Description = strings.TrimSpace(step.Description)
	step.Agent = strings.TrimSpace(step.Agent)
	if step.Title == "" && step.Description != "" {
		step.Title = clip(step.Description, 60)
	}
	if step.Description == "" {
		step.Description = step.Title
	}
	return step
}

func buildPlannerSystem(agents []execution.Descriptor, maxSteps int) string {
	var b strings.Builder
	b.WriteString("You break a goal into a short plan of steps executed by workers.\n\nWorkers:\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
	}
	fmt.Fprintf(&b, "\nUse at most %d steps. Each step has a title, a description of the work, "+
		"the worker name in \"agent\", and \"depends_on\" listing the 1-based numbers of earlier steps whose results it needs. "+
		"Steps without dependencies run in parallel. Respond with JSON: {\"steps\": [...]}.", maxSteps)
	return b.String()
}

var planSchema = &ports.ResponseFormat{
	Name: "plan",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"steps"},
		"properties": map[string]any{
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"title", "agent"},
					"properties": map[string]any{
						"title":        map[string]any{"type": "string"},
						"description":  map[string]any{"type": "string"},
						"agent":        map[string]any{"type": "string"},
						"depends_on":   map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
						"priority":     map[string]any{"type": "integer"},
						"show_to_user": map[string]any{"type": "boolean"},
					},
				},
			},
		},
	},
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
