package planner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"reasoner/internal/domain/task"
)

// File is a plan written by hand.
//
//	goal: Compare two consensus algorithms
//	steps:
//	  - title: Research Raft
//	    agent: retrieval
//	  - title: Summarize
//	    agent: llm
//	    depends_on: [1]
type File struct {
	Goal  string                `yaml:"goal"`
	Steps []task.StepDescriptor `yaml:"steps"`
}

// LoadPlanFile reads and decodes a YAML plan. Unknown keys are rejected.
func LoadPlanFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes a YAML plan document. A step without a description uses
// its title.
func ParsePlan(data []byte) (File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var plan File
	if err := dec.Decode(&plan); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("plan file is empty")
		}
		return File{}, fmt.Errorf("decode plan file: %w", err)
	}
	plan.Goal = strings.TrimSpace(plan.Goal)
	for i := range plan.Steps {
		plan.Steps[i] = fillStep(plan.Steps[i])
	}
	return plan, nil
}
