package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reasoner/internal/app/execution"
	"reasoner/internal/app/planner"
	"reasoner/internal/domain/task"
	jsonx "reasoner/internal/shared/json"
)

type planOptions struct {
	file       string
	dryRun     bool
	jsonOutput bool
}

func newPlanCommand(cli *CLI) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan [goal]",
		Short: "Decompose a goal into tasks and execute them",
		Long: `plan asks the model to break a goal into dependent tasks, or reads them
from a YAML file with --file, and runs them on the task engine.`,
		Example: `  reasoner plan "Summarize the release notes and list breaking changes"
  reasoner plan --file plan.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, cli, opts, strings.TrimSpace(strings.Join(args, " ")))
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read the plan from a YAML file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without executing it")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func runPlan(cmd *cobra.Command, cli *CLI, opts *planOptions, goal string) error {
	if goal == "" && opts.file == "" {
		return errors.New("a goal or --file is required")
	}

	var steps []task.StepDescriptor
	if opts.file != "" {
		plan, err := planner.LoadPlanFile(opts.file)
		if err != nil {
			return err
		}
		if goal == "" {
			goal = plan.Goal
		}
		steps = plan.Steps
	}

	app, err := cli.app(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	if steps == nil {
		steps, err = app.Planner.Plan(ctx, goal, app.Workers.Descriptors())
		if err != nil {
			return fmt.Errorf("plan %q: %w", goal, err)
		}
	}
	if !opts.jsonOutput {
		printPlan(out, goal, steps)
	}
	if opts.dryRun {
		if opts.jsonOutput {
			return writeJSON(out, planner.File{Goal: goal, Steps: steps})
		}
		return nil
	}

	var wait func()
	if !opts.jsonOutput {
		wait = renderEvents(cmd.ErrOrStderr(), app.Events, false)
	}
	report, err := app.Coordinator.RunPlan(ctx, goal, steps)
	if wait != nil {
		wait()
	}
	if report == nil {
		return err
	}
	if opts.jsonOutput {
		if jerr := writeJSON(out, report); jerr != nil {
			return jerr
		}
	} else {
		printReport(out, report)
	}
	if err != nil && !errors.Is(err, execution.ErrCancelled) {
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
