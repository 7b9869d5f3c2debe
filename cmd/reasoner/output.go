package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"reasoner/internal/app/coordinator"
	"reasoner/internal/app/execution"
	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/domain/task"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether stdout is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderEvent prints one engine event as a status line.
func renderEvent(w io.Writer, ev ports.Event, showSteps bool) {
	p := ev.Payload
	switch ev.Type {
	case ports.EventStrategyDecision:
		fmt.Fprintf(w, "%s %s %s\n", blue("strategy"), bold(p["strategy"]), gray(fmt.Sprintf("(confidence %.2f)", asFloat(p["confidence"]))))
		if showSteps {
			if reason, _ := p["reasoning"].(string); reason != "" {
				fmt.Fprintf(w, "  %s\n", gray(reason))
			}
		}
	case ports.EventThinkingStep:
		if !showSteps {
			return
		}
		fmt.Fprintf(w, "%s %v %s %s\n", yellow("step"), p["step"], cyan(p["action"]), gray(oneLine(fmt.Sprint(p["action_input"]), 80)))
		if thought, _ := p["thought"].(string); thought != "" {
			fmt.Fprintf(w, "  %s\n", gray(oneLine(thought, 120)))
		}
	case ports.EventIntermediateResult:
		fmt.Fprintf(w, "%s %s\n", green("done"), p["title"])
	case ports.EventProgress:
		fmt.Fprintf(w, "%s %v/%v completed, %v failed\n", gray("progress"), p["completed"], p["total"], p["failed"])
	}
}

func printResponse(w io.Writer, resp *coordinator.Response) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold("Sources"))
		for i, s := range resp.Sources {
			if s.URL != "" {
				fmt.Fprintf(w, "  [%d] %s %s\n", i+1, s.Title, gray(s.URL))
			} else {
				fmt.Fprintf(w, "  [%d] %s\n", i+1, s.Title)
			}
		}
	}
	fmt.Fprintln(w)
	meta := fmt.Sprintf("strategy=%s", resp.Strategy)
	if resp.Retried {
		meta += fmt.Sprintf(" (retried from %s)", resp.Decision.Strategy)
	}
	if resp.Evaluation != nil {
		meta += fmt.Sprintf(" score=%.2f %s", resp.Evaluation.Score, resp.Evaluation.ConfidenceLevel)
	}
	meta += fmt.Sprintf(" took=%s", resp.Duration.Round(1e6))
	fmt.Fprintln(w, gray(meta))
}

func printPlan(w io.Writer, goal string, steps []task.StepDescriptor) {
	fmt.Fprintf(w, "%s %s\n", bold("Plan:"), goal)
	for i, s := range steps {
		deps := ""
		if len(s.DependsOn) > 0 {
			parts := make([]string, 0, len(s.DependsOn))
			for _, d := range s.DependsOn {
				parts = append(parts, fmt.Sprint(d))
			}
			deps = gray(" after " + strings.Join(parts, ","))
		}
		fmt.Fprintf(w, "  %d. %s %s%s\n", i+1, s.Title, cyan("["+s.Agent+"]"), deps)
	}
}

func printReport(w io.Writer, report *execution.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, report.Summary)
	fmt.Fprintln(w)
	status := green("success")
	if report.Cancelled {
		status = yellow("cancelled")
	} else if !report.Success {
		status = red("incomplete")
	}
	fmt.Fprintf(w, "%s %s\n", status, gray(fmt.Sprintf("total=%d completed=%d failed=%d blocked=%d retries=%d took=%s",
		report.Stats.Total, report.Stats.Completed, report.Stats.Failed, report.Stats.Blocked, report.Stats.Retries,
		report.Duration.Round(1e6))))
	for _, t := range report.Tasks {
		if t.Status == task.StatusFailed {
			fmt.Fprintf(w, "  %s %s: %s\n", red("failed"), t.Title, t.Error)
		}
	}
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
