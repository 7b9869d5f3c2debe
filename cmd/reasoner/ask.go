package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reasoner/internal/app/coordinator"
	"reasoner/internal/domain/agent/strategy"
	"reasoner/internal/events"
)

type askOptions struct {
	strategy   string
	context    string
	jsonOutput bool
	showSteps  bool
	quiet      bool
}

func newAskCommand(cli *CLI) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question",
		Example: `  reasoner ask "What is the capital of France?"
  reasoner ask --strategy iterative --show-steps "Compare the two deployment guides"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, cli, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "force a strategy: direct_answer, single_retrieval, iterative, escalate, clarify")
	cmd.Flags().StringVar(&opts.context, "context", "", "extra context about the user")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the full response as JSON")
	cmd.Flags().BoolVar(&opts.showSteps, "show-steps", false, "print reasoning steps as they happen")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "print only the answer")
	return cmd
}

func runAsk(cmd *cobra.Command, cli *CLI, opts *askOptions, question string) error {
	query := coordinator.Query{Text: question, UserContext: opts.context}
	if opts.strategy != "" {
		forced, ok := strategy.ParseStrategy(opts.strategy)
		if !ok {
			return fmt.Errorf("unknown strategy %q", opts.strategy)
		}
		query.Strategy = forced
	}

	app, err := cli.app(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	var wait func()
	if !opts.jsonOutput && !opts.quiet {
		wait = renderEvents(cmd.ErrOrStderr(), app.Events, opts.showSteps)
	}
	resp, err := app.Coordinator.Handle(ctx, query)
	if wait != nil {
		wait()
	}
	if err != nil {
		return err
	}

	switch {
	case opts.jsonOutput:
		return writeJSON(out, resp)
	case opts.quiet:
		fmt.Fprintln(out, resp.Answer)
	default:
		printResponse(out, resp)
	}
	return nil
}

// renderEvents prints hub events until the returned function is called,
// which also waits for buffered events to be written.
func renderEvents(w io.Writer, hub *events.Hub, showSteps bool) func() {
	ch, unsubscribe := hub.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ch {
			renderEvent(w, ev, showSteps)
		}
	}()
	return func() {
		unsubscribe()
		wg.Wait()
	}
}
