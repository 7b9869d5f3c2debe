package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reasoner/internal/app/di"
	"reasoner/internal/config"
	"reasoner/internal/observability"
	"reasoner/internal/async"
)

const shutdownTimeout = 5 * time.Second

// CLI carries state shared by every subcommand.
type CLI struct {
	configPath string
	verbose    bool
	noColor    bool

	cfg         config.Config
	meta        config.Metadata
	container   *di.Container
	stopMetrics context.CancelFunc
}

func newRootCommand() *cobra.Command {
	cli := &CLI{}

	root := &cobra.Command{
		Use:           "reasoner",
		Short:         "Agentic reasoning engine",
		Long:          "reasoner answers questions by choosing a reasoning strategy, retrieving evidence, and grading its own answers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cli.noColor || !isTTY() {
				color.NoColor = true
			}
			cfg, meta, err := config.Load(cli.configPath)
			if err != nil {
				return err
			}
			if cli.verbose {
				cfg.Observability.Logging.Level = "debug"
			}
			cli.cfg, cli.meta = cfg, meta
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cli.close()
		},
	}

	root.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "path to reasoner.yaml")
	root.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&cli.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newAskCommand(cli),
		newPlanCommand(cli),
		newIngestCommand(cli),
		newConfigCommand(cli),
		newVersionCommand(),
	)
	return root
}

// app builds the container on first use. Commands that only inspect
// configuration never pay for it.
func (c *CLI) app(cmd *cobra.Command) (*di.Container, error) {
	if c.container != nil {
		return c.container, nil
	}
	container, err := di.Build(c.cfg, di.WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}
	c.container = container

	if c.cfg.Observability.Metrics.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopMetrics = cancel
		addr := c.cfg.Observability.Metrics.Listen
		async.Go(container.Logger, "metrics-server", func() {
			if err := observability.ServeMetrics(ctx, addr, container.Gatherer); err != nil {
				container.Logger.Warn("metrics server stopped: %v", err)
			}
		})
	}
	return container, nil
}

func (c *CLI) close() error {
	if c.stopMetrics != nil {
		c.stopMetrics()
	}
	if c.container == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := c.container.Shutdown(ctx)
	c.container = nil
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
