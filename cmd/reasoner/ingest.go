package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reasoner/internal/rag"
)

func newIngestCommand(cli *CLI) *cobra.Command {
	var (
		collection  string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Load documents into a retrieval collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cli.cfg.RAG.Enabled {
				return fmt.Errorf("retrieval is disabled (rag.enabled=false)")
			}
			app, err := cli.app(cmd)
			if err != nil {
				return err
			}
			if collection == "" {
				collection = cli.cfg.RAG.Collections[0]
			}
			store, ok := app.Store(collection)
			if !ok {
				return fmt.Errorf("unknown collection %q (configured: %v)", collection, cli.cfg.RAG.Collections)
			}

			out := cmd.OutOrStdout()
			if cli.cfg.RAG.PersistPath == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), yellow("warning: rag.persist_path is empty; documents last only for this process"))
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			stats, err := rag.Ingest(ctx, store, rag.IngestConfig{
				Root:       args[0],
				Extensions: cli.cfg.RAG.Extensions,
				Chunker: rag.ChunkerConfig{
					ChunkSize:    cli.cfg.RAG.ChunkSize,
					ChunkOverlap: cli.cfg.RAG.ChunkOverlap,
				},
				Concurrency: concurrency,
				Logger:      app.Logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d files, %d chunks into %s %s\n", green("ingested"), stats.Files, stats.Chunks, bold(collection),
				gray(fmt.Sprintf("(skipped %d, errors %d, total %d)", stats.Skipped, stats.Errors, store.Count())))
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "target collection (default: the first configured)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "files processed in parallel")
	return cmd
}
