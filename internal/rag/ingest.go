package rag

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"reasoner/internal/logging"
)

// IngestConfig controls which files are loaded.
type IngestConfig struct {
	Root        string
	Extensions  []string // default .md .txt .rst
	ExcludeDirs []string // default .git node_modules vendor
	Chunker     ChunkerConfig
	Concurrency int
	Logger      logging.Logger
}

// IngestStats summarizes an ingest run.
type IngestStats struct {
	Files   int
	Chunks  int
	Skipped int
	Errors  int
}

// Ingest walks config.Root and stores every matching file, chunked, in store.
// Per-file failures are counted and logged; only a walk failure or
// cancellation aborts the run.
func Ingest(ctx context.Context, store *Store, config IngestConfig) (IngestStats, error) {
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".md", ".txt", ".rst"}
	}
	if len(config.ExcludeDirs) == 0 {
		config.ExcludeDirs = []string{".git", "node_modules", "vendor"}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	logger := logging.WithComponent(config.Logger, "ingest")

	files, skipped, err := collectFiles(config)
	if err != nil {
		return IngestStats{}, fmt.Errorf("collect files: %w", err)
	}

	chunker := NewChunker(config.Chunker)
	var chunks, failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Concurrency)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := ingestFile(gctx, store, chunker, config.Root, path)
			if err != nil {
				failures.Add(1)
				logger.Warn("skip %s: %v", path, err)
				return nil
			}
			chunks.Add(int64(n))
			return nil
		})
	}
	waitErr := g.Wait()

	stats := IngestStats{
		Files:   len(files) - int(failures.Load()),
		Chunks:  int(chunks.Load()),
		Skipped: skipped,
		Errors:  int(failures.Load()),
	}
	if waitErr != nil {
		return stats, waitErr
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	logger.Info("ingested %d files (%d chunks) into %s", stats.Files, stats.Chunks, store.Name())
	return stats, nil
}

func ingestFile(ctx context.Context, store *Store, chunker *Chunker, root, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	parts := chunker.ChunkText(string(content))
	docs := make([]Document, 0, len(parts))
	for _, chunk := range parts {
		key := fmt.Sprintf("%s:%d-%d", rel, chunk.StartLine, chunk.EndLine)
		docs = append(docs, Document{
			ID:      fmt.Sprintf("%x", sha256.Sum256([]byte(key)))[:16],
			Content: chunk.Text,
			Metadata: map[string]string{
				"path":       rel,
				"title":      title,
				"start_line": fmt.Sprint(chunk.StartLine),
				"end_line":   fmt.Sprint(chunk.EndLine),
			},
		})
	}
	if err := store.Add(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func collectFiles(config IngestConfig) ([]string, int, error) {
	exts := make(map[string]bool, len(config.Extensions))
	for _, ext := range config.Extensions {
		exts[strings.ToLower(ext)] = true
	}
	excluded := make(map[string]bool, len(config.ExcludeDirs))
	for _, dir := range config.ExcludeDirs {
		excluded[dir] = true
	}

	var files []string
	skipped := 0
	err := filepath.WalkDir(config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != config.Root && excluded[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			skipped++
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, skipped, err
}
