package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"reasoner/internal/domain/agent/ports"
	"reasoner/internal/logging"
)

// MultiRetriever fans a query out to several retrievers and merges the hits
// by score. A failing retriever is skipped as long as one succeeds.
type MultiRetriever struct {
	retrievers []ports.Retriever
	logger     logging.Logger
}

// NewMultiRetriever combines retrievers.
func NewMultiRetriever(logger logging.Logger, retrievers ...ports.Retriever) *MultiRetriever {
	return &MultiRetriever{retrievers: retrievers, logger: logging.WithComponent(logger, "retrieval")}
}

func (m *MultiRetriever) Query(ctx context.Context, text string, topK int) ([]ports.RetrievedDocument, error) {
	if len(m.retrievers) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	results := make([][]ports.RetrievedDocument, len(m.retrievers))
	errs := make([]error, len(m.retrievers))
	var g errgroup.Group
	for i, r := range m.retrievers {
		g.Go(func() error {
			docs, err := r.Query(ctx, text, topK)
			results[i], errs[i] = docs, err
			return nil
		})
	}
	_ = g.Wait()

	var merged []ports.RetrievedDocument
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			logging.FromContext(ctx, m.logger).Warn("retriever %d failed: %v", i, err)
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failed == len(m.retrievers) {
		return nil, fmt.Errorf("all %d retrievers failed: %w", failed, errors.Join(errs...))
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	merged = dedupe(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func dedupe(docs []ports.RetrievedDocument) []ports.RetrievedDocument {
	seen := make(map[string]bool, len(docs))
	out := docs[:0]
	for _, d := range docs {
		key := d.Collection + "/" + d.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

var _ ports.Retriever = (*MultiRetriever)(nil)
