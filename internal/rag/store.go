// Package rag stores documents in a chromem-go vector database and serves
// similarity lookups to the reasoning engines.
package rag

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"reasoner/internal/domain/agent/ports"
)

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	PersistPath   string  // Directory holding the collection files; empty keeps the store in memory
	Collection    string  // Collection name
	MinSimilarity float32 // Results below this cosine similarity are dropped
}

// Document is one stored passage.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Store is a single chromem collection. It implements ports.Retriever.
type Store struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	minSimilarity float32
}

// NewStore opens (or creates) the configured collection.
func NewStore(config StoreConfig, embedder Embedder) (*Store, error) {
	if config.Collection == "" {
		config.Collection = "default"
	}
	if embedder == nil {
		embedder = NewHashEmbedder(0)
	}

	var db *chromem.DB
	if config.PersistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(config.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Store{
		db:            db,
		collection:    collection,
		name:          config.Collection,
		minSimilarity: config.MinSimilarity,
	}, nil
}

// Name returns the collection name.
func (s *Store) Name() string { return s.name }

// Add embeds and stores docs.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		batch = append(batch, chromem.Document{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata})
	}
	if err := s.collection.AddDocuments(ctx, batch, 4); err != nil {
		return fmt.Errorf("add documents to %s: %w", s.name, err)
	}
	return nil
}

// Query returns up to topK documents most similar to text.
func (s *Store) Query(ctx context.Context, text string, topK int) ([]ports.RetrievedDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	// chromem rejects nResults larger than the collection.
	if n := s.collection.Count(); n < topK {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := s.collection.Query(ctx, text, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", s.name, err)
	}
	docs := make([]ports.RetrievedDocument, 0, len(results))
	for _, r := range results {
		if r.Similarity < s.minSimilarity {
			continue
		}
		docs = append(docs, ports.RetrievedDocument{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Score:      float64(r.Similarity),
			Collection: s.name,
		})
	}
	return docs, nil
}

// Delete removes documents by ID.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.collection.Delete(ctx, nil, nil, ids...)
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}

var _ ports.Retriever = (*Store)(nil)
