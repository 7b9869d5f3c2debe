package ports

import "context"

// RetrievedDocument is one hit returned by a retrieval collaborator.
type RetrievedDocument struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Score      float64           `json:"score"`
	Collection string            `json:"collection,omitempty"`
}

// Retriever answers similarity queries over an indexed corpus.
type Retriever interface {
	Query(ctx context.Context, text string, topK int) ([]RetrievedDocument, error)
}

// SourceFor derives a citation from document metadata.
func (d RetrievedDocument) SourceFor() Source {
	title := d.Metadata["title"]
	if title == "" {
		title = d.Metadata["path"]
	}
	if title == "" {
		title = d.ID
	}
	return Source{Title: title, URL: d.Metadata["url"]}
}
