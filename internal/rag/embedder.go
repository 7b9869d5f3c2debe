package rag

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	reasonerrors "reasoner/internal/errors"
	"reasoner/internal/httpclient"
	"reasoner/internal/logging"
	jsonx "reasoner/internal/shared/json"
)

// Embedder generates text embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedderConfig holds embedding configuration.
type EmbedderConfig struct {
	Provider   string // "hash" or "openai"
	Model      string // "text-embedding-3-small"
	APIKey     string
	BaseURL    string
	Dimensions int // hash embedder only, default 256
	CacheSize  int // LRU cache size, default 10000
	Logger     logging.Logger
}

// NewEmbedder creates the configured embedder wrapped in an LRU cache.
func NewEmbedder(config EmbedderConfig) (Embedder, error) {
	var base Embedder
	switch strings.ToLower(config.Provider) {
	case "", "hash":
		base = NewHashEmbedder(config.Dimensions)
	case "openai":
		base = newOpenAIEmbedder(config)
	default:
		return nil, fmt.Errorf("unsupported embedder provider %q", config.Provider)
	}
	return NewCachedEmbedder(base, config.CacheSize)
}

// hashEmbedder maps tokens into a fixed number of buckets (feature hashing).
// It needs no model and is deterministic, so stores built offline reproduce
// the same rankings.
type hashEmbedder struct {
	dims int
}

const defaultHashDimensions = 256

// NewHashEmbedder returns a deterministic bag-of-words embedder.
func NewHashEmbedder(dims int) Embedder {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return hashEmbedder{dims: dims}
}

func (h hashEmbedder) Dimensions() int { return h.dims }

func (h hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	tokens := tokenize(text)
	for _, tok := range tokens {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum32()
		idx := int(sum % uint32(h.dims))
		// The high bit picks the sign so collisions partially cancel out.
		if sum&0x80000000 != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	normalize(vec)
	if len(tokens) == 0 {
		// chromem rejects zero vectors
		vec[0] = 1
	}
	return vec, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "is": true, "of": true, "and": true, "to": true, "in": true,
	"an": true, "what": true, "for": true, "on": true, "with": true, "as": true,
	"are": true, "be": true, "by": true, "it": true, "or": true, "that": true,
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// openaiEmbedder calls an OpenAI-compatible /embeddings endpoint.
type openaiEmbedder struct {
	config     EmbedderConfig
	httpClient *http.Client
	logger     logging.Logger
}

func newOpenAIEmbedder(config EmbedderConfig) *openaiEmbedder {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &openaiEmbedder{
		config:     config,
		httpClient: httpclient.New(httpclient.Options{Timeout: 60 * time.Second, Logger: config.Logger, Breaker: "embeddings"}),
		logger:     logging.WithComponent(config.Logger, "embedder"),
	}
}

// Dimensions returns 1536, the size of text-embedding-3-small.
func (e *openaiEmbedder) Dimensions() int { return 1536 }

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	policy := reasonerrors.RetryPolicy{Retries: 2, Initial: time.Second, Max: 4 * time.Second, Jitter: 0.25}
	return reasonerrors.Do(ctx, policy, e.logger, func(ctx context.Context) ([]float32, error) {
		return e.callAPI(ctx, text)
	})
}

func (e *openaiEmbedder) callAPI(ctx context.Context, text string) ([]float32, error) {
	body, err := jsonx.Marshal(map[string]any{"model": e.config.Model, "input": []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, reasonerrors.Transient(err, "The embedding service is unreachable.")
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := httpclient.ReadBody(resp, 16<<20)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := jsonx.Unmarshal(payload, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embeddings API returned no vectors")
	}
	return apiResp.Data[0].Embedding, nil
}

// cachedEmbedder memoizes embeddings by exact text.
type cachedEmbedder struct {
	Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps embedder with an LRU cache of size entries.
func NewCachedEmbedder(embedder Embedder, size int) (Embedder, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &cachedEmbedder{Embedder: embedder, cache: cache}, nil
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}
