package rag

import (
	"strings"
	"unicode/utf8"
)

// ChunkerConfig holds chunking configuration. Sizes are in approximate
// tokens (four characters per token).
type ChunkerConfig struct {
	ChunkSize    int // default 512
	ChunkOverlap int // default 50
}

// Chunk is a slice of a source text with its line span.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunker splits text into overlapping line-aligned chunks.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a chunker with defaults applied.
func NewChunker(config ChunkerConfig) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	} else if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 50
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 4
	}
	return &Chunker{config: config}
}

// CountTokens estimates the token count of text.
func CountTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// ChunkText splits text into chunks. Lines longer than a chunk are split by
// characters.
func (c *Chunker) ChunkText(text string) []Chunk {
	lines := strings.Split(text, "\n")

	var chunks []Chunk
	var current []string
	currentStart := 0
	currentTokens := 0

	flush := func(endLine int) {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		if body != "" {
			chunks = append(chunks, Chunk{Text: body, StartLine: currentStart + 1, EndLine: endLine + 1})
		}
		current = current[:0]
		currentTokens = 0
	}

	for lineNum, line := range lines {
		lineTokens := CountTokens(line) + 1

		if lineTokens > c.config.ChunkSize {
			if len(current) > 0 {
				flush(lineNum - 1)
			}
			for _, part := range splitRunes(line, c.config.ChunkSize*4) {
				chunks = append(chunks, Chunk{Text: part, StartLine: lineNum + 1, EndLine: lineNum + 1})
			}
			currentStart = lineNum + 1
			continue
		}

		if currentTokens+lineTokens > c.config.ChunkSize && len(current) > 0 {
			overlap, overlapStart := c.overlap(lines, lineNum, currentStart)
			flush(lineNum - 1)
			current = append(current, overlap...)
			currentStart = overlapStart
			for _, l := range overlap {
				currentTokens += CountTokens(l) + 1
			}
		}
		if len(current) == 0 && currentTokens == 0 {
			currentStart = lineNum
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	if len(current) > 0 {
		flush(len(lines) - 1)
	}
	return chunks
}

// overlap returns the trailing lines of the chunk ending before lineNum that
// fit in the overlap budget.
func (c *Chunker) overlap(lines []string, lineNum, chunkStart int) ([]string, int) {
	tokens := 0
	start := lineNum
	for i := lineNum - 1; i > chunkStart; i-- {
		t := CountTokens(lines[i]) + 1
		if tokens+t > c.config.ChunkOverlap {
			break
		}
		tokens += t
		start = i
	}
	return append([]string(nil), lines[start:lineNum]...), start
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
