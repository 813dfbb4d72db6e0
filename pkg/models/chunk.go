package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceTypeHTML is the only source type the ingestion engine accepts.
const SourceTypeHTML = "html"

// ChunkConfig controls how a source is split before indexing.
type ChunkConfig struct {
	ChunkOverlap int `json:"chunkOverlap"`
	ChunkSize    int `json:"chunkSize"`
}

// Source is a request to add a document to the retrieval context.
type Source struct {
	Type   string      `json:"type"`
	URL    string      `json:"source"`
	Config ChunkConfig `json:"config"`
}

// Chunk is one indexed slice of an ingested page.
type Chunk struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	Content   string    `json:"content"`
	IndexedAt time.Time `json:"indexed_at"`
	Embedding []float32 `json:"embedding,omitempty"`
	Score     float64   `json:"score,omitempty"`
}

// GenerateDocumentID creates a deterministic ID from URL.
// The ID is a SHA-256 hash (first 16 chars) of the URL.
func GenerateDocumentID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}

// ChunkID returns the stable ID of the chunk at position within url.
// Re-ingesting a URL produces the same IDs, so indexes overwrite instead of duplicating.
func ChunkID(url string, position int) string {
	return fmt.Sprintf("%s-%04d", GenerateDocumentID(url), position)
}
