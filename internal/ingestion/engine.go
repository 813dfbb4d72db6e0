// Package ingestion adds a web page to the retrieval context: fetch, archive,
// convert, chunk, embed and index.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/pagechat/internal/chunker"
	"github.com/mfenderov/pagechat/internal/fetcher"
	"github.com/mfenderov/pagechat/internal/markdown"
	"github.com/mfenderov/pagechat/internal/processor"
	"github.com/mfenderov/pagechat/internal/storage"
	"github.com/mfenderov/pagechat/pkg/models"
	whatwg "github.com/nlnwa/whatwg-url/url"
)

var (
	ErrUnsupportedType   = errors.New("unsupported source type")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrInvalidConfig     = errors.New("invalid chunk config")
	ErrNoContent         = errors.New("no content extracted")
)

// PageFetcher downloads a single page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*fetcher.Page, error)
}

// ChunkIndex stores chunks for retrieval.
type ChunkIndex interface {
	IndexChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteURL(ctx context.Context, url string) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SnapshotStore archives raw pages.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, snap storage.Snapshot) (string, error)
}

type refresher interface {
	Refresh(ctx context.Context) error
}

// Result holds the outcome of one Add call.
type Result struct {
	URL      string
	Title    string
	Chunks   int
	Snapshot string // storage prefix, empty when snapshots are disabled or failed
	Duration time.Duration
}

// Engine implements the ingestion API on top of the fetcher, processor,
// chunker and a chunk index.
type Engine struct {
	fetcher   PageFetcher
	index     ChunkIndex
	embedder  Embedder      // nil if embeddings disabled
	snapshots SnapshotStore // nil if snapshots disabled
	processor *processor.Processor
	now       func() time.Time
}

// New creates a new ingestion engine. embedder and snapshots may be nil.
func New(f PageFetcher, index ChunkIndex, embedder Embedder, snapshots SnapshotStore) (*Engine, error) {
	if f == nil {
		return nil, errors.New("ingestion: fetcher is required")
	}
	if index == nil {
		return nil, errors.New("ingestion: chunk index is required")
	}
	return &Engine{
		fetcher:   f,
		index:     index,
		embedder:  embedder,
		snapshots: snapshots,
		processor: processor.New(),
		now:       time.Now,
	}, nil
}

// Validate checks a source before any network work is done.
func Validate(src models.Source) error {
	if src.Type != models.SourceTypeHTML {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, src.Type)
	}
	if src.URL == "" {
		return fmt.Errorf("%w: empty source URL", ErrInvalidConfig)
	}
	parsed, err := whatwg.Parse(src.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if scheme := parsed.Scheme(); scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	if src.Config.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunkSize must be positive, got %d", ErrInvalidConfig, src.Config.ChunkSize)
	}
	if src.Config.ChunkOverlap < 0 || src.Config.ChunkOverlap >= src.Config.ChunkSize {
		return fmt.Errorf("%w: chunkOverlap must be in [0, chunkSize), got %d", ErrInvalidConfig, src.Config.ChunkOverlap)
	}
	return nil
}

// Add ingests the page named by src. Re-adding a URL replaces its chunks.
func (e *Engine) Add(ctx context.Context, src models.Source) (*Result, error) {
	start := time.Now()
	if err := Validate(src); err != nil {
		return nil, err
	}

	splitter, err := chunker.New(src.Config.ChunkSize, src.Config.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	slog.Info("starting ingestion", "url", src.URL,
		"chunk_size", src.Config.ChunkSize, "chunk_overlap", src.Config.ChunkOverlap)

	page, err := e.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	result := &Result{URL: src.URL}

	if e.snapshots != nil {
		prefix, err := e.snapshots.PutSnapshot(ctx, storage.Snapshot{
			URL:         src.URL,
			Body:        page.Body,
			ContentType: page.ContentType,
			StatusCode:  page.StatusCode,
			FetchedAt:   page.FetchedAt,
		})
		if err != nil {
			slog.Warn("failed to store snapshot", "url", src.URL, "error", err)
		} else {
			result.Snapshot = prefix
		}
	}

	text, title, err := e.convert(src.URL, page)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = src.URL
	}
	result.Title = title

	pieces := splitter.Split(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w from %s", ErrNoContent, src.URL)
	}

	indexedAt := e.now()
	chunks := make([]models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.Chunk{
			ID:        models.ChunkID(src.URL, i),
			URL:       src.URL,
			Title:     title,
			Position:  i,
			Content:   piece,
			IndexedAt: indexedAt,
		}
	}
	e.embed(ctx, chunks)

	if err := e.index.DeleteURL(ctx, src.URL); err != nil {
		return nil, fmt.Errorf("failed to clear previous chunks: %w", err)
	}
	if err := e.index.IndexChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}
	if r, ok := e.index.(refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			slog.Warn("failed to refresh index", "error", err)
		}
	}

	result.Chunks = len(chunks)
	result.Duration = time.Since(start)
	slog.Info("ingestion complete", "url", src.URL, "title", title,
		"chunks", result.Chunks, "duration", result.Duration)

	return result, nil
}

// convert returns page text as markdown plus a title. Pages declared as HTML
// always go through the processor, whatever their URL looks like.
func (e *Engine) convert(pageURL string, page *fetcher.Page) (string, string, error) {
	content := string(page.Body)

	if !page.IsHTML() && markdown.Detect(page.URL, page.ContentType, content) {
		slog.Debug("page is already markdown", "url", pageURL)
		return content, markdown.Title(content), nil
	}

	res, err := e.processor.Process(content, page.URL)
	if err != nil {
		return "", "", fmt.Errorf("failed to convert %s: %w", pageURL, err)
	}
	return res.Markdown, res.Title, nil
}

// embed attaches vectors to chunks. Failures leave the chunk without one.
func (e *Engine) embed(ctx context.Context, chunks []models.Chunk) {
	if e.embedder == nil {
		return
	}
	for i := range chunks {
		emb, err := e.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			slog.Warn("failed to generate embedding", "chunk", chunks[i].ID, "error", err)
			continue
		}
		chunks[i].Embedding = emb
	}
}
