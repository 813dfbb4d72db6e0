// Package localindex is an embedded chunk index backed by bleve. It needs no
// external services, which makes it the default for single-node setups and tests.
package localindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/lang/en"
	"github.com/blevesearch/bleve/mapping"
	blevequery "github.com/blevesearch/bleve/search/query"
	"github.com/mfenderov/pagechat/pkg/models"
)

const (
	rrfK       = 60
	deletePage = 500
)

var storedFields = []string{"url", "title", "content", "position", "indexed_at"}

// Config selects where the index lives. An empty Path keeps it in memory.
type Config struct {
	Path string
}

// Index stores chunks for BM25 search in bleve and keeps chunk embeddings in
// memory for cosine similarity. Embeddings are not persisted.
type Index struct {
	bleve bleve.Index

	mu      sync.RWMutex
	vectors map[string]models.Chunk
}

// New opens the index at config.Path, creating it if needed.
func New(config Config) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	switch {
	case config.Path == "":
		idx, err = bleve.NewMemOnly(indexMapping())
	default:
		idx, err = bleve.Open(config.Path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			slog.Debug("creating bleve index", "path", config.Path)
			idx, err = bleve.New(config.Path, indexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	return &Index{bleve: idx, vectors: make(map[string]models.Chunk)}, nil
}

func indexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("url", exact)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("position", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("indexed_at", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Close releases the underlying index.
func (x *Index) Close() error {
	return x.bleve.Close()
}

// Count returns the number of indexed chunks.
func (x *Index) Count() (uint64, error) {
	return x.bleve.DocCount()
}

// IndexChunks adds or replaces chunks by ID in one batch.
func (x *Index) IndexChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := x.bleve.NewBatch()
	for _, ch := range chunks {
		doc := map[string]any{
			"url":        ch.URL,
			"title":      ch.Title,
			"content":    ch.Content,
			"position":   float64(ch.Position),
			"indexed_at": ch.IndexedAt,
		}
		if err := batch.Index(ch.ID, doc); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", ch.ID, err)
		}
	}
	if err := x.bleve.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	x.mu.Lock()
	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			x.vectors[ch.ID] = ch
		} else {
			delete(x.vectors, ch.ID)
		}
	}
	x.mu.Unlock()

	return nil
}

// DeleteURL removes every chunk of url.
func (x *Index) DeleteURL(ctx context.Context, url string) error {
	q := bleve.NewTermQuery(url)
	q.SetField("url")

	for {
		res, err := x.bleve.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, deletePage, 0, false))
		if err != nil {
			return fmt.Errorf("failed to find chunks of %s: %w", url, err)
		}
		if len(res.Hits) == 0 {
			break
		}

		batch := x.bleve.NewBatch()
		x.mu.Lock()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
			delete(x.vectors, hit.ID)
		}
		x.mu.Unlock()

		if err := x.bleve.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", url, err)
		}
	}

	x.mu.Lock()
	for id, ch := range x.vectors {
		if ch.URL == url {
			delete(x.vectors, id)
		}
	}
	x.mu.Unlock()
	return nil
}

// Search returns up to limit chunks for query. With an embedding, BM25 and
// cosine rankings are fused with reciprocal rank fusion.
func (x *Index) Search(ctx context.Context, query string, embedding []float32, limit int) ([]models.Chunk, error) {
	return x.search(ctx, "", query, embedding, limit)
}

// SearchURL is Search restricted to the chunks of one page.
func (x *Index) SearchURL(ctx context.Context, url, query string, embedding []float32, limit int) ([]models.Chunk, error) {
	return x.search(ctx, url, query, embedding, limit)
}

func (x *Index) search(ctx context.Context, url, query string, embedding []float32, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = 10
	}

	text, err := x.textSearch(ctx, url, query, limit)
	if err != nil {
		return nil, err
	}
	if embedding == nil {
		return text, nil
	}

	return fuse(limit, text, x.vectorSearch(url, embedding, limit)), nil
}

// textSearch runs BM25 over title and content. A non-empty url restricts hits to that page.
func (x *Index) textSearch(ctx context.Context, url, query string, limit int) ([]models.Chunk, error) {
	content := bleve.NewMatchQuery(query)
	content.SetField("content")
	title := bleve.NewMatchQuery(query)
	title.SetField("title")
	title.SetBoost(2)

	var q blevequery.Query = bleve.NewDisjunctionQuery(content, title)
	if url != "" {
		page := bleve.NewTermQuery(url)
		page.SetField("url")
		q = bleve.NewConjunctionQuery(page, q)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = storedFields

	res, err := x.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ch := models.Chunk{ID: hit.ID, Score: hit.Score}
		ch.URL, _ = hit.Fields["url"].(string)
		ch.Title, _ = hit.Fields["title"].(string)
		ch.Content, _ = hit.Fields["content"].(string)
		if pos, ok := hit.Fields["position"].(float64); ok {
			ch.Position = int(pos)
		}
		if at, ok := hit.Fields["indexed_at"].(string); ok {
			ch.IndexedAt, _ = time.Parse(time.RFC3339Nano, at)
		}
		chunks = append(chunks, ch)
	}
	return chunks, nil
}

func (x *Index) vectorSearch(url string, embedding []float32, limit int) []models.Chunk {
	x.mu.RLock()
	scored := make([]models.Chunk, 0, len(x.vectors))
	for _, ch := range x.vectors {
		if url != "" && ch.URL != url {
			continue
		}
		ch.Score = cosine(embedding, ch.Embedding)
		ch.Embedding = nil
		scored = append(scored, ch)
	}
	x.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].ID < scored[j].ID
		}
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func fuse(limit int, lists ...[]models.Chunk) []models.Chunk {
	byID := make(map[string]models.Chunk)
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, ch := range list {
			if _, ok := byID[ch.ID]; !ok {
				byID[ch.ID] = ch
			}
			scores[ch.ID] += 1.0 / float64(rrfK+rank+1)
		}
	}

	out := make([]models.Chunk, 0, len(byID))
	for id, ch := range byID {
		ch.Score = scores[id]
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
