// Package elasticsearch stores page chunks in Elasticsearch and retrieves them
// with BM25, optionally fused with kNN over chunk embeddings.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/mfenderov/pagechat/pkg/models"
)

// DefaultDims matches the embedding model used by default.
const DefaultDims = 2560

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	Dims      int // embedding dimensions; 0 means DefaultDims
	Transport http.RoundTripper
}

// Client wraps the Elasticsearch client with chunk index operations.
type Client struct {
	es    *elasticsearch.Client
	index string
	dims  int
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("elasticsearch index name is required")
	}
	if config.Dims <= 0 {
		config.Dims = DefaultDims
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		Transport: config.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{es: es, index: config.Index, dims: config.Dims}, nil
}

// Index returns the index name.
func (c *Client) Index() string {
	return c.index
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

func (c *Client) mapping() string {
	return fmt.Sprintf(`{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"url": { "type": "keyword" },
			"title": { "type": "text" },
			"position": { "type": "integer" },
			"content": { "type": "text", "analyzer": "english" },
			"indexed_at": { "type": "date" },
			"embedding": {
				"type": "dense_vector",
				"dims": %d,
				"index": true,
				"similarity": "cosine"
			}
		}
	}
}`, c.dims)
}

// CreateIndex creates the index with the chunk mapping. Existing indexes are left alone.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(c.mapping()))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// IndexChunks writes chunks with the bulk API, using chunk IDs as document IDs.
func (c *Client) IndexChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ch := range chunks {
		meta := map[string]any{"index": map[string]any{"_index": c.index, "_id": ch.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		ch.Score = 0
		if err := enc.Encode(ch); err != nil {
			return fmt.Errorf("failed to marshal chunk: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(c.index),
	)
	if err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing chunks (status %d): %s", res.StatusCode, res.String())
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if br.Errors {
		for _, item := range br.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("error indexing chunk %s: %s: %s", r.ID, r.Error.Type, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("error indexing chunks: bulk request reported errors")
	}

	return nil
}

// DeleteURL removes every chunk of url so a re-ingested page leaves no stale tail.
func (c *Client) DeleteURL(ctx context.Context, url string) error {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"term": map[string]any{"url": url}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(body),
		c.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("error deleting chunks: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64      `json:"_score"`
			Source models.Chunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func urlFilter(url string) map[string]any {
	return map[string]any{"term": map[string]any{"url": url}}
}

// textQuery matches title and content. A non-empty url restricts it to that page.
func textQuery(query, url string) map[string]any {
	match := map[string]any{
		"multi_match": map[string]any{
			"query":  query,
			"fields": []string{"content", "title^2"},
		},
	}
	if url == "" {
		return match
	}
	return map[string]any{
		"bool": map[string]any{
			"must":   match,
			"filter": urlFilter(url),
		},
	}
}

// Search returns the best matching chunks. With a nil embedding it runs BM25
// only; otherwise BM25 and kNN results are fused with reciprocal rank fusion.
func (c *Client) Search(ctx context.Context, query string, embedding []float32, limit int) ([]models.Chunk, error) {
	return c.search(ctx, "", query, embedding, limit)
}

// SearchURL is Search restricted to the chunks of one page.
func (c *Client) SearchURL(ctx context.Context, url, query string, embedding []float32, limit int) ([]models.Chunk, error) {
	return c.search(ctx, url, query, embedding, limit)
}

func (c *Client) search(ctx context.Context, url, query string, embedding []float32, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = 10
	}

	searchQuery := map[string]any{
		"size":    limit,
		"_source": map[string]any{"excludes": []string{"embedding"}},
	}
	if embedding == nil {
		searchQuery["query"] = textQuery(query, url)
	} else {
		knn := map[string]any{
			"field":          "embedding",
			"query_vector":   embedding,
			"k":              limit,
			"num_candidates": limit * 2,
		}
		if url != "" {
			knn["filter"] = urlFilter(url)
		}
		searchQuery["retriever"] = map[string]any{
			"rrf": map[string]any{
				"retrievers": []map[string]any{
					{"standard": map[string]any{"query": textQuery(query, url)}},
					{"knn": knn},
				},
			},
		}
	}

	data, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	chunks := make([]models.Chunk, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		chunks[i] = hit.Source
		chunks[i].Score = hit.Score
	}

	return chunks, nil
}
