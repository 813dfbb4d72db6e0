package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mfenderov/pagechat/pkg/models"
)

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

// mockES answers like Elasticsearch and records request bodies by path.
func mockES(t *testing.T, handler func(path string, body []byte) string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(handler(r.URL.Path, body)))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{Addresses: []string{server.URL}, Index: "chunks", Dims: 8})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(Config{Addresses: []string{"http://localhost:9200"}}); err == nil {
		t.Error("New() should fail without an index name")
	}
}

func TestClient_Mapping_UsesDims(t *testing.T) {
	client, err := New(Config{Addresses: []string{"http://localhost:9200"}, Index: "x", Dims: 384})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(client.mapping()), &m); err != nil {
		t.Fatalf("mapping is not valid JSON: %v", err)
	}
	if !strings.Contains(client.mapping(), `"dims": 384`) {
		t.Errorf("mapping should use configured dims:\n%s", client.mapping())
	}
}

func TestClient_IndexChunks_BulkBody(t *testing.T) {
	var bulkBody string
	client := mockES(t, func(path string, body []byte) string {
		if strings.HasSuffix(path, "/_bulk") {
			bulkBody = string(body)
		}
		return `{"errors":false,"items":[]}`
	})

	chunks := []models.Chunk{
		{ID: models.ChunkID("https://example.com/", 0), URL: "https://example.com/", Content: "first"},
		{ID: models.ChunkID("https://example.com/", 1), URL: "https://example.com/", Content: "second"},
	}
	if err := client.IndexChunks(t.Context(), chunks); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(bulkBody), "\n")
	if len(lines) != 4 {
		t.Fatalf("bulk body has %d lines, want 4:\n%s", len(lines), bulkBody)
	}
	if !strings.Contains(lines[0], chunks[0].ID) || !strings.Contains(lines[2], chunks[1].ID) {
		t.Errorf("bulk actions should carry chunk IDs:\n%s", bulkBody)
	}
}

func TestClient_IndexChunks_ReportsItemErrors(t *testing.T) {
	client := mockES(t, func(path string, body []byte) string {
		return `{"errors":true,"items":[{"index":{"_id":"abc-0000","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad dims"}}}]}`
	})

	err := client.IndexChunks(t.Context(), []models.Chunk{{ID: "abc-0000", Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "bad dims") {
		t.Errorf("IndexChunks() error = %v, want item error", err)
	}
}

func TestClient_IndexChunks_Empty(t *testing.T) {
	client := mockES(t, func(path string, body []byte) string {
		t.Errorf("unexpected request to %s", path)
		return `{}`
	})
	if err := client.IndexChunks(t.Context(), nil); err != nil {
		t.Errorf("IndexChunks(nil) error = %v", err)
	}
}

func TestClient_Search_BM25AndHybrid(t *testing.T) {
	var lastQuery map[string]any
	client := mockES(t, func(path string, body []byte) string {
		lastQuery = nil
		json.Unmarshal(body, &lastQuery)
		return `{"hits":{"hits":[{"_score":1.5,"_source":{"id":"a-0000","url":"https://example.com/","content":"hello","position":0}}]}}`
	})

	chunks, err := client.Search(t.Context(), "hello", nil, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "hello" || chunks[0].Score != 1.5 {
		t.Errorf("Search() = %+v", chunks)
	}
	if _, ok := lastQuery["query"]; !ok {
		t.Errorf("BM25 search should send a query: %v", lastQuery)
	}

	if _, err := client.Search(t.Context(), "hello", []float32{0.1, 0.2}, 3); err != nil {
		t.Fatalf("Search() with embedding error = %v", err)
	}
	if _, ok := lastQuery["retriever"]; !ok {
		t.Errorf("hybrid search should send a retriever: %v", lastQuery)
	}
}

func TestClient_SearchURL_FiltersByURL(t *testing.T) {
	var lastBody string
	client := mockES(t, func(path string, body []byte) string {
		lastBody = string(body)
		return `{"hits":{"hits":[]}}`
	})

	tests := []struct {
		name      string
		embedding []float32
		wantKey   string
	}{
		{"bm25", nil, `"query"`},
		{"hybrid", []float32{0.1, 0.2}, `"retriever"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.SearchURL(t.Context(), "https://a.com/", "pricing", tt.embedding, 3); err != nil {
				t.Fatalf("SearchURL() error = %v", err)
			}
			if !strings.Contains(lastBody, tt.wantKey) {
				t.Errorf("body missing %s: %s", tt.wantKey, lastBody)
			}
			if !strings.Contains(lastBody, `"filter"`) || !strings.Contains(lastBody, `{"term":{"url":"https://a.com/"}}`) {
				t.Errorf("body should filter by url: %s", lastBody)
			}
		})
	}

	if _, err := client.Search(t.Context(), "pricing", nil, 3); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if strings.Contains(lastBody, `"filter"`) {
		t.Errorf("unscoped search should not filter: %s", lastBody)
	}
}

func TestClient_IndexAndSearch(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "pagechat-test-search",
		Dims:      4,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)
	defer client.DeleteIndex(ctx)

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	install := "https://example.com/docs/install"
	users := "https://example.com/api/users"
	chunks := []models.Chunk{
		{ID: models.ChunkID(install, 0), URL: install, Title: "Installation", Content: "Run go install to install the package."},
		{ID: models.ChunkID(install, 1), URL: install, Title: "Installation", Position: 1, Content: "Configure the application using environment variables."},
		{ID: models.ChunkID(users, 0), URL: users, Title: "Users API", Content: "The users endpoint returns a list of all users."},
	}
	if err := client.IndexChunks(ctx, chunks); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	client.Refresh(ctx)

	results, err := client.Search(ctx, "install", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 || results[0].URL != install {
		t.Errorf("Search('install') = %+v, want install chunk first", results)
	}

	if err := client.DeleteURL(ctx, install); err != nil {
		t.Fatalf("DeleteURL() error = %v", err)
	}
	client.Refresh(ctx)

	results, err = client.Search(ctx, "install", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range results {
		if r.URL == install {
			t.Errorf("chunk of deleted URL still returned: %+v", r)
		}
	}
}
