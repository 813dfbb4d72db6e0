package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mfenderov/pagechat/internal/chat"
	"github.com/mfenderov/pagechat/internal/gate"
	"github.com/mfenderov/pagechat/internal/history"
	"github.com/mfenderov/pagechat/internal/ingestion"
	"github.com/mfenderov/pagechat/internal/localindex"
	"github.com/mfenderov/pagechat/internal/submission"
	"github.com/mfenderov/pagechat/pkg/models"
)

type stubIngester struct {
	calls int
	err   error
}

func (s *stubIngester) Add(ctx context.Context, src models.Source) (*ingestion.Result, error) {
	s.calls++
	return &ingestion.Result{URL: src.URL, Chunks: 1}, s.err
}

type stubAsker struct {
	gotKey, gotURL string
}

func (s *stubAsker) Chat(ctx context.Context, sessionKey, pageURL, question string) (*chat.Answer, error) {
	s.gotKey, s.gotURL = sessionKey, pageURL
	return &chat.Answer{Answer: "42"}, nil
}

type testServer struct {
	*Server
	ing     *stubIngester
	history *history.MemoryStore
	index   *localindex.Index
	asker   *stubAsker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ing := &stubIngester{}
	hist := history.NewMemoryStore()
	orch, err := submission.New(gate.NewMemorySet(), ing, hist)
	if err != nil {
		t.Fatalf("submission.New() error = %v", err)
	}
	idx, err := localindex.New(localindex.Config{})
	if err != nil {
		t.Fatalf("localindex.New() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	asker := &stubAsker{}
	s, err := NewServer(Config{Name: "pagechat", Version: "test"}, Deps{
		Submitter: orch,
		History:   hist,
		Retriever: idx,
		Asker:     asker,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return &testServer{Server: s, ing: ing, history: hist, index: idx, asker: asker}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

func TestNewServer_RequiresDeps(t *testing.T) {
	if _, err := NewServer(Config{Name: "x", Version: "1"}, Deps{}); err == nil {
		t.Error("NewServer() without deps should fail")
	}
}

func TestServer_SubmitTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.submitHandler(ctx, call(map[string]any{"url": "https://example.com/path", "token": "abc123"}))
	if err != nil {
		t.Fatalf("submitHandler() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("submit_url returned error: %s", resultText(t, res))
	}

	var out submitResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.CanonicalURL != "https://example.com/path" || out.SessionKey != "https:example.compath--session--abc123" {
		t.Errorf("submit result = %+v", out)
	}
	if out.Skipped || s.ing.calls != 1 {
		t.Errorf("first submission should ingest (skipped=%v, calls=%d)", out.Skipped, s.ing.calls)
	}

	res, _ = s.submitHandler(ctx, call(map[string]any{"url": "https://example.com/path"}))
	json.Unmarshal([]byte(resultText(t, res)), &out)
	if !out.Skipped || s.ing.calls != 1 {
		t.Errorf("second submission should skip (skipped=%v, calls=%d)", out.Skipped, s.ing.calls)
	}
}

func TestServer_SubmitTool_Errors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _ := s.submitHandler(ctx, call(map[string]any{"url": "not a url"}))
	if !res.IsError || resultText(t, res) != "Please enter a valid URL" {
		t.Errorf("invalid url result = %+v", res)
	}

	res, _ = s.submitHandler(ctx, call(map[string]any{}))
	if !res.IsError {
		t.Error("missing url should be an error result")
	}

	s.ing.err = errors.New("fetch failed")
	res, _ = s.submitHandler(ctx, call(map[string]any{"url": "https://fails.example.com/"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "submission failed") {
		t.Errorf("ingestion failure result = %+v", res)
	}
}

func TestServer_HistoryTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	key := "https:a.com--session--tok"
	for _, c := range []string{"one", "two", "three"} {
		s.history.AddMessages(ctx, key, models.Message{Role: models.RoleUser, Content: c})
	}

	res, _ := s.historyHandler(ctx, call(map[string]any{"url": "https://a.com/", "token": "tok", "amount": 2}))
	if res.IsError {
		t.Fatalf("get_history error: %s", resultText(t, res))
	}

	var msgs []models.Message
	json.Unmarshal([]byte(resultText(t, res)), &msgs)
	if len(msgs) != 2 || msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("get_history = %+v, want [two three]", msgs)
	}

	res, _ = s.historyHandler(ctx, call(map[string]any{"url": "https://a.com/", "token": "someone-else"}))
	if resultText(t, res) != "[]" {
		t.Errorf("other token history = %s, want []", resultText(t, res))
	}

	res, _ = s.historyHandler(ctx, call(map[string]any{"url": "nope"}))
	if !res.IsError {
		t.Error("invalid url should be an error result")
	}
}

func TestServer_SearchTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	url := "https://example.com/docs"
	s.index.IndexChunks(ctx, []models.Chunk{
		{ID: models.ChunkID(url, 0), URL: url, Title: "Docs", Content: "Welcome to the getting started guide for installation."},
		{ID: models.ChunkID(url, 1), URL: url, Title: "Docs", Position: 1, Content: "The API provides RESTful endpoints for users."},
	})

	chunks, err := s.handleSearch(ctx, "installation", 10)
	if err != nil {
		t.Fatalf("handleSearch() error = %v", err)
	}
	if len(chunks) == 0 || chunks[0].Position != 0 {
		t.Errorf("handleSearch('installation') = %+v", chunks)
	}

	res, _ := s.searchHandler(ctx, call(map[string]any{"query": "endpoints", "limit": 1}))
	var out []models.Chunk
	json.Unmarshal([]byte(resultText(t, res)), &out)
	if len(out) != 1 || out[0].Position != 1 {
		t.Errorf("search_context = %+v", out)
	}
}

func TestServer_AskTool(t *testing.T) {
	s := newTestServer(t)

	res, _ := s.askHandler(context.Background(), call(map[string]any{
		"url": "https://a.com/", "token": "tok", "question": "what?",
	}))
	if res.IsError {
		t.Fatalf("ask_page error: %s", resultText(t, res))
	}
	if s.asker.gotKey != "https:a.com--session--tok" || s.asker.gotURL != "https://a.com/" {
		t.Errorf("asker got key %q url %q", s.asker.gotKey, s.asker.gotURL)
	}
	if !strings.Contains(resultText(t, res), `"answer":"42"`) {
		t.Errorf("ask_page result = %s", resultText(t, res))
	}
}

func TestServer_AskTool_CanonicalizesURL(t *testing.T) {
	s := newTestServer(t)

	res, _ := s.askHandler(context.Background(), call(map[string]any{
		"url": "HTTPS://A.com", "token": "tok", "question": "what?",
	}))
	if res.IsError {
		t.Fatalf("ask_page error: %s", resultText(t, res))
	}
	if s.asker.gotURL != "https://a.com/" || s.asker.gotKey != "https:a.com--session--tok" {
		t.Errorf("asker got key %q url %q, want canonical form", s.asker.gotKey, s.asker.gotURL)
	}
}

func TestServer_AskTool_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"invalid url", map[string]any{"url": "not a url", "question": "what?"}, "valid URL"},
		{"missing url", map[string]any{"question": "what?"}, "url parameter is required"},
		{"missing question", map[string]any{"url": "https://a.com/"}, "question parameter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			res, _ := s.askHandler(context.Background(), call(tt.args))
			if !res.IsError || !strings.Contains(resultText(t, res), tt.want) {
				t.Errorf("ask_page result = %s, want error containing %q", resultText(t, res), tt.want)
			}
			if s.asker.gotKey != "" {
				t.Error("asker should not be called")
			}
		})
	}
}
