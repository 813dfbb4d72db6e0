// Package mcp exposes submissions, session history and chunk search as MCP
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mfenderov/pagechat/internal/chat"
	"github.com/mfenderov/pagechat/internal/sessionkey"
	"github.com/mfenderov/pagechat/internal/submission"
	"github.com/mfenderov/pagechat/internal/urlcanon"
	"github.com/mfenderov/pagechat/pkg/models"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Submitter runs the submit-a-URL flow.
type Submitter interface {
	Submit(ctx context.Context, rawURL, token string) (*submission.Result, error)
}

// HistoryReader reads session messages.
type HistoryReader interface {
	GetMessages(ctx context.Context, sessionID string, amount int) ([]models.Message, error)
}

// Retriever searches indexed chunks.
type Retriever interface {
	Search(ctx context.Context, query string, embedding []float32, limit int) ([]models.Chunk, error)
}

// Asker answers questions within a session.
type Asker interface {
	Chat(ctx context.Context, sessionKey, pageURL, question string) (*chat.Answer, error)
}

// Deps are the services behind the tools. Asker may be nil, which leaves
// ask_page unregistered.
type Deps struct {
	Submitter Submitter
	History   HistoryReader
	Retriever Retriever
	Asker     Asker
}

// Server wraps the MCP server.
type Server struct {
	mcpServer *server.MCPServer
	deps      Deps
}

// NewServer creates a new MCP server with pagechat tools.
func NewServer(config Config, deps Deps) (*Server, error) {
	if deps.Submitter == nil || deps.History == nil || deps.Retriever == nil {
		return nil, errors.New("mcp: submitter, history and retriever are required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{mcpServer: mcpServer, deps: deps}

	mcpServer.AddTool(mcp.NewTool("submit_url",
		mcp.WithDescription("Index a web page (skipped if already indexed) and open the chat session for it. Returns the canonical URL, session key and recent messages."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL of the page, including scheme")),
		mcp.WithString("token", mcp.Description("Browser session token; sessions with different tokens have separate histories")),
	), s.submitHandler)

	mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Get the conversation history of a page for a session token, oldest message first."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL as submitted")),
		mcp.WithString("token", mcp.Description("Browser session token")),
		mcp.WithNumber("amount", mcp.Description("Number of most recent messages to return (default: 10)")),
	), s.historyHandler)

	mcpServer.AddTool(mcp.NewTool("search_context",
		mcp.WithDescription("Search indexed page chunks by query. Returns chunk text with its page URL."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chunks to return (default: 5)")),
	), s.searchHandler)

	if deps.Asker != nil {
		mcpServer.AddTool(mcp.NewTool("ask_page",
			mcp.WithDescription("Ask a question about a submitted page within a session and record the exchange in its history."),
			mcp.WithString("url", mcp.Required(), mcp.Description("Page URL as submitted")),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question about the page")),
			mcp.WithString("token", mcp.Description("Browser session token")),
		), s.askHandler)
	}

	return s, nil
}

type submitResult struct {
	CanonicalURL string           `json:"canonical_url"`
	SessionKey   string           `json:"session_key"`
	Skipped      bool             `json:"skipped"`
	Messages     []models.Message `json:"messages"`
}

func (s *Server) submitHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	token := req.GetString("token", "")

	res, err := s.deps.Submitter.Submit(ctx, rawURL, token)
	if err != nil {
		var subErr *submission.Error
		if errors.As(err, &subErr) && subErr.Kind == submission.KindInvalidInput {
			return mcp.NewToolResultError("Please enter a valid URL"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("submission failed: %v", err)), nil
	}

	return jsonResult(submitResult{
		CanonicalURL: res.CanonicalURL,
		SessionKey:   res.SessionKey,
		Skipped:      res.Skipped,
		Messages:     res.Messages,
	})
}

func (s *Server) historyHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, key, errResult := sessionFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}

	amount := req.GetInt("amount", submission.HistoryAmount)
	if amount <= 0 {
		return mcp.NewToolResultError("amount must be positive"), nil
	}

	msgs, err := s.deps.History.GetMessages(ctx, key, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history fetch failed: %v", err)), nil
	}
	return jsonResult(msgs)
}

func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	limit := req.GetInt("limit", 5)

	chunks, err := s.handleSearch(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(chunks)
}

func (s *Server) askHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	canonical, key, errResult := sessionFromRequest(req)
	if errResult != nil {
		return errResult, nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question parameter is required"), nil
	}

	ans, err := s.deps.Asker.Chat(ctx, key, canonical, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}
	return jsonResult(ans)
}

// handleSearch runs a text search over indexed chunks.
func (s *Server) handleSearch(ctx context.Context, query string, limit int) ([]models.Chunk, error) {
	return s.deps.Retriever.Search(ctx, query, nil, limit)
}

// sessionFromRequest canonicalizes the url argument and derives the session
// key from it and the token argument.
func sessionFromRequest(req mcp.CallToolRequest) (canonical, key string, errResult *mcp.CallToolResult) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return "", "", mcp.NewToolResultError("url parameter is required")
	}
	canonical, err = urlcanon.Reconstruct(rawURL)
	if err != nil {
		return "", "", mcp.NewToolResultError("Please enter a valid URL")
	}
	return canonical, sessionkey.Derive(canonical, req.GetString("token", "")), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
