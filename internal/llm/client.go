// Package llm talks to an OpenAI-compatible chat completions endpoint, by
// default Docker Model Runner over its unix socket.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// DMRBaseURL is the OpenAI-compatible prefix Docker Model Runner serves on its socket.
const DMRBaseURL = "http://localhost/exp/vDD4.40/engines/llama.cpp/v1"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config holds LLM client configuration. SocketPath takes precedence over BaseURL.
type Config struct {
	SocketPath string
	BaseURL    string
	Model      string // e.g. "ai/gemma3"
	MaxTokens  int    // 0 means no limit
	Timeout    time.Duration
}

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client wraps a chat completions API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	maxTokens  int
}

// New creates a new LLM client.
func New(config Config) (*Client, error) {
	if config.SocketPath == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("socket path or base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if config.SocketPath != "" {
		var dialer net.Dialer
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", config.SocketPath)
			},
		}
		baseURL = DMRBaseURL
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   baseURL + "/chat/completions",
		model:      config.Model,
		maxTokens:  config.MaxTokens,
	}, nil
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the conversation to the model and returns the reply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Debug("requesting completion", "model", c.model, "messages", len(messages))
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response returned")
	}

	slog.Debug("completion received", "model", c.model, "duration", time.Since(start))
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
