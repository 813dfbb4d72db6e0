package embeddings

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

// Config holds embeddings client configuration. SocketPath (Docker Model
// Runner) takes precedence over BaseURL (any OpenAI-compatible server).
type Config struct {
	SocketPath string
	BaseURL    string
	Model      string // e.g. "ai/embeddinggemma"
	Timeout    time.Duration
}

// Client wraps an OpenAI-compatible embeddings API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

// New creates a new embeddings client.
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
		endpoint:   baseURL + "/embeddings",
		model:      config.Model,
	}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// MaxInputChars limits input to stay within the model context window.
const MaxInputChars = 20000

// Embed generates an embedding vector for the given text.
// Text exceeding MaxInputChars runes is truncated from the end.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	originalLen := len(text)
	if r := []rune(text); len(r) > MaxInputChars {
		text = string(r[:MaxInputChars])
	}
	slog.Debug("generating embedding", "original_len", originalLen, "truncated_len", len(text))

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return embResp.Data[0].Embedding, nil
}

// Dimensions returns the expected embedding dimensions for common models.
func Dimensions(model string) int {
	switch model {
	case "ai/embeddinggemma":
		return 768
	case "ai/snowflake-arctic-embed":
		return 1024
	case "ai/mxbai-embed-large":
		return 1024
	case "ai/qwen3-embedding":
		return 2560
	default:
		return 768
	}
}
