package config

import (
	"fmt"
	"time"
)

// Backends for the key-value store and the chunk index.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	IndexElasticsearch = "elasticsearch"
	IndexBleve         = "bleve"
)

// Config holds all application configuration.
type Config struct {
	Server        Server        `mapstructure:"server"`
	Store         Store         `mapstructure:"store"`
	Redis         Redis         `mapstructure:"redis"`
	Index         Index         `mapstructure:"index"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	LLM           LLM           `mapstructure:"llm"`
	Fetcher       Fetcher       `mapstructure:"fetcher"`
	Storage       Storage       `mapstructure:"storage"`
	Chat          Chat          `mapstructure:"chat"`
	MCP           MCP           `mapstructure:"mcp"`
}

// Server holds HTTP front end configuration.
type Server struct {
	Address           string        `mapstructure:"address"`
	CookieName        string        `mapstructure:"cookie_name"`
	IssueCookie       bool          `mapstructure:"issue_cookie"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Store selects where the indexed-URL set and chat history live.
type Store struct {
	Backend string `mapstructure:"backend"`
}

// Redis holds Redis connection configuration.
type Redis struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	IndexedSetKey string        `mapstructure:"indexed_set_key"`
	HistoryPrefix string        `mapstructure:"history_prefix"`
}

// Index selects the chunk index. Path is used by the bleve backend; empty
// keeps the index in memory.
type Index struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Embeddings holds embeddings generation configuration.
type Embeddings struct {
	Enabled    bool          `mapstructure:"enabled"`
	SocketPath string        `mapstructure:"socket_path"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"` // 0 derives from model
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLM holds chat model configuration.
type LLM struct {
	SocketPath string        `mapstructure:"socket_path"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Fetcher holds page download configuration.
type Fetcher struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBytes  int           `mapstructure:"max_bytes"`
}

// Storage holds S3/MinIO snapshot configuration. An empty endpoint disables snapshots.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Chat tunes answer generation.
type Chat struct {
	ContextChunks   int `mapstructure:"context_chunks"`
	HistoryMessages int `mapstructure:"history_messages"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: Server{
			Address:           ":3000",
			CookieName:        "sessionId",
			IssueCookie:       true,
			CookieSecure:      false,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Store: Store{
			Backend: StoreRedis,
		},
		Redis: Redis{
			Addr:          "localhost:6379",
			DialTimeout:   5 * time.Second,
			IndexedSetKey: "urls",
			HistoryPrefix: "history:",
		},
		Index: Index{
			Backend: IndexBleve,
			Path:    "",
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "pagechat-chunks",
		},
		Embeddings: Embeddings{
			Enabled:    false, // requires Docker Model Runner
			SocketPath: "",
			Model:      "ai/embeddinggemma",
			Timeout:    30 * time.Second,
		},
		LLM: LLM{
			SocketPath: "",
			BaseURL:    "http://localhost:12434/engines/llama.cpp/v1",
			Model:      "ai/gemma3",
			MaxTokens:  512,
			Timeout:    2 * time.Minute,
		},
		Fetcher: Fetcher{
			Timeout:   30 * time.Second,
			UserAgent: "pagechat/1.0",
			MaxBytes:  10 << 20,
		},
		Storage: Storage{
			Endpoint:        "",
			Bucket:          "pagechat",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
		Chat: Chat{
			ContextChunks:   5,
			HistoryMessages: 10,
		},
		MCP: MCP{
			Name:    "pagechat",
			Version: "1.0.0",
		},
	}
}

// Validate reports configuration that cannot be wired.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q (want %s or %s)", c.Store.Backend, StoreRedis, StoreMemory)
	}
	switch c.Index.Backend {
	case IndexElasticsearch, IndexBleve:
	default:
		return fmt.Errorf("unknown index backend %q (want %s or %s)", c.Index.Backend, IndexElasticsearch, IndexBleve)
	}
	if c.Server.CookieName == "" {
		return fmt.Errorf("server.cookie_name must not be empty")
	}
	if c.Embeddings.Enabled && c.Embeddings.SocketPath == "" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings enabled but neither socket_path nor base_url is set")
	}
	return nil
}

// SnapshotsEnabled reports whether fetched pages are archived.
func (c Config) SnapshotsEnabled() bool {
	return c.Storage.Endpoint != ""
}
