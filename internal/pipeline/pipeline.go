// Package pipeline assembles the submission flow, the chat service and the
// stores behind them from configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mfenderov/pagechat/internal/chat"
	"github.com/mfenderov/pagechat/internal/config"
	"github.com/mfenderov/pagechat/internal/elasticsearch"
	"github.com/mfenderov/pagechat/internal/embeddings"
	"github.com/mfenderov/pagechat/internal/fetcher"
	"github.com/mfenderov/pagechat/internal/gate"
	"github.com/mfenderov/pagechat/internal/history"
	"github.com/mfenderov/pagechat/internal/ingestion"
	"github.com/mfenderov/pagechat/internal/llm"
	"github.com/mfenderov/pagechat/internal/localindex"
	"github.com/mfenderov/pagechat/internal/redisconn"
	"github.com/mfenderov/pagechat/internal/storage"
	"github.com/mfenderov/pagechat/internal/submission"
	"github.com/mfenderov/pagechat/pkg/models"
)

// ChunkStore is a chunk index that can both ingest and retrieve.
type ChunkStore interface {
	ingestion.ChunkIndex
	Search(ctx context.Context, query string, embedding []float32, limit int) ([]models.Chunk, error)
	SearchURL(ctx context.Context, url, query string, embedding []float32, limit int) ([]models.Chunk, error)
}

// Pipeline holds the wired components.
type Pipeline struct {
	Orchestrator *submission.Orchestrator
	Chat         *chat.Service
	Engine       *ingestion.Engine
	Index        ChunkStore
	History      history.Store
	Gate         gate.IndexedSet
	Snapshots    *storage.Client // nil if snapshots disabled

	embedder *embeddings.Client // nil if embeddings disabled
	closers  []func() error
}

// New builds every component named by cfg. Close releases what it opened.
func New(ctx context.Context, cfg config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{}
	if err := p.build(ctx, cfg); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(ctx context.Context, cfg config.Config) error {
	if err := p.buildStores(ctx, cfg); err != nil {
		return err
	}

	// Optionally create embeddings client
	var embedder ingestion.Embedder
	var chatEmbedder chat.Embedder
	dims := 0
	if cfg.Embeddings.Enabled {
		client, err := embeddings.New(embeddings.Config{
			SocketPath: cfg.Embeddings.SocketPath,
			BaseURL:    cfg.Embeddings.BaseURL,
			Model:      cfg.Embeddings.Model,
			Timeout:    cfg.Embeddings.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create embeddings client: %w", err)
		}
		p.embedder = client
		embedder, chatEmbedder = client, client
		dims = cfg.Embeddings.Dimensions
		if dims == 0 {
			dims = embeddings.Dimensions(cfg.Embeddings.Model)
		}
		slog.Info("embeddings enabled", "model", cfg.Embeddings.Model, "dims", dims)
	}

	if err := p.buildIndex(ctx, cfg, dims); err != nil {
		return err
	}

	// Optionally archive fetched pages
	var snapshots ingestion.SnapshotStore
	if cfg.SnapshotsEnabled() {
		client, err := storage.New(storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return err
		}
		p.Snapshots = client
		snapshots = client
		slog.Info("page snapshots enabled", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	}

	f := fetcher.New(fetcher.Config{
		UserAgent: cfg.Fetcher.UserAgent,
		Timeout:   cfg.Fetcher.Timeout,
		MaxBytes:  cfg.Fetcher.MaxBytes,
	})

	engine, err := ingestion.New(f, p.Index, embedder, snapshots)
	if err != nil {
		return err
	}
	p.Engine = engine

	orch, err := submission.New(p.Gate, engine, p.History)
	if err != nil {
		return err
	}
	p.Orchestrator = orch

	completer, err := llm.New(llm.Config{
		SocketPath: cfg.LLM.SocketPath,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		Timeout:    cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	svc, err := chat.New(p.Index, completer, chatEmbedder, p.History, chat.Config{
		ContextChunks:   cfg.Chat.ContextChunks,
		HistoryMessages: cfg.Chat.HistoryMessages,
	})
	if err != nil {
		return err
	}
	p.Chat = svc
	return nil
}

func (p *Pipeline) buildStores(ctx context.Context, cfg config.Config) error {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		p.Gate = gate.NewMemorySet()
		p.History = history.NewMemoryStore()
		slog.Warn("using in-memory store; indexed URLs and history are lost on exit")
	default:
		client, err := redisconn.Connect(ctx, redisconn.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return err
		}
		p.closers = append(p.closers, client.Close)
		p.Gate = gate.NewRedisSet(client, cfg.Redis.IndexedSetKey)
		p.History = history.NewRedisStore(client, cfg.Redis.HistoryPrefix)
	}
	return nil
}

func (p *Pipeline) buildIndex(ctx context.Context, cfg config.Config, dims int) error {
	switch cfg.Index.Backend {
	case config.IndexElasticsearch:
		client, err := elasticsearch.New(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Index:     cfg.Elasticsearch.Index,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
			Dims:      dims,
		})
		if err != nil {
			return err
		}
		if err := client.CreateIndex(ctx); err != nil {
			return err
		}
		p.Index = client
		slog.Debug("chunk index ready", "backend", config.IndexElasticsearch, "index", client.Index())
	default:
		idx, err := localindex.New(localindex.Config{Path: cfg.Index.Path})
		if err != nil {
			return err
		}
		p.closers = append(p.closers, idx.Close)
		p.Index = idx
		slog.Debug("chunk index ready", "backend", config.IndexBleve, "path", cfg.Index.Path)
	}
	return nil
}

// Search queries the chunk index, hybrid when embeddings are enabled.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) ([]models.Chunk, error) {
	var vector []float32
	if p.embedder != nil {
		v, err := p.embedder.Embed(ctx, query)
		if err != nil {
			slog.Warn("failed to embed query, using text search", "error", err)
		} else {
			vector = v
		}
	}
	return p.Index.Search(ctx, query, vector, limit)
}

// Close releases connections and open indexes.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
