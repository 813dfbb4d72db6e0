// Package chat answers questions about an ingested page within one session,
// grounding the model on retrieved chunks and the session's recent history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mfenderov/pagechat/internal/history"
	"github.com/mfenderov/pagechat/internal/llm"
	"github.com/mfenderov/pagechat/pkg/models"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Retriever finds chunks relevant to a query. A nil embedding means text search only.
// SearchURL ranks only chunks of the given page.
type Retriever interface {
	Search(ctx context.Context, query string, embedding []float32, limit int) ([]models.Chunk, error)
	SearchURL(ctx context.Context, url, query string, embedding []float32, limit int) ([]models.Chunk, error)
}

// Completer produces a model reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Embedder turns the question into a vector for hybrid retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes retrieval and prompt size.
type Config struct {
	ContextChunks   int
	HistoryMessages int
}

// Answer is the reply to one question.
type Answer struct {
	Answer   string           `json:"answer"`
	Sources  []models.Chunk   `json:"sources"`
	Messages []models.Message `json:"messages"` // session history after this exchange
}

// Service wires retrieval, history and the model together.
type Service struct {
	retriever Retriever
	completer Completer
	embedder  Embedder // nil if embeddings disabled
	history   history.Store
	config    Config
	now       func() time.Time
}

// New creates a chat service. embedder may be nil.
func New(r Retriever, c Completer, e Embedder, h history.Store, config Config) (*Service, error) {
	if r == nil {
		return nil, errors.New("chat: retriever must not be nil")
	}
	if c == nil {
		return nil, errors.New("chat: completer must not be nil")
	}
	if h == nil {
		return nil, errors.New("chat: history store must not be nil")
	}
	if config.ContextChunks <= 0 {
		config.ContextChunks = 5
	}
	if config.HistoryMessages <= 0 {
		config.HistoryMessages = 10
	}
	return &Service{
		retriever: r,
		completer: c,
		embedder:  e,
		history:   h,
		config:    config,
		now:       time.Now,
	}, nil
}

// Chat answers question for sessionKey, restricted to chunks of pageURL when
// it is not empty, and appends both turns to the session history.
func (s *Service) Chat(ctx context.Context, sessionKey, pageURL, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	var embedding []float32
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, question)
		if err != nil {
			slog.Warn("failed to embed question, using text search", "error", err)
		} else {
			embedding = emb
		}
	}

	sources, err := s.retrieve(ctx, pageURL, question, embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	past, err := s.history.GetMessages(ctx, sessionKey, s.config.HistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	reply, err := s.completer.Complete(ctx, BuildPrompt(sources, past, question))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	now := s.now()
	turn := []models.Message{
		{ID: uuid.NewString(), Role: models.RoleUser, Content: question, CreatedAt: now},
		{ID: uuid.NewString(), Role: models.RoleAssistant, Content: reply, CreatedAt: now},
	}
	if err := s.history.AddMessages(ctx, sessionKey, turn...); err != nil {
		return nil, fmt.Errorf("failed to save history: %w", err)
	}

	msgs, err := s.history.GetMessages(ctx, sessionKey, s.config.HistoryMessages)
	if err != nil {
		slog.Warn("failed to reload history", "session", sessionKey, "error", err)
		msgs = append(past, turn...)
	}

	slog.Debug("answered question", "session", sessionKey, "sources", len(sources))
	return &Answer{Answer: reply, Sources: sources, Messages: msgs}, nil
}

func (s *Service) retrieve(ctx context.Context, pageURL, question string, embedding []float32) ([]models.Chunk, error) {
	if pageURL == "" {
		return s.retriever.Search(ctx, question, embedding, s.config.ContextChunks)
	}
	return s.retriever.SearchURL(ctx, pageURL, question, embedding, s.config.ContextChunks)
}

const systemPrompt = `You answer questions about a web page the user submitted.
Use only the excerpts below. If they do not contain the answer, say you do not know.
Keep answers short and quote the page where it helps.`

// BuildPrompt assembles the model conversation: a system message holding the
// page excerpts, the prior turns, then the new question.
func BuildPrompt(sources []models.Chunk, past []models.Message, question string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nEXCERPTS:\n")
	if len(sources) == 0 {
		sb.WriteString("(none found)\n")
	}
	for i, ch := range sources {
		fmt.Fprintf(&sb, "\n[%d] %s (%s)\n%s\n", i+1, ch.Title, ch.URL, ch.Content)
	}

	msgs := make([]llm.Message, 0, len(past)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: sb.String()})
	for _, m := range past {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	return msgs
}
