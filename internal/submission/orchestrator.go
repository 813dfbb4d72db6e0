// Package submission runs the submit-a-URL flow: canonicalize the input,
// ingest the page unless it is already indexed, derive the session key and
// load the conversation for it.
//
// The orchestrator never fetches, parses, chunks, embeds or searches itself.
// It prepares identifiers, guards against duplicate work and delegates.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mfenderov/pagechat/internal/events"
	"github.com/mfenderov/pagechat/internal/gate"
	"github.com/mfenderov/pagechat/internal/ingestion"
	"github.com/mfenderov/pagechat/internal/sessionkey"
	"github.com/mfenderov/pagechat/internal/urlcanon"
	"github.com/mfenderov/pagechat/pkg/models"
)

// Fixed ingestion parameters and history window for a submission.
const (
	ChunkOverlap  = 50
	ChunkSize     = 200
	HistoryAmount = 10
)

// Ingester is the ingestion API.
type Ingester interface {
	Add(ctx context.Context, src models.Source) (*ingestion.Result, error)
}

// HistoryReader is the history API.
type HistoryReader interface {
	GetMessages(ctx context.Context, sessionID string, amount int) ([]models.Message, error)
}

// Result describes a successful submission.
type Result struct {
	CanonicalURL   string
	SessionKey     string
	Skipped        bool // page was already indexed
	ClearInput     bool // the form field should be emptied
	Messages       []models.Message
	Path           []State
	ChunksIndexed  int
	IngestDuration time.Duration
}

// Orchestrator runs submissions. It is safe for concurrent use.
type Orchestrator struct {
	gate     gate.IndexedSet
	ingester Ingester
	history  HistoryReader
	listener events.Listener

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an orchestrator. All dependencies are required.
func New(g gate.IndexedSet, ing Ingester, h HistoryReader) (*Orchestrator, error) {
	if g == nil {
		return nil, errors.New("submission: indexed set must not be nil")
	}
	if ing == nil {
		return nil, errors.New("submission: ingester must not be nil")
	}
	if h == nil {
		return nil, errors.New("submission: history reader must not be nil")
	}
	return &Orchestrator{
		gate:     g,
		ingester: ing,
		history:  h,
		inFlight: make(map[string]struct{}),
	}, nil
}

// OnEvent registers fn to receive an event for every finished submission.
// It must be called before the orchestrator is shared.
func (o *Orchestrator) OnEvent(fn events.Listener) {
	o.listener = fn
}

// Submit processes rawURL for the browser session token. Every failure is an
// *Error; the orchestrator is back in Idle afterwards and can be retried.
func (o *Orchestrator) Submit(ctx context.Context, rawURL, token string) (*Result, error) {
	if !o.acquire(token) {
		err := newError(KindBusy, "submission_in_flight", nil)
		slog.Warn("submission rejected", "error", err)
		o.emit(events.SubmissionEvent{Outcome: string(err.Kind), Reason: err.Reason})
		return nil, err
	}
	defer o.release(token)

	res := &Result{Path: []State{Idle, Submitting}}

	canonical, err := urlcanon.Reconstruct(rawURL)
	if err != nil {
		return nil, o.fail(res, newError(KindInvalidInput, "invalid_url", err))
	}
	res.CanonicalURL = canonical

	indexed, err := o.gate.IsIndexed(ctx, canonical)
	if err != nil {
		return nil, o.fail(res, newError(KindUpstream, ReasonIndexedCheck, err))
	}

	if indexed {
		res.Path = append(res.Path, IndexedSkip)
		res.Skipped = true
		slog.Debug("url already indexed", "url", canonical)
	} else {
		res.Path = append(res.Path, Ingesting)
		start := time.Now()
		ingested, err := o.ingester.Add(ctx, models.Source{
			Type:   models.SourceTypeHTML,
			URL:    canonical,
			Config: models.ChunkConfig{ChunkOverlap: ChunkOverlap, ChunkSize: ChunkSize},
		})
		res.IngestDuration = time.Since(start)
		if err != nil {
			return nil, o.fail(res, newError(KindUpstream, ReasonIngestion, err))
		}
		if err := o.gate.MarkIndexed(ctx, canonical); err != nil {
			return nil, o.fail(res, newError(KindUpstream, ReasonMarkIndexed, err))
		}
		if ingested != nil {
			res.ChunksIndexed = ingested.Chunks
		}
	}
	res.ClearInput = true

	res.SessionKey = sessionkey.Derive(canonical, token)
	msgs, err := o.history.GetMessages(ctx, res.SessionKey, HistoryAmount)
	if err != nil {
		return nil, o.fail(res, newError(KindUpstream, ReasonHistoryFetch, err))
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	res.Messages = msgs
	res.Path = append(res.Path, Ready)

	slog.Info("submission ready", "url", canonical, "skipped", res.Skipped,
		"messages", len(msgs), "ingest_duration", res.IngestDuration)

	outcome := events.OutcomeIngested
	if res.Skipped {
		outcome = events.OutcomeSkipped
	}
	o.emit(events.SubmissionEvent{
		URL:            canonical,
		Outcome:        outcome,
		ChunksIndexed:  res.ChunksIndexed,
		IngestDuration: res.IngestDuration,
	})
	return res, nil
}

// fail logs err with the states visited so far and returns it.
func (o *Orchestrator) fail(res *Result, err *Error) error {
	slog.Error("submission failed",
		"kind", err.Kind, "reason", err.Reason, "url", res.CanonicalURL,
		"state", res.Path[len(res.Path)-1].String(), "error", err.Err)
	o.emit(events.SubmissionEvent{
		URL:            res.CanonicalURL,
		Outcome:        string(err.Kind),
		Reason:         err.Reason,
		IngestDuration: res.IngestDuration,
	})
	return err
}

func (o *Orchestrator) emit(ev events.SubmissionEvent) {
	if o.listener == nil {
		return
	}
	ev.Timestamp = time.Now()
	o.listener(ev)
}

// acquire marks token as busy. The empty token is never guarded.
func (o *Orchestrator) acquire(token string) bool {
	if token == "" {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[token]; busy {
		return false
	}
	o.inFlight[token] = struct{}{}
	return true
}

func (o *Orchestrator) release(token string) {
	if token == "" {
		return
	}
	o.mu.Lock()
	delete(o.inFlight, token)
	o.mu.Unlock()
}

// InFlight reports whether token has a submission running.
func (o *Orchestrator) InFlight(token string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[token]
	return busy
}
