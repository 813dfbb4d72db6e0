// Package gate tracks which canonical URLs have already been submitted for
// ingestion, so each URL is ingested at most once across all sessions.
//
// IsIndexed and MarkIndexed are not atomic together. Two submissions of the
// same new URL can both observe "not indexed" and both ingest; ingestion is
// idempotent per document, so the duplicate only costs work.
package gate

import "context"

// DefaultSetKey is the Redis set holding indexed URLs.
const DefaultSetKey = "urls"

// IndexedSet is the shared, monotonic set of ingested URLs.
type IndexedSet interface {
	IsIndexed(ctx context.Context, url string) (bool, error)
	MarkIndexed(ctx context.Context, url string) error
}
