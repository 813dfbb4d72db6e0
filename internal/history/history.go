// Package history stores the conversation of each session key.
//
// Messages are kept in insertion order. GetMessages returns the most recent
// amount messages, oldest first; an unknown session yields an empty slice.
package history

import (
	"context"

	"github.com/mfenderov/pagechat/pkg/models"
)

// DefaultKeyPrefix namespaces history lists in Redis.
const DefaultKeyPrefix = "history:"

// Store reads and appends session messages.
type Store interface {
	GetMessages(ctx context.Context, sessionID string, amount int) ([]models.Message, error)
	AddMessages(ctx context.Context, sessionID string, msgs ...models.Message) error
}
