package interfaces

import (
	"context"

	"krishibondhu/internal/entities"
)

// CompletionClient sends an ordered message list to a chat-completion endpoint and returns
// the first choice's text. An empty model selects the client's default.
type CompletionClient interface {
	Complete(ctx context.Context, messages []entities.ChatMessage, model string) (string, error)
	DefaultModel() string
}

// UsageStore is the advisory usage log.
type UsageStore interface {
	Record(ctx context.Context, rec entities.UsageRecord) error
	CountToday(ctx context.Context, userID string) (int, error)
	Summary(ctx context.Context) ([]entities.UsageSummary, error)
	Close() error
}
