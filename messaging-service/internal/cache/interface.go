package cache

import (
	"context"
	"errors"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches the full message history of a conversation.
type HistoryCache interface {
	Get(ctx context.Context, key string) ([]domain.Message, error)
	Set(ctx context.Context, key string, messages []domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	BuildKey(conversationID string) string
	Close() error
}
