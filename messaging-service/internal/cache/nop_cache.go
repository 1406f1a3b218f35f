package cache

import (
	"context"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// NopHistoryCache always misses. Used when cache.driver is "none".
type NopHistoryCache struct{}

func NewNopHistoryCache() *NopHistoryCache {
	return &NopHistoryCache{}
}

func (NopHistoryCache) Get(context.Context, string) ([]domain.Message, error) {
	return nil, ErrCacheMiss
}

func (NopHistoryCache) Set(context.Context, string, []domain.Message, time.Duration) error {
	return nil
}

func (NopHistoryCache) Invalidate(context.Context, string) error { return nil }

func (NopHistoryCache) BuildKey(conversationID string) string { return conversationID }

func (NopHistoryCache) Close() error { return nil }
