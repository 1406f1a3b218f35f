package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/audit"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/cache"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/repository"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/pubsub"
)

const historyVersionStripes = 256

// historyVersions counts appends per conversation, striped by hash. A history
// read that overlaps an append of the same stripe does not cache its result.
type historyVersions [historyVersionStripes]atomic.Uint64

func (h *historyVersions) of(conversationID string) *atomic.Uint64 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(conversationID))
	return &h[f.Sum32()%historyVersionStripes]
}

type messageServiceImpl struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	cache         cache.HistoryCache
	cacheTTL      time.Duration
	summary       SummaryUpdater
	feed          pubsub.Publisher
	ids           idgen.Generator
	now           func() time.Time
	sf            singleflight.Group
	versions      historyVersions
}

func NewMessageService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	historyCache cache.HistoryCache,
	cacheTTL time.Duration,
	summary SummaryUpdater,
	feed pubsub.Publisher,
	ids idgen.Generator,
) MessageStore {
	return &messageServiceImpl{
		conversations: conversations,
		messages:      messages,
		cache:         historyCache,
		cacheTTL:      cacheTTL,
		summary:       summary,
		feed:          feed,
		ids:           ids,
		now:           time.Now,
	}
}

// Append validates, persists and fans out one message. Only the insert
// itself can fail the call; cache, summary and feed errors are logged.
func (s *messageServiceImpl) Append(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.ErrEmptyMessage
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, domain.ErrNotParticipant
	}

	id, err := s.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	msg := &domain.Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	s.versions.of(conv.ID).Add(1)

	l := log.Ctx(ctx).With().
		Str(log.FieldConversationID, conv.ID).
		Str(log.FieldMessageID, msg.ID).
		Logger()

	if err := s.cache.Invalidate(ctx, s.cache.BuildKey(conv.ID)); err != nil {
		l.Warn().Err(err).Msg("cache invalidate error")
	}

	if err := s.summary.UpdateSummary(ctx, conv.ID, msg.Body, msg.SenderID, msg.CreatedAt); err != nil {
		l.Warn().Err(err).Msg("conversation summary update failed")
	}

	if err := s.publish(ctx, msg); err != nil {
		l.Warn().Err(err).Msg("failed to publish message event")
	}

	audit.LogWithTarget(ctx, audit.ActionSendMessage, senderID, conv.ID, "message appended")
	return msg, nil
}

func (s *messageServiceImpl) publish(ctx context.Context, msg *domain.Message) error {
	event, err := pubsub.NewEvent(pubsub.EventMessageCreated, msg.ConversationID, pubsub.MessageRow{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	return s.feed.Publish(ctx, pubsub.ConversationMessagesChannel(msg.ConversationID), event)
}

func (s *messageServiceImpl) ListHistory(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	cacheKey := s.cache.BuildKey(conversationID)
	version := s.versions.of(conversationID).Load()

	// Use singleflight to prevent duplicate requests for the same key. A read
	// started after an append never joins a flight started before it.
	result, err, _ := s.sf.Do(fmt.Sprintf("%s@%d", cacheKey, version), func() (interface{}, error) {
		return s.fetchWithCache(ctx, conversationID, cacheKey, version)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	// callers of a shared flight must not alias one slice
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *messageServiceImpl) fetchWithCache(ctx context.Context, conversationID, cacheKey string, version uint64) ([]domain.Message, error) {
	cached, err := s.cache.Get(ctx, cacheKey)
	if err == nil {
		return cached, nil
	}

	l := log.Ctx(ctx)
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}

	current := s.versions.of(conversationID)
	if current.Load() != version {
		return messages, nil
	}
	if err := s.cache.Set(ctx, cacheKey, messages, s.cacheTTL); err != nil {
		l.Warn().Err(err).Msg("cache set error")
	}
	// an append may have invalidated between the check and the Set
	if current.Load() != version {
		if err := s.cache.Invalidate(ctx, cacheKey); err != nil {
			l.Warn().Err(err).Msg("cache invalidate error")
		}
	}

	return messages, nil
}
