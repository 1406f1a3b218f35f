package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/cache"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/repository"
	"github.com/israelseleshi/building-management-system-sub000/pkg/database"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
	"github.com/israelseleshi/building-management-system-sub000/pkg/pubsub"
)

const (
	tenantID   = "tenant-1"
	landlordID = "landlord-1"
)

// memoryCache is a HistoryCache backed by a map.
type memoryCache struct {
	mu          sync.Mutex
	data        map[string][]domain.Message
	gets        int
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]domain.Message)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	msgs, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return msgs, nil
}

func (c *memoryCache) Set(_ context.Context, key string, msgs []domain.Message, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = msgs
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	delete(c.data, key)
	return nil
}

func (c *memoryCache) BuildKey(conversationID string) string { return "history:" + conversationID }
func (c *memoryCache) Close() error                          { return nil }

type mockSummaryUpdater struct {
	updateFunc func(ctx context.Context, conversationID, body, senderID string, ts time.Time) error
}

func (m *mockSummaryUpdater) UpdateSummary(ctx context.Context, conversationID, body, senderID string, ts time.Time) error {
	return m.updateFunc(ctx, conversationID, body, senderID, ts)
}

// countingMessageRepo wraps a MessageRepository and counts Create calls.
type countingMessageRepo struct {
	repository.MessageRepository
	mu      sync.Mutex
	creates int
	lists   int
	err     error
}

func (r *countingMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.MessageRepository.Create(ctx, msg)
}

func (r *countingMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	r.mu.Lock()
	r.lists++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.MessageRepository.ListByConversation(ctx, conversationID)
}

type fixture struct {
	db            *gorm.DB
	conversations *repository.GormConversationRepository
	messages      *countingMessageRepo
	cache         *memoryCache
	feed          *pubsub.MemoryPubSub
	resolver      ConversationResolver
	store         *messageServiceImpl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db, true))
	t.Cleanup(func() { _ = database.Close(db) })

	participants := repository.NewGormParticipantRepository(db)
	for _, p := range []*domain.Participant{
		{ID: tenantID, DisplayName: "Tenant", Roles: []string{domain.RoleTenant}},
		{ID: landlordID, DisplayName: "Landlord", Roles: []string{domain.RoleLandlord}},
	} {
		require.NoError(t, participants.Create(context.Background(), p))
	}

	conversations := repository.NewGormConversationRepository(db, idgen.NewUUIDGenerator())
	messages := &countingMessageRepo{MessageRepository: repository.NewGormMessageRepository(db)}
	historyCache := newMemoryCache()
	feed := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = feed.Close() })

	store := NewMessageService(
		conversations,
		messages,
		historyCache,
		time.Minute,
		NewSummaryUpdater(conversations),
		feed,
		idgen.NewULIDGenerator(),
	).(*messageServiceImpl)

	return &fixture{
		db:            db,
		conversations: conversations,
		messages:      messages,
		cache:         historyCache,
		feed:          feed,
		resolver:      NewConversationService(identity.NewContextProvider(participants), participants, conversations),
		store:         store,
	}
}

func as(participantID string) context.Context {
	return identity.WithParticipantID(context.Background(), participantID)
}

func TestResolve_SymmetricAndIdempotent(t *testing.T) {
	f := newFixture(t)

	c1, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)
	c2, err := f.resolver.Resolve(as(landlordID), landlordID, tenantID)
	require.NoError(t, err)
	c3, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, c1.ID, c3.ID)
	assert.Nil(t, c1.LastMessageBody)

	var count int64
	require.NoError(t, f.db.Model(&domain.ConversationModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolve_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Resolve(context.Background(), tenantID, landlordID)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	_, err = f.resolver.Resolve(as(tenantID), tenantID, tenantID)
	assert.ErrorIs(t, err, domain.ErrInvalidParticipants)

	_, err = f.resolver.Resolve(as(tenantID), tenantID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidParticipants)

	_, err = f.resolver.Resolve(as(tenantID), tenantID, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_FirstContactThenAppend(t *testing.T) {
	f := newFixture(t)
	ctx := as(landlordID)

	conv, err := f.resolver.Resolve(ctx, tenantID, landlordID)
	require.NoError(t, err)

	_, err = f.store.Append(ctx, conv.ID, landlordID, "Hi")
	require.NoError(t, err)

	history, err := f.store.ListHistory(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, landlordID, history[0].SenderID)
	assert.Equal(t, "Hi", history[0].Body)
}

func TestListHistory_PreservesAppendOrder(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	// identical timestamps fall back to insertion order
	fixed := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return fixed }

	bodies := []string{"one", "two", "three", "four", "five"}
	for i, body := range bodies {
		sender := tenantID
		if i%2 == 1 {
			sender = landlordID
		}
		_, err := f.store.Append(context.Background(), conv.ID, sender, body)
		require.NoError(t, err)
	}

	history, err := f.store.ListHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, len(bodies))
	for i, body := range bodies {
		assert.Equal(t, body, history[i].Body)
	}
}

func TestAppend_UpdatesSummary(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	msg, err := f.store.Append(context.Background(), conv.ID, tenantID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)

	got, err := f.conversations.Get(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageBody)
	require.NotNil(t, got.LastMessageSenderID)
	require.NotNil(t, got.LastMessageAt)
	assert.Equal(t, "hello", *got.LastMessageBody)
	assert.Equal(t, tenantID, *got.LastMessageSenderID)
	assert.True(t, got.LastMessageAt.Equal(msg.CreatedAt))
}

func TestAppend_EmptyBodyNeverReachesStorage(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{"", "   ", "\n\t "} {
		_, err := f.store.Append(context.Background(), "any", tenantID, body)
		assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	}
	assert.Equal(t, 0, f.messages.creates)
}

func TestAppend_Errors(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	_, err = f.store.Append(context.Background(), "missing", tenantID, "hi")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	_, err = f.store.Append(context.Background(), conv.ID, "stranger", "hi")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	f.messages.err = fmt.Errorf("%w: connection refused", domain.ErrStorageUnavailable)
	_, err = f.store.Append(context.Background(), conv.ID, tenantID, "hi")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestAppend_SummaryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	f.store.summary = &mockSummaryUpdater{
		updateFunc: func(context.Context, string, string, string, time.Time) error {
			return errors.New("summary write failed")
		},
	}

	msg, err := f.store.Append(context.Background(), conv.ID, tenantID, "still stored")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	history, err := f.store.ListHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestAppend_PublishesInsertedRow(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := f.feed.Subscribe(ctx, pubsub.ConversationMessagesChannel(conv.ID))
	require.NoError(t, err)

	msg, err := f.store.Append(context.Background(), conv.ID, tenantID, "ping")
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, pubsub.EventMessageCreated, event.Type)
		var row pubsub.MessageRow
		require.NoError(t, event.UnmarshalPayload(&row))
		assert.Equal(t, msg.ID, row.ID)
		assert.Equal(t, tenantID, row.SenderID)
		assert.True(t, row.CreatedAt.Equal(msg.CreatedAt))
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestListHistory_CacheThroughAndInvalidation(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	_, err = f.store.Append(context.Background(), conv.ID, tenantID, "first")
	require.NoError(t, err)

	_, err = f.store.ListHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	_, err = f.store.ListHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.messages.lists, "second read is served from cache")

	_, err = f.store.Append(context.Background(), conv.ID, landlordID, "second")
	require.NoError(t, err)

	history, err := f.store.ListHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 2, f.messages.lists)
}

// gatedMessageRepo holds the first history read after it has queried the
// store, until release is closed.
type gatedMessageRepo struct {
	repository.MessageRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (r *gatedMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	msgs, err := r.MessageRepository.ListByConversation(ctx, conversationID)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	return msgs, err
}

func TestListHistory_ReadOverlappingAppendIsNotCached(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	gated := &gatedMessageRepo{
		MessageRepository: f.messages,
		read:              make(chan struct{}),
		release:           make(chan struct{}),
	}
	store := NewMessageService(
		f.conversations,
		gated,
		f.cache,
		time.Minute,
		NewSummaryUpdater(f.conversations),
		f.feed,
		idgen.NewULIDGenerator(),
	)

	slow := make(chan error, 1)
	go func() {
		history, err := store.ListHistory(context.Background(), conv.ID)
		if err == nil && len(history) != 0 {
			err = fmt.Errorf("expected empty history, got %d", len(history))
		}
		slow <- err
	}()
	<-gated.read

	_, err = store.Append(context.Background(), conv.ID, tenantID, "Hi")
	require.NoError(t, err)
	close(gated.release)
	require.NoError(t, <-slow)

	history, err := store.ListHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Hi", history[0].Body)
}

func TestAppend_BumpsHistoryVersion(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	before := f.store.versions.of(conv.ID).Load()
	_, err = f.store.Append(context.Background(), conv.ID, tenantID, "Hi")
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.versions.of(conv.ID).Load())
}

func TestListHistory_Errors(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	_, err = f.store.ListHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	f.messages.err = fmt.Errorf("%w: timeout", domain.ErrStorageUnavailable)
	_, err = f.store.ListHistory(context.Background(), conv.ID)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestListForParticipant(t *testing.T) {
	f := newFixture(t)
	conv, err := f.resolver.Resolve(as(tenantID), tenantID, landlordID)
	require.NoError(t, err)

	inbox, err := f.resolver.ListForParticipant(context.Background(), landlordID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, conv.ID, inbox[0].ID)
}
