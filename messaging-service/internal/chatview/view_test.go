package chatview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/deeplink"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/realtime"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
	"github.com/israelseleshi/building-management-system-sub000/pkg/pubsub"
)

const (
	landlordID = "landlord-1"
	tenantID   = "tenant-1"
)

func convIDFor(target string) string { return "conv-" + target }

type mockResolver struct {
	resolveFunc func(ctx context.Context, a, b string) (*domain.Conversation, error)
}

func (m *mockResolver) Resolve(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return m.resolveFunc(ctx, a, b)
}

func (m *mockResolver) Get(context.Context, string) (*domain.Conversation, error) {
	return nil, errors.New("not used")
}

func (m *mockResolver) ListForParticipant(context.Context, string) ([]*domain.Conversation, error) {
	return nil, errors.New("not used")
}

type appendCall struct {
	conversationID, senderID, body string
}

type mockStore struct {
	mu          sync.Mutex
	appends     []appendCall
	appendFunc  func(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error)
	historyFunc func(ctx context.Context, conversationID string) ([]domain.Message, error)
}

func (m *mockStore) Append(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error) {
	m.mu.Lock()
	m.appends = append(m.appends, appendCall{conversationID, senderID, body})
	n := len(m.appends)
	m.mu.Unlock()

	if m.appendFunc != nil {
		return m.appendFunc(ctx, conversationID, senderID, body)
	}
	return &domain.Message{
		ID:             fmt.Sprintf("srv-%d", n),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (m *mockStore) ListHistory(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, conversationID)
	}
	return []domain.Message{}, nil
}

func (m *mockStore) appendCalls() []appendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]appendCall(nil), m.appends...)
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) observe(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) kinds(kind UpdateKind) []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Update
	for _, u := range r.updates {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

type harness struct {
	view     *View
	resolver *mockResolver
	store    *mockStore
	feed     *pubsub.MemoryPubSub
	broker   *realtime.Broker
	tokens   *deeplink.MemoryTokenStore
	composer *deeplink.Composer
	rec      *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	feed := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = feed.Close() })
	broker := realtime.NewBroker(feed, idgen.NewKSUIDGenerator())

	cuid, err := idgen.NewCUID2Generator(idgen.DefaultCUID2Length)
	require.NoError(t, err)
	nano, err := idgen.NewNanoIDGenerator(idgen.DefaultNanoIDSize, idgen.DefaultNanoIDAlphabet)
	require.NoError(t, err)

	resolver := &mockResolver{
		resolveFunc: func(ctx context.Context, a, b string) (*domain.Conversation, error) {
			if _, ok := identity.ParticipantID(ctx); !ok {
				return nil, domain.ErrNotAuthenticated
			}
			if b == "ghost" {
				return nil, domain.ErrParticipantNotFound
			}
			return &domain.Conversation{ID: convIDFor(b), ParticipantA: a, ParticipantB: b}, nil
		},
	}
	store := &mockStore{}
	tokens := deeplink.NewMemoryTokenStore(time.Hour)
	rec := &recorder{}

	view := New(landlordID, Deps{
		Resolver: resolver,
		Store:    store,
		Broker:   broker,
		Tokens:   tokens,
		LocalIDs: cuid,
	}, rec.observe)
	t.Cleanup(view.Close)

	return &harness{
		view:     view,
		resolver: resolver,
		store:    store,
		feed:     feed,
		broker:   broker,
		tokens:   tokens,
		composer: deeplink.NewComposer(nano),
		rec:      rec,
	}
}

func (h *harness) publish(t *testing.T, msg domain.Message) {
	t.Helper()
	event, err := pubsub.NewEvent(pubsub.EventMessageCreated, msg.ConversationID, pubsub.MessageRow{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	})
	require.NoError(t, err)
	require.NoError(t, h.feed.Publish(context.Background(), pubsub.ConversationMessagesChannel(msg.ConversationID), event))
}

func (h *harness) linkValues(t *testing.T, prefill string, autoSend bool) url.Values {
	t.Helper()
	link, err := h.composer.Compose(tenantID, prefill, autoSend)
	require.NoError(t, err)
	return link.Values()
}

func TestOpen_LoadsHistoryThenSubscribes(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	h.store.historyFunc = func(_ context.Context, id string) ([]domain.Message, error) {
		return []domain.Message{
			{ID: "m1", ConversationID: id, SenderID: tenantID, Body: "hi", CreatedAt: base},
		}, nil
	}

	require.NoError(t, h.view.Open(context.Background(), tenantID))

	conv := h.view.Conversation()
	require.NotNil(t, conv)
	assert.Equal(t, convIDFor(tenantID), conv.ID)
	assert.Len(t, h.view.Messages(), 1)

	sub := h.view.Subscription()
	require.NotNil(t, sub)
	assert.Equal(t, realtime.StateActive, sub.State())

	opened := h.rec.kinds(UpdateOpened)
	require.Len(t, opened, 1)
	assert.Len(t, opened[0].Messages, 1)
}

func TestOpen_ReceivesLiveMessagesOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))

	msg := domain.Message{
		ID:             "live-1",
		ConversationID: convIDFor(tenantID),
		SenderID:       tenantID,
		Body:           "Hello back",
		CreatedAt:      time.Now().UTC(),
	}
	h.publish(t, msg)
	h.publish(t, msg)

	require.Eventually(t, func() bool { return len(h.view.Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.view.Messages(), 1)
	assert.Len(t, h.rec.kinds(UpdateMessage), 1)
}

func TestOpen_SwitchTearsDownPreviousSubscription(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))
	first := h.view.Subscription()

	require.NoError(t, h.view.Open(context.Background(), "tenant-2"))

	assert.Equal(t, realtime.StateTornDown, first.State())
	assert.Equal(t, 0, h.broker.ListenerCount(convIDFor(tenantID)))
	assert.Equal(t, 1, h.broker.ListenerCount(convIDFor("tenant-2")))
	assert.Equal(t, convIDFor("tenant-2"), h.view.Conversation().ID)
}

func TestOpen_StaleResponseIsIgnored(t *testing.T) {
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	next := h.resolver.resolveFunc
	h.resolver.resolveFunc = func(ctx context.Context, a, b string) (*domain.Conversation, error) {
		if b == "slow" {
			close(entered)
			<-release // completes even though its context was cancelled
		}
		return next(ctx, a, b)
	}

	slowErr := make(chan error, 1)
	go func() { slowErr <- h.view.Open(context.Background(), "slow") }()
	<-entered

	require.NoError(t, h.view.Open(context.Background(), tenantID))
	close(release)

	assert.ErrorIs(t, <-slowErr, domain.ErrSuperseded)
	assert.Equal(t, convIDFor(tenantID), h.view.Conversation().ID)
	assert.Equal(t, 0, h.broker.ListenerCount(convIDFor("slow")))
}

func TestOpen_CommittedOpenKeepsFeedWhenNewerOpenFails(t *testing.T) {
	h := newHarness(t)

	opened := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	view := New(landlordID, h.view.deps, func(u Update) {
		if u.Kind == UpdateOpened {
			once.Do(func() {
				close(opened)
				<-release
			})
		}
	})
	t.Cleanup(view.Close)

	firstErr := make(chan error, 1)
	go func() { firstErr <- view.Open(context.Background(), tenantID) }()
	<-opened

	// the first open has committed but not subscribed yet
	assert.ErrorIs(t, view.Open(context.Background(), "ghost"), domain.ErrNotFound)
	close(release)

	require.NoError(t, <-firstErr)
	assert.Equal(t, convIDFor(tenantID), view.Conversation().ID)
	require.NotNil(t, view.Subscription())
	assert.Equal(t, realtime.StateActive, view.Subscription().State())

	h.publish(t, domain.Message{
		ID:             "m-live",
		ConversationID: convIDFor(tenantID),
		SenderID:       tenantID,
		Body:           "still connected",
		CreatedAt:      time.Now().UTC(),
	})
	require.Eventually(t, func() bool {
		return len(view.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpen_FailureKeepsPreviousState(t *testing.T) {
	h := newHarness(t)
	h.store.historyFunc = func(_ context.Context, id string) ([]domain.Message, error) {
		if id == convIDFor("broken") {
			return nil, domain.ErrStorageUnavailable
		}
		return []domain.Message{{ID: "m1", ConversationID: id, SenderID: tenantID}}, nil
	}
	require.NoError(t, h.view.Open(context.Background(), tenantID))

	err := h.view.Open(context.Background(), "broken")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	err = h.view.Open(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, convIDFor(tenantID), h.view.Conversation().ID)
	assert.Len(t, h.view.Messages(), 1)
	assert.Equal(t, realtime.StateActive, h.view.Subscription().State())
	assert.Len(t, h.rec.kinds(UpdateOpened), 1)
}

func TestOpenLink_PrefillOnly(t *testing.T) {
	h := newHarness(t)

	err := h.view.OpenLink(context.Background(), h.linkValues(t, "Please pay rent", false))
	require.NoError(t, err)

	assert.Equal(t, convIDFor(tenantID), h.view.Conversation().ID)
	assert.Equal(t, "Please pay rent", h.view.Compose())
	assert.Empty(t, h.store.appendCalls())
	assert.Equal(t, realtime.StateActive, h.view.Subscription().State())
}

func TestOpenLink_AutoSendOnce(t *testing.T) {
	h := newHarness(t)
	values := h.linkValues(t, "Please pay rent", true)

	require.NoError(t, h.view.OpenLink(context.Background(), values))

	calls := h.store.appendCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, appendCall{convIDFor(tenantID), landlordID, "Please pay rent"}, calls[0])
	assert.Equal(t, "", h.view.Compose())
	require.Len(t, h.view.Messages(), 1)
	assert.Equal(t, "Please pay rent", h.view.Messages()[0].Body)

	// refresh with the same link
	require.NoError(t, h.view.OpenLink(context.Background(), values))
	assert.Len(t, h.store.appendCalls(), 1)
	assert.Equal(t, "Please pay rent", h.view.Compose())
}

func TestOpenLink_AutoSendWithoutTokenOnlyPrefills(t *testing.T) {
	h := newHarness(t)
	values := url.Values{
		deeplink.ParamTo:       {tenantID},
		deeplink.ParamPrefill:  {"Please pay rent"},
		deeplink.ParamAutoSend: {"1"},
	}

	require.NoError(t, h.view.OpenLink(context.Background(), values))
	assert.Empty(t, h.store.appendCalls())
	assert.Equal(t, "Please pay rent", h.view.Compose())
}

func TestOpenLink_InvalidLink(t *testing.T) {
	h := newHarness(t)
	err := h.view.OpenLink(context.Background(), url.Values{deeplink.ParamPrefill: {"x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidLink)
	assert.Nil(t, h.view.Conversation())
}

func TestSend_BlankComposeIsRejectedLocally(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))

	h.view.SetCompose("   ")
	err := h.view.Send(context.Background())

	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Empty(t, h.store.appendCalls())
	assert.Equal(t, "   ", h.view.Compose())
	assert.Empty(t, h.rec.kinds(UpdatePending))
}

func TestSend_WithoutConversation(t *testing.T) {
	h := newHarness(t)
	h.view.SetCompose("hello")
	assert.ErrorIs(t, h.view.Send(context.Background()), ErrNoConversation)
}

func TestSend_SuccessConfirmsAndReconciles(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))

	h.view.SetCompose("Rent received, thanks")
	require.NoError(t, h.view.Send(context.Background()))

	pending := h.rec.kinds(UpdatePending)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.PendingStatusPending, pending[0].Pending.Status)
	assert.Equal(t, domain.PendingStatusConfirmed, pending[1].Pending.Status)
	assert.Equal(t, pending[0].Pending.LocalID, pending[1].Pending.LocalID)
	require.NotNil(t, pending[1].Pending.Message)

	entries := h.view.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Message)
	assert.Equal(t, "Rent received, thanks", entries[0].Message.Body)
	assert.Equal(t, "", h.view.Compose())
}

func TestSend_FailureRestoresCompose(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))
	h.store.appendFunc = func(context.Context, string, string, string) (*domain.Message, error) {
		return nil, domain.ErrStorageUnavailable
	}

	h.view.SetCompose("Please pay rent")
	err := h.view.Send(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	assert.Equal(t, "Please pay rent", h.view.Compose())
	entries := h.view.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Pending)
	assert.Equal(t, domain.PendingStatusFailed, entries[0].Pending.Status)
	assert.ErrorIs(t, entries[0].Pending.Err, domain.ErrStorageUnavailable)

	assert.True(t, h.view.DiscardFailed(entries[0].Pending.LocalID))
	assert.Empty(t, h.view.Entries())
}

func TestSend_FailureKeepsNewlyTypedText(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))
	h.store.appendFunc = func(context.Context, string, string, string) (*domain.Message, error) {
		h.view.SetCompose("typed meanwhile")
		return nil, domain.ErrStorageUnavailable
	}

	h.view.SetCompose("first")
	assert.Error(t, h.view.Send(context.Background()))
	assert.Equal(t, "typed meanwhile", h.view.Compose())
}

func TestReload(t *testing.T) {
	h := newHarness(t)
	history := []domain.Message{{ID: "m1", ConversationID: convIDFor(tenantID), SenderID: tenantID, Body: "one"}}
	h.store.historyFunc = func(context.Context, string) ([]domain.Message, error) {
		return history, nil
	}
	require.NoError(t, h.view.Open(context.Background(), tenantID))

	h.store.historyFunc = func(context.Context, string) ([]domain.Message, error) {
		return nil, domain.ErrStorageUnavailable
	}
	err := h.view.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Len(t, h.view.Messages(), 1, "failed reload keeps the list")

	h.store.historyFunc = func(context.Context, string) ([]domain.Message, error) {
		return append(history, domain.Message{
			ID: "m2", ConversationID: convIDFor(tenantID), SenderID: landlordID, Body: "two",
			CreatedAt: time.Now().UTC(),
		}), nil
	}
	require.NoError(t, h.view.Reload(context.Background()))
	assert.Len(t, h.view.Messages(), 2)
}

func TestFeedLossIsReported(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))

	require.NoError(t, h.feed.Close())

	require.Eventually(t, func() bool {
		for _, u := range h.rec.kinds(UpdateError) {
			if errors.Is(u.Err, domain.ErrChannelUnavailable) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, realtime.StateTornDown, h.view.Subscription().State())
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.view.Open(context.Background(), tenantID))
	sub := h.view.Subscription()

	h.view.Close()
	h.view.Close()

	assert.Equal(t, realtime.StateTornDown, sub.State())
	assert.ErrorIs(t, h.view.Open(context.Background(), tenantID), ErrViewClosed)
}
