// Package chatview holds the state of one participant's open chat: the
// selected conversation, its ordered messages, optimistic sends and the
// compose text.
package chatview

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/audit"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/deeplink"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/realtime"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/service"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

var (
	ErrNoConversation = errors.New("no conversation is open")
	ErrViewClosed     = errors.New("chat view closed")
)

// Deps are the collaborators shared by all views of a process.
type Deps struct {
	Resolver service.ConversationResolver
	Store    service.MessageStore
	Broker   *realtime.Broker
	Tokens   deeplink.TokenStore
	LocalIDs idgen.Generator
}

// View is the chat state of one participant. All methods are safe for
// concurrent use.
//
// Lock order: switchMu before mu. mu is never held while calling the slot,
// the resolver or the store.
type View struct {
	localID  string
	deps     Deps
	slot     *realtime.Slot
	observer Observer
	now      func() time.Time

	switchMu sync.Mutex

	mu           sync.Mutex
	conversation *domain.Conversation
	messages     []domain.Message
	pending      []*domain.PendingMessage
	compose      string
	generation   uint64
	cancelOpen   context.CancelFunc
	closed       bool
}

// New creates a view for an authenticated participant.
func New(localParticipantID string, deps Deps, observer Observer) *View {
	return &View{
		localID:  localParticipantID,
		deps:     deps,
		slot:     realtime.NewSlot(deps.Broker),
		observer: observer,
		now:      time.Now,
	}
}

func (v *View) notify(u Update) {
	if v.observer != nil {
		v.observer(u)
	}
}

func (v *View) withIdentity(ctx context.Context) context.Context {
	return identity.WithParticipantID(ctx, v.localID)
}

// Open switches to the conversation with targetID. Any open still in flight
// is cancelled and, if it completes anyway, ignored with ErrSuperseded. When
// resolving or loading history fails, the previously shown conversation
// stays as it was.
func (v *View) Open(ctx context.Context, targetID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.cancelOpen != nil {
		v.cancelOpen()
	}
	v.generation++
	gen := v.generation
	ctx, cancel := context.WithCancel(v.withIdentity(ctx))
	v.cancelOpen = cancel
	v.mu.Unlock()
	defer cancel()

	l := log.Ctx(ctx)

	conv, err := v.deps.Resolver.Resolve(ctx, v.localID, targetID)
	if err != nil {
		return v.openFailed(gen, err)
	}

	history, err := v.deps.Store.ListHistory(ctx, conv.ID)
	if err != nil {
		return v.openFailed(gen, err)
	}

	v.switchMu.Lock()
	defer v.switchMu.Unlock()

	v.mu.Lock()
	if v.closed || v.generation != gen {
		v.mu.Unlock()
		return domain.ErrSuperseded
	}
	v.conversation = conv
	v.messages = history
	v.pending = nil
	v.compose = ""
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(snapshot)

	// The view now shows conv. A newer open cancelling ctx must not leave it
	// without a feed; that open replaces the handle under switchMu instead.
	sub, err := v.slot.Acquire(context.WithoutCancel(ctx), conv.ID, v.localID, v.onMessage(conv.ID))
	if err != nil {
		if v.stale(gen) {
			return domain.ErrSuperseded
		}
		l.Warn().Err(err).Str(log.FieldConversationID, conv.ID).Msg("live updates unavailable")
		return err
	}
	go v.watch(sub)
	return nil
}

func (v *View) stale(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed || v.generation != gen
}

func (v *View) openFailed(gen uint64, err error) error {
	if v.stale(gen) {
		return domain.ErrSuperseded
	}
	return err
}

func (v *View) snapshotLocked() Update {
	msgs := make([]domain.Message, len(v.messages))
	copy(msgs, v.messages)
	conv := *v.conversation
	return Update{
		Kind:         UpdateOpened,
		Conversation: &conv,
		Messages:     msgs,
		Compose:      v.compose,
	}
}

func (v *View) onMessage(conversationID string) func(domain.Message) {
	return func(msg domain.Message) {
		v.mu.Lock()
		if v.conversation == nil || v.conversation.ID != conversationID {
			v.mu.Unlock()
			return
		}
		var added bool
		v.messages, added = domain.InsertMessage(v.messages, msg)
		v.mu.Unlock()

		if added {
			v.notify(Update{Kind: UpdateMessage, Message: &msg})
		}
	}
}

// watch reports a lost feed. Live updates then stay off until the next Open.
func (v *View) watch(sub *realtime.Subscription) {
	<-sub.Done()
	if err := sub.Err(); err != nil {
		l := log.L()
		l.Warn().Err(err).
			Str(log.FieldSubscriptionID, sub.ID()).
			Str(log.FieldConversationID, sub.ConversationID()).
			Msg("subscription lost")
		v.notify(Update{Kind: UpdateError, Err: err})
	}
}

// OpenLink opens the conversation a deep link points at, then either
// prefills the compose text or, for an auto-send link whose token has not
// been used yet, sends it. Replayed and token-less auto-send links only
// prefill.
func (v *View) OpenLink(ctx context.Context, values url.Values) error {
	link, err := deeplink.Decode(values)
	if err != nil {
		return err
	}
	if err := v.Open(ctx, link.Target); err != nil {
		return err
	}
	if link.Prefill == "" {
		return nil
	}

	ctx = v.withIdentity(ctx)
	if !link.AutoSend {
		v.setCompose(link.Prefill, true)
		return nil
	}
	if !v.consumeToken(ctx, link.Token) {
		audit.LogWithTarget(ctx, audit.ActionDeepLinkReplay, v.localID, link.Target, "auto-send suppressed, prefilled instead")
		v.setCompose(link.Prefill, true)
		return nil
	}

	audit.LogWithTarget(ctx, audit.ActionDeepLinkAutoSend, v.localID, link.Target, "deep link auto-send")
	v.setCompose(link.Prefill, true)
	return v.Send(ctx)
}

func (v *View) consumeToken(ctx context.Context, token string) bool {
	if token == "" || v.deps.Tokens == nil {
		return false
	}
	fresh, err := v.deps.Tokens.Consume(ctx, token)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("link token check failed")
		return false
	}
	return fresh
}

// SetCompose replaces the compose text.
func (v *View) SetCompose(text string) {
	v.setCompose(text, false)
}

func (v *View) setCompose(text string, notify bool) {
	v.mu.Lock()
	v.compose = text
	v.mu.Unlock()
	if notify {
		v.notify(Update{Kind: UpdateCompose, Compose: text})
	}
}

func (v *View) Compose() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.compose
}

// Send appends the compose text. A blank compose returns ErrEmptyMessage
// without any call and without touching the text. Otherwise a Pending entry
// is added and the compose cleared; on failure the entry turns Failed and
// the text is restored unless the user has typed something new.
func (v *View) Send(ctx context.Context) error {
	v.mu.Lock()
	if v.conversation == nil {
		v.mu.Unlock()
		return ErrNoConversation
	}
	body := v.compose
	if strings.TrimSpace(body) == "" {
		v.mu.Unlock()
		return domain.ErrEmptyMessage
	}

	localID, err := v.deps.LocalIDs.Generate()
	if err != nil {
		v.mu.Unlock()
		return err
	}
	conversationID := v.conversation.ID
	p := &domain.PendingMessage{
		LocalID:        localID,
		ConversationID: conversationID,
		SenderID:       v.localID,
		Body:           body,
		CreatedAt:      v.now().UTC(),
		Status:         domain.PendingStatusPending,
	}
	v.pending = append(v.pending, p)
	v.compose = ""
	pendingSnapshot := *p
	v.mu.Unlock()

	v.notify(Update{Kind: UpdatePending, Pending: &pendingSnapshot})
	v.notify(Update{Kind: UpdateCompose, Compose: ""})

	msg, err := v.deps.Store.Append(v.withIdentity(ctx), conversationID, v.localID, body)

	v.mu.Lock()
	current := v.conversation != nil && v.conversation.ID == conversationID
	restored := false
	if err != nil {
		p.Status = domain.PendingStatusFailed
		p.Err = err
		if current && v.compose == "" {
			v.compose = body
			restored = true
		}
	} else {
		p.Status = domain.PendingStatusConfirmed
		p.Message = msg
		v.removePendingLocked(p.LocalID)
		if current {
			v.messages, _ = domain.InsertMessage(v.messages, *msg)
		}
	}
	final := *p
	v.mu.Unlock()

	v.notify(Update{Kind: UpdatePending, Pending: &final})
	if restored {
		v.notify(Update{Kind: UpdateCompose, Compose: body})
	}
	return err
}

func (v *View) removePendingLocked(localID string) bool {
	for i, p := range v.pending {
		if p.LocalID == localID {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return true
		}
	}
	return false
}

// DiscardFailed drops a failed send from the list.
func (v *View) DiscardFailed(localID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, p := range v.pending {
		if p.LocalID == localID && p.Status == domain.PendingStatusFailed {
			return v.removePendingLocked(localID)
		}
	}
	return false
}

// Reload refetches the history of the open conversation. On failure the
// current list is kept.
func (v *View) Reload(ctx context.Context) error {
	v.mu.Lock()
	if v.conversation == nil {
		v.mu.Unlock()
		return ErrNoConversation
	}
	conversationID := v.conversation.ID
	v.mu.Unlock()

	history, err := v.deps.Store.ListHistory(v.withIdentity(ctx), conversationID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.conversation == nil || v.conversation.ID != conversationID {
		v.mu.Unlock()
		return domain.ErrSuperseded
	}
	// keep live messages the fetched history may not contain yet
	merged := history
	for _, m := range v.messages {
		merged, _ = domain.InsertMessage(merged, m)
	}
	v.messages = merged
	snapshot := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(snapshot)
	return nil
}

func (v *View) Conversation() *domain.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conversation == nil {
		return nil
	}
	conv := *v.conversation
	return &conv
}

func (v *View) Messages() []domain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	msgs := make([]domain.Message, len(v.messages))
	copy(msgs, v.messages)
	return msgs
}

// Entries returns confirmed messages in order followed by local sends that
// are still pending or failed.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries := make([]Entry, 0, len(v.messages)+len(v.pending))
	for i := range v.messages {
		m := v.messages[i]
		entries = append(entries, Entry{Message: &m})
	}
	for _, p := range v.pending {
		cp := *p
		entries = append(entries, Entry{Pending: &cp})
	}
	return entries
}

// Subscription returns the live handle of the open conversation, if any.
func (v *View) Subscription() *realtime.Subscription {
	return v.slot.Current()
}

// Close cancels any open in flight and tears down the subscription.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.generation++
	if v.cancelOpen != nil {
		v.cancelOpen()
	}
	v.mu.Unlock()

	v.switchMu.Lock()
	v.slot.Release()
	v.switchMu.Unlock()
}
