package chatview

import "github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"

// UpdateKind identifies what changed in a View.
type UpdateKind int

const (
	UpdateOpened UpdateKind = iota
	UpdateMessage
	UpdatePending
	UpdateCompose
	UpdateError
)

// Update is reported to the Observer after every state change.
type Update struct {
	Kind         UpdateKind
	Conversation *domain.Conversation
	Messages     []domain.Message
	Message      *domain.Message
	Pending      *domain.PendingMessage
	Compose      string
	Err          error
}

// Observer receives updates. It is called without the view's lock held and
// may be invoked from broker goroutines. Errors of View methods are returned
// to the caller; UpdateError only reports a lost live feed.
type Observer func(Update)

// Entry is one row of the rendered list: a confirmed message or a local
// pending/failed send.
type Entry struct {
	Message *domain.Message
	Pending *domain.PendingMessage
}
