package hub

import (
	"sync"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/config"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

// Hub tracks the live WebSocket clients of this process. Message fan-out
// goes through the realtime broker; the hub owns connection lifecycle.
type Hub struct {
	clients      map[string]*Client            // clientID -> client
	participants map[string]map[string]*Client // participantID -> clientID -> client
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}
	stopOnce     sync.Once
	mu           sync.RWMutex
	config       config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		participants: make(map[string]map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		config:       cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.remove(client)
			l := log.L()
			l.Debug().Str(log.FieldClientID, client.ID).Msg("client unregistered")

		case <-h.done:
			h.mu.Lock()
			clients := make([]*Client, 0, len(h.clients))
			for _, c := range h.clients {
				clients = append(clients, c)
			}
			h.clients = make(map[string]*Client)
			h.participants = make(map[string]map[string]*Client)
			h.mu.Unlock()

			for _, c := range clients {
				c.close()
			}
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		if pid := client.Session.GetParticipantID(); pid != "" {
			if pc, found := h.participants[pid]; found {
				delete(pc, client.ID)
				if len(pc) == 0 {
					delete(h.participants, pid)
				}
			}
		}
	}
	h.mu.Unlock()

	if ok {
		client.close()
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// BindParticipant indexes an authenticated client under its participant.
func (h *Hub) BindParticipant(client *Client, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.participants[participantID]; !ok {
		h.participants[participantID] = make(map[string]*Client)
	}
	h.participants[participantID][client.ID] = client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ParticipantClientCount returns how many connections a participant holds.
func (h *Hub) ParticipantClientCount(participantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.participants[participantID])
}
