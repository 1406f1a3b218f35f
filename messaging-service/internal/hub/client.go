package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/chatview"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/config"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

var ErrClientClosed = errors.New("client closed")

type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *domain.Session
	config  config.WebSocketConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	view   *chatview.View
	closed bool
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBufferSize
	if size <= 0 {
		size = 256
	}
	ctx, cancel := context.WithCancel(log.WithStr(context.Background(), log.FieldClientID, id))
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, size),
		Session: domain.NewSession(id),
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context is cancelled when the client goes away.
func (c *Client) Context() context.Context {
	return c.ctx
}

// View returns the chat view of an authenticated client, nil before auth.
func (c *Client) View() *chatview.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SetView installs v and closes the view it replaces. A closed client
// closes v immediately.
func (c *Client) SetView(v *chatview.View) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if v != nil {
			v.Close()
		}
		return
	}
	prev := c.view
	c.view = v
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	view := c.view
	c.view = nil
	c.cancel()
	close(c.Send)
	c.mu.Unlock()

	if view != nil {
		view.Close()
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.Ctx(c.ctx)
				l.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a JSON frame. A full buffer drops the frame.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.Send <- data:
	default:
		l := log.Ctx(c.ctx)
		l.Warn().Msg("send buffer full, frame dropped")
	}
	return nil
}
