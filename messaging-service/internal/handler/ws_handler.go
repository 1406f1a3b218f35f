package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/audit"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/chatview"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/config"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/hub"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/middleware"
)

type WSHandler struct {
	hub       *hub.Hub
	validator middleware.TokenValidator
	identity  identity.Provider
	deps      chatview.Deps
	upgrader  websocket.Upgrader
	wsCfg     config.WebSocketConfig
}

func NewWSHandler(
	h *hub.Hub,
	validator middleware.TokenValidator,
	idp identity.Provider,
	deps chatview.Deps,
	wsCfg config.WebSocketConfig,
) *WSHandler {
	return &WSHandler{
		hub:       h,
		validator: validator,
		identity:  idp,
		deps:      deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsCfg.ReadBufferSize,
			WriteBufferSize: wsCfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		wsCfg: wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(ksuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	switch base.Type {
	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})
		return
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid auth message"))
			return
		}
		h.handleAuth(client, msg.Token)
		return
	}

	view := client.View()
	if view == nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "Not authenticated"))
		return
	}
	ctx := client.Context()

	switch base.Type {
	case domain.MsgTypeOpenConversation:
		var msg domain.OpenConversationMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.ParticipantID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid open_conversation message"))
			return
		}
		// opens run concurrently so a newer one can supersede a slow one
		go func() {
			h.reportError(client, view.Open(ctx, msg.ParticipantID))
		}()

	case domain.MsgTypeOpenLink:
		var msg domain.OpenLinkMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid open_link message"))
			return
		}
		values, err := url.ParseQuery(strings.TrimPrefix(msg.Query, "?"))
		if err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInvalidLink, "Malformed link query"))
			return
		}
		go func() {
			h.reportError(client, view.OpenLink(ctx, values))
		}()

	case domain.MsgTypeCompose:
		var msg domain.ComposeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid compose message"))
			return
		}
		view.SetCompose(msg.Text)

	case domain.MsgTypeSend:
		var msg domain.SendMessageWS
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid send message"))
			return
		}
		if msg.Content != nil {
			view.SetCompose(*msg.Content)
		}
		h.reportError(client, view.Send(ctx))

	case domain.MsgTypeReload:
		h.reportError(client, view.Reload(ctx))

	case domain.MsgTypeCloseConversation:
		client.SetView(h.newView(client, client.Session.GetParticipantID()))

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) handleAuth(client *hub.Client, token string) {
	ctx := client.Context()

	if client.Session.IsAuthenticated() {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Already authenticated"))
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
		client.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "Invalid token",
		})
		return
	}

	participant, err := h.identity.CurrentParticipant(identity.WithParticipantID(ctx, claims.ParticipantID))
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, claims.ParticipantID, err.Error(), "websocket authentication failed")
		msg := "Unknown participant"
		if !errors.Is(err, domain.ErrNotAuthenticated) {
			msg = "Identity unavailable"
		}
		client.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: msg,
		})
		return
	}

	client.Session.Authenticate(participant.ID)
	h.hub.BindParticipant(client, participant.ID)
	client.SetView(h.newView(client, participant.ID))

	audit.Log(ctx, audit.ActionAuth, participant.ID, "websocket authenticated")
	client.SendMessage(&domain.AuthResultMessage{
		Type:          domain.MsgTypeAuthResult,
		Success:       true,
		ParticipantID: participant.ID,
		DisplayName:   participant.DisplayName,
	})
}

func (h *WSHandler) newView(client *hub.Client, participantID string) *chatview.View {
	return chatview.New(participantID, h.deps, func(u chatview.Update) {
		if frame := updateFrame(u); frame != nil {
			client.SendMessage(frame)
		}
	})
}

// reportError sends err to the client. Superseded opens are silent.
func (h *WSHandler) reportError(client *hub.Client, err error) {
	if err == nil || errors.Is(err, domain.ErrSuperseded) || errors.Is(err, chatview.ErrViewClosed) {
		return
	}
	client.SendMessage(errorFrame(err))

	if _, code := classify(err); code == domain.ErrCodeInternalError {
		l := log.Ctx(client.Context())
		l.Error().Err(err).Str(log.FieldParticipantID, client.Session.GetParticipantID()).Msg("chat operation failed")
	}
}

func errorFrame(err error) *domain.ErrorMessage {
	status, code := classify(err)
	return domain.NewErrorMessage(code, publicMessage(status, err))
}

// updateFrame maps a view update to the frame sent to the client.
func updateFrame(u chatview.Update) interface{} {
	switch u.Kind {
	case chatview.UpdateOpened:
		return &domain.ConversationOpenedMessage{
			Type:         domain.MsgTypeConversationOpened,
			Conversation: u.Conversation,
			Messages:     u.Messages,
			Compose:      u.Compose,
		}
	case chatview.UpdateMessage:
		return &domain.MessageOut{Type: domain.MsgTypeMessage, Message: u.Message}
	case chatview.UpdatePending:
		p := u.Pending
		out := &domain.PendingOut{
			Type:    domain.MsgTypePending,
			LocalID: p.LocalID,
			Status:  p.Status.String(),
			Body:    p.Body,
			Message: p.Message,
		}
		if p.Err != nil {
			_, out.Error = classify(p.Err)
		}
		return out
	case chatview.UpdateCompose:
		return &domain.ComposeOut{Type: domain.MsgTypeCompose, Text: u.Compose}
	case chatview.UpdateError:
		return errorFrame(u.Err)
	default:
		return nil
	}
}

// RegisterRoutes mounts the chat socket on the gin engine.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", gin.WrapF(h.HandleWebSocket))
}
