package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/audit"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/deeplink"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/service"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/middleware"
	"github.com/israelseleshi/building-management-system-sub000/pkg/response"
)

// Handler handles HTTP requests for messaging service.
type Handler struct {
	conversations  service.ConversationResolver
	messages       service.MessageStore
	participants   service.ParticipantDirectory
	identity       identity.Provider
	composer       *deeplink.Composer
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	conversations service.ConversationResolver,
	messages service.MessageStore,
	participants service.ParticipantDirectory,
	idp identity.Provider,
	composer *deeplink.Composer,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		conversations:  conversations,
		messages:       messages,
		participants:   participants,
		identity:       idp,
		composer:       composer,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.Use(h.authMiddleware.RequireAuth(), bindIdentity())
	{
		api.GET("/me", h.GetMe)
		api.GET("/participants/:id", h.GetParticipant)

		conversations := api.Group("/conversations")
		{
			conversations.GET("", h.ListConversations)
			conversations.POST("", h.ResolveConversation)
			conversations.GET("/:id/messages", h.ListMessages)
			conversations.POST("/:id/messages", h.SendMessage)
		}

		deeplinks := api.Group("/deeplinks")
		{
			deeplinks.POST("", h.ComposeLink)
			deeplinks.GET("/decode", h.DecodeLink)
		}
	}

	r.GET("/health", h.HealthCheck)
}

// bindIdentity moves the participant verified by the auth middleware into
// the request context, where the services look for it.
func bindIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := middleware.GetParticipantID(c)
		ctx := identity.WithParticipantID(c.Request.Context(), id)
		ctx = log.WithStr(ctx, log.FieldParticipantID, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetMe returns the authenticated participant.
func (h *Handler) GetMe(c *gin.Context) {
	ctx := c.Request.Context()
	participant, err := h.identity.CurrentParticipant(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, h.participants.Profile(ctx, participant))
}

// GetParticipant returns the profile shown in a chat header.
func (h *Handler) GetParticipant(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.identity.CurrentParticipant(ctx); err != nil {
		writeError(c, err)
		return
	}

	profile, err := h.participants.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, profile)
}

// ListConversations returns the caller's inbox, most recent activity first.
func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	caller, err := h.identity.CurrentParticipant(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	conversations, err := h.conversations.ListForParticipant(ctx, caller.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if conversations == nil {
		conversations = []*domain.Conversation{}
	}
	response.Success(c, domain.ConversationListResponse{Conversations: conversations})
}

// ResolveConversation finds or creates the conversation with a participant.
func (h *Handler) ResolveConversation(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ResolveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid resolve request")
		response.BadRequest(c, err.Error())
		return
	}

	conv, err := h.conversations.Resolve(ctx, middleware.GetParticipantID(c), req.ParticipantID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, conv)
}

// memberConversation loads a conversation the caller belongs to.
func (h *Handler) memberConversation(c *gin.Context) (*domain.Participant, *domain.Conversation, bool) {
	ctx := c.Request.Context()
	caller, err := h.identity.CurrentParticipant(ctx)
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}

	conv, err := h.conversations.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}
	if !conv.HasParticipant(caller.ID) {
		writeError(c, domain.ErrNotParticipant)
		return nil, nil, false
	}
	return caller, conv, true
}

// ListMessages returns the full history of a conversation, oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	_, conv, ok := h.memberConversation(c)
	if !ok {
		return
	}

	messages, err := h.messages.ListHistory(c.Request.Context(), conv.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	response.Success(c, domain.MessageListResponse{Messages: messages})
}

// SendMessage appends a message as the caller.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid send request")
		response.BadRequest(c, err.Error())
		return
	}

	caller, conv, ok := h.memberConversation(c)
	if !ok {
		return
	}

	msg, err := h.messages.Append(ctx, conv.ID, caller.ID, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, msg)
}

// ComposeLink builds a deep link that opens a chat with the target.
func (h *Handler) ComposeLink(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ComposeLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid deep link request")
		response.BadRequest(c, err.Error())
		return
	}

	link, err := h.composer.Compose(req.TargetID, req.Prefill, req.AutoSend)
	if err != nil {
		writeError(c, err)
		return
	}
	if link.AutoSend {
		audit.LogWithTarget(ctx, audit.ActionDeepLinkCompose, middleware.GetParticipantID(c), link.Target, "auto-send deep link composed")
	}
	response.Created(c, domain.ComposeLinkResponse{Params: link.Params(), Query: link.Query()})
}

// DecodeLink parses deep-link parameters without consuming the token.
func (h *Handler) DecodeLink(c *gin.Context) {
	link, err := deeplink.Decode(c.Request.URL.Query())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, domain.ComposeLinkResponse{Params: link.Params(), Query: link.Query()})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
