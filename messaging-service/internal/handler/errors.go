package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/chatview"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/response"
)

// classify maps a service error to an HTTP status and an error code shared
// by the REST and WebSocket surfaces.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized, response.CodeUnauthorized
	case errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden, response.CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, response.CodeNotFound
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest, domain.ErrCodeEmptyMessage
	case errors.Is(err, domain.ErrInvalidLink):
		return http.StatusBadRequest, domain.ErrCodeInvalidLink
	case errors.Is(err, domain.ErrInvalidParticipants):
		return http.StatusBadRequest, response.CodeBadRequest
	case errors.Is(err, chatview.ErrNoConversation):
		return http.StatusConflict, domain.ErrCodeNoConversation
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrChannelUnavailable):
		return http.StatusServiceUnavailable, response.CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, response.CodeInternalError
	}
}

// publicMessage hides the text of unclassified errors.
func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("request failed")
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Error(c, status, code, publicMessage(status, err))
}
