package audit

import (
	"context"

	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

// Audit actions for messaging-service.
const (
	ActionAuth                = "messaging.auth"
	ActionAuthFailed          = "messaging.auth_failed"
	ActionResolveConversation = "messaging.conversation_resolve"
	ActionSendMessage         = "messaging.send_message"
	ActionDeepLinkCompose     = "messaging.deeplink_compose"
	ActionDeepLinkAutoSend    = "messaging.deeplink_autosend"
	ActionDeepLinkReplay      = "messaging.deeplink_replay_suppressed"
	ActionDisconnect          = "messaging.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, participantID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldParticipantID, participantID).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the object acted upon.
func LogWithTarget(ctx context.Context, action string, participantID string, targetID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldParticipantID, participantID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, participantID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldParticipantID, participantID).
		Str(FieldDetail, detail).
		Msg(msg)
}
