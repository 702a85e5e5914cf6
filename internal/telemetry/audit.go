package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Room actions recorded in the audit log.
const (
	ActionRoomUpdated   = "room_updated"
	ActionRoomDeleted   = "room_deleted"
	ActionAdminAdded    = "admin_added"
	ActionAdminRemoved  = "admin_removed"
	ActionMemberRemoved = "member_removed"
)

// AuditEmitter publishes audit_log envelopes for administrative room actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level    string `json:"level"`
	Text     string `json:"text"`
	Action   string `json:"action,omitempty"`
	RoomID   int    `json:"room_id,omitempty"`
	TargetID int    `json:"target_user_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger.Named("audit"),
		now:         time.Now,
	}
}

// Emit publishes a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *int64) {
	e.emit(ctx, requestID, userID, AuditPayload{Level: level, Text: text})
}

// RoomAction records an administrative action on roomID. targetID is the
// affected user, or 0 when the action targets the room itself.
func (e *AuditEmitter) RoomAction(ctx context.Context, action string, roomID, targetID int, requestID string, actorID *int64) {
	text := fmt.Sprintf("%s room=%d", action, roomID)
	if targetID != 0 {
		text = fmt.Sprintf("%s room=%d user=%d", action, roomID, targetID)
	}
	e.emit(ctx, requestID, actorID, AuditPayload{
		Level:    "INFO",
		Text:     text,
		Action:   action,
		RoomID:   roomID,
		TargetID: targetID,
	})
}

func (e *AuditEmitter) emit(ctx context.Context, requestID string, userID *int64, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Debug("audit emit",
		zap.String("level", payload.Level),
		zap.String("action", payload.Action),
		zap.String("request_id", requestID),
		zap.Int64p("user_id", userID),
		zap.String("text", payload.Text))
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope, map[string]string{"x-request-id": requestID}); err != nil {
		e.logger.Warn("audit publish failed", zap.String("action", payload.Action), zap.Error(err))
	}
}
