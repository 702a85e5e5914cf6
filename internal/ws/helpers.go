package ws

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

func newConnID() string {
	return uuid.NewString()
}

// tokenFromRequest accepts a bearer header or a token query parameter.
func tokenFromRequest(header, query string) string {
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(query)
}

// roomIDFromPayload accepts a bare number or {"roomId": n}.
func roomIDFromPayload(raw json.RawMessage) (int, error) {
	var id int
	if err := json.Unmarshal(raw, &id); err == nil && id > 0 {
		return id, nil
	}
	var ref models.RoomRef
	if err := json.Unmarshal(raw, &ref); err == nil && ref.RoomID > 0 {
		return ref.RoomID, nil
	}
	return 0, errs.New(errs.Invalid, "payload", "roomId is required")
}

func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return errs.New(errs.Invalid, "payload", "payload is required")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errs.New(errs.Invalid, "payload", "malformed payload")
	}
	return nil
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
