// Package reactions toggles (message, user, emoji) tuples.
package reactions

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/serial"
)

const maxEmojiRunes = 32

// Hooks let the caller authorize a toggle and publish its result. Both run on the
// message's lane, so notifications for one message go out in toggle order.
type Hooks struct {
	Authorize func(ctx context.Context, msg models.Message, userID int) error
	Notify    func(ctx context.Context, msg models.Message)
}

// Ledger applies reaction toggles one at a time per message.
type Ledger struct {
	messages repositories.MessageRepository
	lanes    *serial.Lanes
	hooks    Hooks
}

// New builds a Ledger.
func New(messages repositories.MessageRepository, lanes *serial.Lanes, hooks Hooks) *Ledger {
	return &Ledger{messages: messages, lanes: lanes, hooks: hooks}
}

// LaneKey is the serial lane key of a message.
func LaneKey(messageID int) string {
	return "message:" + strconv.Itoa(messageID)
}

// Toggle removes the tuple if present and adds it otherwise. It returns the message
// with its full updated reaction set.
func (l *Ledger) Toggle(ctx context.Context, messageID, userID int, emoji string) (msg models.Message, added bool, err error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return models.Message{}, false, errs.New(errs.Invalid, "reaction.toggle", "invalid emoji")
	}

	err = l.lanes.Do(ctx, LaneKey(messageID), func(ctx context.Context) error {
		current, err := l.load(ctx, messageID)
		if err != nil {
			return err
		}
		if l.hooks.Authorize != nil {
			if err := l.hooks.Authorize(ctx, current, userID); err != nil {
				return err
			}
		}

		if has(current.Reactions, userID, emoji) {
			err = l.messages.RemoveReaction(ctx, messageID, userID, emoji)
		} else {
			err = l.messages.AppendReaction(ctx, messageID, userID, emoji)
			added = true
		}
		if err != nil {
			return errs.Wrap(errs.Internal, "reaction.toggle", err)
		}

		set, err := l.messages.ListReactions(ctx, messageID)
		if err != nil {
			return errs.Wrap(errs.Internal, "reaction.toggle", err)
		}
		current.Reactions = set
		msg = current

		if l.hooks.Notify != nil {
			l.hooks.Notify(ctx, msg)
		}
		return nil
	})
	if err != nil {
		return models.Message{}, false, err
	}
	if added {
		observability.IncReactionToggle("added")
	} else {
		observability.IncReactionToggle("removed")
	}
	return msg, added, nil
}

func (l *Ledger) load(ctx context.Context, messageID int) (models.Message, error) {
	msg, err := l.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, errs.New(errs.NotFound, "reaction.toggle", "message not found")
	}
	if err != nil {
		return models.Message{}, errs.Wrap(errs.Internal, "reaction.toggle", err)
	}
	return msg, nil
}

func has(set []models.Reaction, userID int, emoji string) bool {
	for _, r := range set {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}
