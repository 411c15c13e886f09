package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/events"
	"github.com/eldtechnologies/inbox/internal/metrics"
	"github.com/eldtechnologies/inbox/internal/models"
	"github.com/eldtechnologies/inbox/internal/store"
)

// MaxCorrelationIDLength bounds the client-chosen correlation id.
const MaxCorrelationIDLength = 64

// Send appends a message from sender to the conversation. Neither read
// cursor moves; the sender's own messages never count as unread for them.
//
// A non-empty correlationID makes the send idempotent: resubmitting with an
// id the sender already used in this conversation returns the stored
// message instead of creating another one.
func (s *Service) Send(ctx context.Context, conversationID, sender uuid.UUID, content, correlationID string) (*models.Message, error) {
	content, err := s.normalizeContent(content)
	if err != nil {
		return nil, err
	}
	if len(correlationID) > MaxCorrelationIDLength {
		return nil, fmt.Errorf("%w: correlation id exceeds %d bytes", ErrInvalidInput, MaxCorrelationIDLength)
	}

	if _, err := s.participant(ctx, conversationID, sender); err != nil {
		return nil, err
	}

	if correlationID != "" {
		existing, err := s.store.GetMessageByCorrelation(ctx, conversationID, sender, correlationID)
		if err != nil {
			return nil, transient(err)
		}
		if existing != nil {
			return s.resent(ctx, existing), nil
		}
	}

	msg, err := s.store.InsertMessage(ctx, conversationID, sender, content, correlationID, s.now())
	if errors.Is(err, store.ErrDuplicate) {
		existing, findErr := s.store.GetMessageByCorrelation(ctx, conversationID, sender, correlationID)
		if findErr != nil {
			return nil, transient(findErr)
		}
		if existing == nil {
			return nil, transient(err)
		}
		return s.resent(ctx, existing), nil
	}
	if err != nil {
		return nil, transient(err)
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	msg.SenderName = s.names.DisplayName(ctx, sender)

	metrics.MessagesSent.Inc()
	s.publish(ctx, events.Event{
		Type:           events.TypeMessageCreated,
		ConversationID: conversationID,
		IdentityID:     sender,
		Message:        msg,
		At:             msg.CreatedAt,
	})
	return msg, nil
}

// resent answers a repeated send with the message already stored. No
// event is published for it.
func (s *Service) resent(ctx context.Context, msg *models.Message) *models.Message {
	s.logger.Debug().
		Str("conversation", msg.ConversationID.String()).
		Str("message", msg.ID).
		Str("correlation_id", msg.CorrelationID).
		Msg("duplicate send, returning stored message")
	msg.SenderName = s.names.DisplayName(ctx, msg.SenderID)
	return msg
}

func (s *Service) normalizeContent(content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidInput)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is empty", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(content); n > s.maxLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrInvalidInput, s.maxLength)
	}
	return content, nil
}
