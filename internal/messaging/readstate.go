package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/events"
	"github.com/eldtechnologies/inbox/internal/metrics"
	"github.com/eldtechnologies/inbox/internal/models"
)

// MarkRead moves self's read cursor past every message currently in the
// conversation. Repeated or reordered calls are harmless: the cursor only
// moves forward.
func (s *Service) MarkRead(ctx context.Context, conversationID, self uuid.UUID) (*models.Participant, error) {
	if _, err := s.participant(ctx, conversationID, self); err != nil {
		return nil, err
	}

	p, err := s.store.AdvanceReadCursor(ctx, conversationID, self, s.now())
	if err != nil {
		return nil, transient(err)
	}
	if p == nil {
		return nil, ErrForbidden
	}

	metrics.ReadsMarked.Inc()
	s.publish(ctx, events.Event{
		Type:           events.TypeConversationRead,
		ConversationID: conversationID,
		IdentityID:     self,
		At:             *p.LastReadAt,
	})
	return p, nil
}

// UnreadCount returns the number of messages from the other participant
// newer than self's read cursor.
func (s *Service) UnreadCount(ctx context.Context, conversationID, self uuid.UUID) (int, error) {
	if _, err := s.participant(ctx, conversationID, self); err != nil {
		return 0, err
	}
	n, err := s.store.CountUnread(ctx, conversationID, self)
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}

// TotalUnread sums unread counts over self's non-archived conversations.
func (s *Service) TotalUnread(ctx context.Context, self uuid.UUID) (int, error) {
	n, err := s.store.CountUnreadTotal(ctx, self)
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}
