package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/models"
	"github.com/eldtechnologies/inbox/internal/store"
)

// MaxPageSize caps the number of messages returned per page.
const MaxPageSize = 200

// Page selects a window of messages. Before is a message id; the zero
// value selects the newest messages.
type Page struct {
	Limit  int
	Before string
}

// MessagePage is a window of messages in ascending created_at order.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// Messages returns a page of the conversation's history for a participant.
func (s *Service) Messages(ctx context.Context, conversationID, self uuid.UUID, page Page) (*MessagePage, error) {
	if _, err := s.participant(ctx, conversationID, self); err != nil {
		return nil, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = store.DefaultMessageLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	// One extra row tells us whether older messages remain.
	msgs, err := s.store.ListMessages(ctx, conversationID, limit+1, page.Before)
	if err != nil {
		return nil, transient(err)
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[1:]
	}

	ids := make([]uuid.UUID, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].SenderID
	}
	names := s.names.DisplayNames(ctx, ids...)
	for i := range msgs {
		msgs[i].SenderName = names[msgs[i].SenderID]
	}
	return &MessagePage{Messages: msgs, HasMore: hasMore}, nil
}
