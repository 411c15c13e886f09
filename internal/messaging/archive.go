package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/metrics"
	"github.com/eldtechnologies/inbox/internal/models"
)

// Archive hides the conversation from self's list. The other participant
// is unaffected. Archiving twice keeps the first timestamp.
func (s *Service) Archive(ctx context.Context, conversationID, self uuid.UUID) (*models.Participant, error) {
	return s.setArchived(ctx, conversationID, self, true)
}

// Unarchive restores the conversation to self's list.
func (s *Service) Unarchive(ctx context.Context, conversationID, self uuid.UUID) (*models.Participant, error) {
	return s.setArchived(ctx, conversationID, self, false)
}

func (s *Service) setArchived(ctx context.Context, conversationID, self uuid.UUID, archived bool) (*models.Participant, error) {
	p, err := s.store.SetArchived(ctx, conversationID, self, archived, s.now())
	if err != nil {
		return nil, transient(err)
	}
	// Unknown conversations and non-members look the same to the caller.
	if p == nil {
		return nil, ErrNotFound
	}

	action := "unarchive"
	if archived {
		action = "archive"
	}
	metrics.ArchiveToggles.WithLabelValues(action).Inc()
	return p, nil
}
