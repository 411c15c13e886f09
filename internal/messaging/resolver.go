package messaging

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/metrics"
	"github.com/eldtechnologies/inbox/internal/models"
	"github.com/eldtechnologies/inbox/internal/store"
)

// Resolve returns the conversation between self and other, creating it on
// first contact. If self had archived it, the archive is cleared.
//
// Two callers racing on first contact both get the same conversation: the
// loser of the insert re-reads the winner's row.
func (s *Service) Resolve(ctx context.Context, self, other uuid.UUID) (*models.Conversation, error) {
	if self == other {
		return nil, ErrInvalidOperation
	}

	target, err := s.store.GetIdentityByID(ctx, other)
	if err != nil {
		return nil, transient(err)
	}
	if target == nil {
		return nil, ErrNotFound
	}

	conv, err := s.store.FindConversationByPair(ctx, self, other)
	if err != nil {
		return nil, transient(err)
	}
	if conv != nil {
		if err := s.unarchiveOnContact(ctx, conv.ID, self); err != nil {
			return nil, err
		}
		return conv, nil
	}

	conv, err = s.store.CreateConversation(ctx, self, other, s.now())
	if errors.Is(err, store.ErrDuplicate) {
		metrics.ResolveConflicts.Inc()
		s.logger.Debug().
			Str("self", self.String()).
			Str("other", other.String()).
			Msg("conversation created concurrently, using existing")

		conv, err = s.store.FindConversationByPair(ctx, self, other)
		if err != nil {
			return nil, transient(err)
		}
		if conv == nil {
			return nil, transient(errors.New("conversation vanished after conflict"))
		}
		if err := s.unarchiveOnContact(ctx, conv.ID, self); err != nil {
			return nil, err
		}
		return conv, nil
	}
	if err != nil {
		return nil, transient(err)
	}

	metrics.ConversationsCreated.Inc()
	s.logger.Debug().
		Str("conversation", conv.ID.String()).
		Str("self", self.String()).
		Str("other", other.String()).
		Msg("conversation created")
	return conv, nil
}

func (s *Service) unarchiveOnContact(ctx context.Context, conversationID, self uuid.UUID) error {
	p, err := s.store.GetParticipant(ctx, conversationID, self)
	if err != nil {
		return transient(err)
	}
	if p == nil || !p.Archived() {
		return nil
	}
	if _, err := s.store.SetArchived(ctx, conversationID, self, false, s.now()); err != nil {
		return transient(err)
	}
	metrics.ArchiveToggles.WithLabelValues("unarchive").Inc()
	return nil
}
