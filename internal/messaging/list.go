package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/models"
)

// List returns self's conversations, most recently active first. With
// archived set it returns the archived ones instead.
func (s *Service) List(ctx context.Context, self uuid.UUID, archived bool) ([]models.ConversationSummary, error) {
	summaries, err := s.store.ListSummaries(ctx, self, archived)
	if err != nil {
		return nil, transient(err)
	}

	ids := make([]uuid.UUID, 0, 2*len(summaries))
	for _, sum := range summaries {
		ids = append(ids, sum.OtherID)
		if sum.LastMessage != nil {
			ids = append(ids, sum.LastMessage.SenderID)
		}
	}
	names := s.names.DisplayNames(ctx, ids...)

	for i := range summaries {
		sum := &summaries[i]
		sum.OtherName = names[sum.OtherID]
		if sum.LastMessage != nil {
			sum.LastMessage.SenderName = names[sum.LastMessage.SenderID]
		}
	}
	return summaries, nil
}
