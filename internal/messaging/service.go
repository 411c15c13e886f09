// Package messaging implements two-party conversations: resolving the
// conversation for a pair of identities, sending messages, tracking read
// state and per-participant archiving.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inbox/internal/config"
	"github.com/eldtechnologies/inbox/internal/events"
	"github.com/eldtechnologies/inbox/internal/metrics"
	"github.com/eldtechnologies/inbox/internal/models"
	"github.com/eldtechnologies/inbox/internal/store"
)

// Names resolves display names. directory.Directory implements it.
type Names interface {
	DisplayName(ctx context.Context, id uuid.UUID) string
	// DisplayNames resolves each distinct id once.
	DisplayNames(ctx context.Context, ids ...uuid.UUID) map[uuid.UUID]string
}

// Service is the messaging core. It holds no mutable state of its own;
// every operation is a single store transaction.
type Service struct {
	store     store.DataStore
	names     Names
	publisher events.Publisher
	logger    zerolog.Logger
	maxLength int
	now       func() time.Time
}

// NewService creates a Service. A nil publisher disables events.
func NewService(ds store.DataStore, names Names, publisher events.Publisher, logger zerolog.Logger, maxLength int) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if maxLength <= 0 {
		maxLength = config.DefaultMaxMessageLength
	}
	return &Service{
		store:     ds,
		names:     names,
		publisher: publisher,
		logger:    logger,
		maxLength: maxLength,
		now:       time.Now,
	}
}

// MaxMessageLength returns the configured content limit in runes.
func (s *Service) MaxMessageLength() int {
	return s.maxLength
}

// participant loads the caller's participant row, mapping a missing
// conversation to ErrNotFound and a non-member to ErrForbidden.
func (s *Service) participant(ctx context.Context, conversationID, self uuid.UUID) (*models.Participant, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, transient(err)
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	p, err := s.store.GetParticipant(ctx, conversationID, self)
	if err != nil {
		return nil, transient(err)
	}
	if p == nil {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.WithLabelValues(ev.Type).Inc()
		s.logger.Warn().
			Err(err).
			Str("type", ev.Type).
			Str("conversation", ev.ConversationID.String()).
			Msg("event publish failed")
	}
}
