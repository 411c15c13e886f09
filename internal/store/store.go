package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("store: duplicate record")

// DefaultMessageLimit is used when a caller passes a non-positive limit.
const DefaultMessageLimit = 50

// DataStore defines the interface for persistent storage of identities,
// conversations, participants and messages.
// Both PostgresStore and SQLiteStore implement this interface.
//
// Lookups return (nil, nil) when the record does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Identity operations
	CreateIdentity(ctx context.Context, publicKey, name string) (*models.Identity, error)
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetIdentityByPublicKey(ctx context.Context, publicKey string) (*models.Identity, error)

	// Conversation operations
	FindConversationByPair(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error)
	// CreateConversation creates a conversation and both participant rows
	// atomically. Returns ErrDuplicate if the pair already has one.
	CreateConversation(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetParticipant(ctx context.Context, conversationID, identityID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error)
	// SetArchived sets (keeping an existing timestamp) or clears archived_at.
	SetArchived(ctx context.Context, conversationID, identityID uuid.UUID, archived bool, now time.Time) (*models.Participant, error)
	// AdvanceReadCursor moves last_read_at forward to max(cursor, now,
	// latest message). It never moves backwards. It serialises with
	// InsertMessage on the conversation.
	AdvanceReadCursor(ctx context.Context, conversationID, identityID uuid.UUID, now time.Time) (*models.Participant, error)
	ListSummaries(ctx context.Context, identityID uuid.UUID, archived bool) ([]models.ConversationSummary, error)

	// Message operations
	// InsertMessage appends a message with a created_at strictly after the
	// conversation's previous message and after every participant's read
	// cursor, and bumps the conversation's updated_at. A non-empty
	// correlationID already used by the sender in the conversation yields
	// ErrDuplicate.
	InsertMessage(ctx context.Context, conversationID, senderID uuid.UUID, content, correlationID string, now time.Time) (*models.Message, error)
	GetMessageByCorrelation(ctx context.Context, conversationID, senderID uuid.UUID, correlationID string) (*models.Message, error)
	// ListMessages returns up to limit messages older than beforeID (or the
	// newest when beforeID is empty) in ascending created_at order.
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int, beforeID string) ([]models.Message, error)
	CountUnread(ctx context.Context, conversationID, identityID uuid.UUID) (int, error)
	CountUnreadTotal(ctx context.Context, identityID uuid.UUID) (int, error)
}

// nextMessageTime returns the created_at for a new message. It is strictly
// after the previous message and after the furthest read cursor, so a
// message stored after a read is always counted as unread, whatever the
// clock of the reader said.
func nextMessageTime(now time.Time, last, cursor *time.Time) time.Time {
	at := now.UTC().Truncate(time.Microsecond)
	for _, floor := range []*time.Time{last, cursor} {
		if floor != nil && !at.After(*floor) {
			at = floor.UTC().Add(time.Microsecond)
		}
	}
	return at
}

// readCursorTime returns the cursor value a read should write.
func readCursorTime(now time.Time, latest *time.Time) time.Time {
	at := now.UTC().Truncate(time.Microsecond)
	if latest != nil && latest.After(at) {
		at = latest.UTC()
	}
	return at
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	return limit
}
