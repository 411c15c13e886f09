package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party messaging thread.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // last activity
}

// Participant tracks one identity's read cursor and archive state
// within a conversation.
type Participant struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	IdentityID     uuid.UUID  `json:"identity_id"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

// Archived reports whether the participant has hidden the conversation.
func (p *Participant) Archived() bool {
	return p.ArchivedAt != nil
}

// ConversationSummary is the list view of a conversation for one identity.
type ConversationSummary struct {
	ConversationID uuid.UUID  `json:"id"`
	OtherID        uuid.UUID  `json:"other_id"`
	OtherName      string     `json:"other_name"`
	LastMessage    *Message   `json:"last_message,omitempty"`
	UnreadCount    int        `json:"unread_count"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

// PairKey orders two identities so that (a, b) and (b, a) map to the same key.
func PairKey(a, b uuid.UUID) (low, high uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}
