package models

import (
	"time"

	"github.com/google/uuid"
)

// UnknownSender is the display name used when a sender no longer resolves.
const UnknownSender = "unknown"

// Message is an immutable message within a conversation.
type Message struct {
	ID             string    `json:"id"` // ULID
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Content        string    `json:"content"`
	CorrelationID  string    `json:"correlation_id,omitempty"` // sender-chosen, unique per sender and conversation
	CreatedAt      time.Time `json:"created_at"`
}
