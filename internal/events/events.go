// Package events publishes messaging events for downstream consumers such
// as the notification service.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/inbox/internal/models"
)

// Event types.
const (
	TypeMessageCreated   = "message.created"
	TypeConversationRead = "conversation.read"
)

// Event is the JSON envelope written to the events topic.
type Event struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	IdentityID     uuid.UUID       `json:"identity_id"`
	Message        *models.Message `json:"message,omitempty"`
	At             time.Time       `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
