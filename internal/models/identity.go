package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity represents a registered messaging identity.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	PublicKey string    `json:"public_key"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
