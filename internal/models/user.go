package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a wallet identity that has authenticated against the API at least
// once. Roles (client/freelancer) are per-job, recorded on listings and escrow
// units, not on the user.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Address      string     `json:"address"` // EIP-55 checksummed
	DisplayName  *string    `json:"display_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}
