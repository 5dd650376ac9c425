package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor types
const (
	ActorTypeUser    = "user"
	ActorTypeSystem  = "system"
	ActorTypeIndexer = "indexer"
)

// AuditLog records every state transition and saga step. EntityRef is a string
// so it can hold chain identifiers (job ids, escrow addresses) as well as local
// uuids.
type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	ActorRef   *string   `json:"actor_ref,omitempty"` // wallet address or "system"
	ActorType  string    `json:"actor_type"`          // user/system/indexer
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"` // job/application/escrow/checkpoint/saga
	EntityRef  string    `json:"entity_ref"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
