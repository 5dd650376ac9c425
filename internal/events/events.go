package events

import "context"

// Event types
const (
	EventListingCreated       = "listing_created"
	EventListingDeactivated   = "listing_deactivated"
	EventApplicationSubmitted = "application_submitted"
	EventApplicationApproved  = "application_approved"
	EventEscrowFunded         = "escrow_funded"
	EventCheckpointSubmitted  = "checkpoint_submitted"
	EventCheckpointApproved   = "checkpoint_approved"
	EventCheckpointRejected   = "checkpoint_rejected"
	EventJobCancelled         = "job_cancelled"
)

// StreamJobs carries every job lifecycle event for websocket fanout.
const StreamJobs = "events:jobs"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
