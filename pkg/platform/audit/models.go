package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is emitted after a registry mutation commits. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	// Subject names the record acted on, e.g. "nft:12" or "series:genesis".
	Subject string `json:"subject"`
	// ActorID is the account that issued the call when the host resolved one.
	ActorID string `json:"actor_id,omitempty"`
	// Owner is the NFT or series owner after the action.
	Owner     string `json:"owner,omitempty"`
	SeriesID  string `json:"series_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventNFTCreated      AuditEvent = "nft_created"
	EventNFTLocked       AuditEvent = "nft_locked"
	EventNFTUnlocked     AuditEvent = "nft_unlocked"
	EventNFTOwnerChanged AuditEvent = "nft_owner_changed"
	EventSeriesCreated   AuditEvent = "series_created"
	EventSeriesFinished  AuditEvent = "series_finished"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can be queried back.
type Lister interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
