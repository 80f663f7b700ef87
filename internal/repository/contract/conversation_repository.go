package contract

import (
	"context"

	"mateo-memory-be/internal/entity"
)

// TurnFilter is a conjunction of exact-match conditions. Model is always
// set; SessionId narrows the partition further when non-empty.
type TurnFilter struct {
	Model     string
	SessionId string
}

// ConversationRepository is the Conversation Store contract: a filterable
// nearest-neighbor index over stored turns.
//
// Upsert must be confirmed before returning (no fire-and-forget) because
// the write path retries on the assumption that a failed call did not
// persist. Search orders by similarity descending; Scroll preserves
// store order and makes no similarity claim.
type ConversationRepository interface {
	Upsert(ctx context.Context, turn *entity.ConversationTurn) error
	Search(ctx context.Context, embedding []float32, filter TurnFilter, limit int) ([]*entity.ScoredConversationTurn, error)
	Scroll(ctx context.Context, filter TurnFilter, limit int) ([]*entity.ConversationTurn, error)
	Count(ctx context.Context, filter TurnFilter) (int64, error)
}
