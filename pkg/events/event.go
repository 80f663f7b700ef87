package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CONVERSATION_STORED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const TypeConversationStored = "CONVERSATION_STORED"

// ConversationStored is emitted after a turn upsert has been confirmed
// by the store. Consumers use it for audit counters; it carries ids and
// the partition, never message bodies.
type ConversationStored struct {
	ConversationId string
	SessionId      string
	Model          string
	Attempts       int
	OccurredAt     time.Time
}

func (e ConversationStored) EventType() string {
	return TypeConversationStored
}

func (e ConversationStored) Payload() map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": e.ConversationId,
		"session_id":      e.SessionId,
		"model":           e.Model,
		"attempts":        e.Attempts,
		"occurred_at":     e.OccurredAt.UTC().Format(time.RFC3339),
	}
}

func (e ConversationStored) Timestamp() time.Time {
	return e.OccurredAt
}
