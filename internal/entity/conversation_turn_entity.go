package entity

import (
	"time"

	"github.com/google/uuid"
)

// ConversationTurn is one stored user/assistant exchange.
// Model acts as a partition key: two assistant backends never share
// context unless a search explicitly spans sessions within one model.
type ConversationTurn struct {
	Id              uuid.UUID
	SessionId       string
	Model           string
	UserMessage     string
	ChatbotResponse string
	Timestamp       time.Time // assigned at write time, UTC
	Metadata        map[string]interface{}
	Embedding       []float32
}

// ScoredConversationTurn pairs a turn with its cosine similarity
// against the query vector that produced it.
type ScoredConversationTurn struct {
	Turn       *ConversationTurn
	Similarity float64
}

// ConversationStats summarizes stored turns for one model partition.
// Counts are approximations over a bounded scroll window, not a full
// table scan.
type ConversationStats struct {
	TotalConversations int
	UniqueSessions     int
}
