package dto

// StoreConversationRequest persists one user/assistant exchange.
// ConversationId and SessionId are synthesized when absent, matching
// what the chat routes of the original backend did for new sessions.
type StoreConversationRequest struct {
	ConversationId  string                 `json:"conversation_id"`
	SessionId       string                 `json:"session_id"`
	UserMessage     string                 `json:"user_message" validate:"required"`
	ChatbotResponse string                 `json:"chatbot_response" validate:"required"`
	Model           string                 `json:"model" validate:"required"`
	Metadata        map[string]interface{} `json:"metadata"`
}

type StoreConversationResponse struct {
	ConversationId string `json:"conversation_id"`
	SessionId      string `json:"session_id"`
	Model          string `json:"model"`
}

type SearchConversationsRequest struct {
	Query              string `json:"query" validate:"required"`
	Model              string `json:"model" validate:"required"`
	SessionId          string `json:"session_id"`
	Limit              int    `json:"limit"`
	IncludeAllSessions bool   `json:"include_all_sessions"`
}

type SearchConversationsResponse struct {
	Context string `json:"context"`
}

type LastConversationResponse struct {
	UserMessage     string `json:"user_message"`
	ChatbotResponse string `json:"chatbot_response"`
}

type ConversationRecord struct {
	ConversationId  string                 `json:"conversation_id"`
	SessionId       string                 `json:"session_id"`
	UserMessage     string                 `json:"user_message"`
	ChatbotResponse string                 `json:"chatbot_response"`
	Timestamp       string                 `json:"timestamp"`
	Model           string                 `json:"model"`
	Metadata        map[string]interface{} `json:"metadata"`
}

type ConversationStatsResponse struct {
	TotalConversations int   `json:"total_conversations"`
	UniqueSessions     int   `json:"unique_sessions"`
	RecentStores       int64 `json:"recent_stores"`
}

type ConversationDataResponse struct {
	Conversations      []*ConversationRecord      `json:"conversations"`
	Stats              *ConversationStatsResponse `json:"stats"`
	TotalConversations int                        `json:"total_conversations"`
}

// PublishConversationStoredMessage is the watermill payload consumed by
// the audit consumer.
type PublishConversationStoredMessage struct {
	ConversationId string `json:"conversation_id"`
	SessionId      string `json:"session_id"`
	Model          string `json:"model"`
	Attempts       int    `json:"attempts"`
	OccurredAt     string `json:"occurred_at"`
}
