package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"mateo-memory-be/internal/dto"
	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/pkg/logger"
	"mateo-memory-be/internal/repository/contract"
	memrepo "mateo-memory-be/internal/repository/memory"
	"mateo-memory-be/pkg/embedding"
	"mateo-memory-be/pkg/events"
	"mateo-memory-be/pkg/tokenizer"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const moduleMemoryService = "memory_service"

// Fixed sentinel strings. The caller (prompt assembly) receives one of
// these instead of an error: absence of history and failure to search
// are distinguishable but neither interrupts the chat flow.
const (
	NoConversationsFound = "No se encontraron conversaciones relevantes en la base de datos."
	SearchError          = "Error al buscar conversaciones en la base de datos."
)

// EventPublisher mirrors audit events to an external bus. Optional.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// IMemoryService is the conversational memory core: it persists turns
// with bounded retries and retrieves token-budgeted context.
//
// Reads degrade to sentinel strings and never propagate errors; writes
// fail loudly after the retry budget is exhausted. A missing read just
// costs context, a silently lost write loses a turn forever.
type IMemoryService interface {
	StoreConversation(ctx context.Context, request *dto.StoreConversationRequest) (*dto.StoreConversationResponse, error)
	SearchConversations(ctx context.Context, request *dto.SearchConversationsRequest) string
	GetLastConversation(ctx context.Context, model string, sessionId string) (string, string)
	GetConversationHistory(ctx context.Context, model string, sessionId string, limit int) []*dto.ConversationRecord
	GetConversationStats(ctx context.Context, model string) *dto.ConversationStatsResponse
	GetConversationData(ctx context.Context, model string, sessionId string, limit int) *dto.ConversationDataResponse
}

type MemoryPolicy struct {
	TokenBudget  int // ceiling for an assembled context string
	SearchLimit  int // default candidate set size
	HistoryLimit int
	StatsWindow  int // bounded scroll window for stats approximation
	RetryMax     int // total upsert attempts per write
}

func DefaultMemoryPolicy() MemoryPolicy {
	return MemoryPolicy{
		TokenBudget:  8100,
		SearchLimit:  15,
		HistoryLimit: 10,
		StatsWindow:  100,
		RetryMax:     3,
	}
}

type memoryService struct {
	repo         contract.ConversationRepository
	embedder     embedding.Provider
	counter      tokenizer.Counter
	statsRepo    *memrepo.StatsRepository
	pubSub       *gochannel.GoChannel
	topicName    string
	extPublisher EventPublisher
	sysLogger    logger.ILogger
	policy       MemoryPolicy
}

func NewMemoryService(
	repo contract.ConversationRepository,
	embedder embedding.Provider,
	counter tokenizer.Counter,
	statsRepo *memrepo.StatsRepository,
	pubSub *gochannel.GoChannel,
	topicName string,
	extPublisher EventPublisher,
	sysLogger logger.ILogger,
	policy MemoryPolicy,
) IMemoryService {
	if policy.TokenBudget <= 0 {
		policy = DefaultMemoryPolicy()
	}
	return &memoryService{
		repo:         repo,
		embedder:     embedder,
		counter:      counter,
		statsRepo:    statsRepo,
		pubSub:       pubSub,
		topicName:    topicName,
		extPublisher: extPublisher,
		sysLogger:    sysLogger,
		policy:       policy,
	}
}

// StoreConversation assembles the turn, embeds it and upserts with a
// bounded zero-delay retry. The timestamp is stamped here, UTC, at call
// time. Failure after the last attempt propagates to the caller.
func (s *memoryService) StoreConversation(ctx context.Context, request *dto.StoreConversationRequest) (*dto.StoreConversationResponse, error) {
	conversationId, err := resolveId(request.ConversationId)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation_id %q: %w", request.ConversationId, err)
	}
	sessionId := request.SessionId
	if sessionId == "" {
		sessionId = uuid.New().String()
	}

	textToEmbed := request.UserMessage + " " + request.ChatbotResponse
	vector, err := s.embedder.Generate(ctx, textToEmbed)
	if err != nil {
		s.sysLogger.Error(moduleMemoryService, "Failed to embed conversation", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
		return nil, fmt.Errorf("failed to embed conversation %s: %w", conversationId, err)
	}

	turn := &entity.ConversationTurn{
		Id:              conversationId,
		SessionId:       sessionId,
		Model:           request.Model,
		UserMessage:     request.UserMessage,
		ChatbotResponse: request.ChatbotResponse,
		Timestamp:       time.Now().UTC(),
		Metadata:        request.Metadata,
		Embedding:       vector,
	}

	var lastErr error
	for attempt := 1; attempt <= s.policy.RetryMax; attempt++ {
		if err := s.repo.Upsert(ctx, turn); err != nil {
			lastErr = err
			s.sysLogger.Warn(moduleMemoryService, fmt.Sprintf("Retry %d/%d: failed to store conversation", attempt, s.policy.RetryMax), map[string]interface{}{
				"conversation_id": conversationId.String(),
				"model":           request.Model,
				"session_id":      sessionId,
				"error":           err.Error(),
			})
			continue
		}

		s.sysLogger.Info(moduleMemoryService, "Stored conversation", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"model":           request.Model,
			"session_id":      sessionId,
		})
		s.publishStored(ctx, turn, attempt)

		return &dto.StoreConversationResponse{
			ConversationId: conversationId.String(),
			SessionId:      sessionId,
			Model:          request.Model,
		}, nil
	}

	s.sysLogger.Error(moduleMemoryService, "Failed to store conversation, retries exhausted", map[string]interface{}{
		"conversation_id": conversationId.String(),
		"attempts":        s.policy.RetryMax,
		"error":           lastErr.Error(),
	})
	return nil, fmt.Errorf("failed to store conversation %s after %d attempts: %w", conversationId, s.policy.RetryMax, lastErr)
}

// SearchConversations returns formatted context for the query, possibly
// across all sessions. Similarity picks the candidate set; recency
// (newest first) decides presentation order within it. The result is
// always a plain string: context, or one of the sentinels.
func (s *memoryService) SearchConversations(ctx context.Context, request *dto.SearchConversationsRequest) string {
	query := strings.ToLower(strings.TrimSpace(request.Query))

	vector, err := s.embedder.Generate(ctx, query)
	if err != nil {
		s.sysLogger.Error(moduleMemoryService, "Error embedding search query", map[string]interface{}{
			"model": request.Model,
			"error": err.Error(),
		})
		return SearchError
	}

	limit := request.Limit
	if limit <= 0 {
		limit = s.policy.SearchLimit
	}

	var scored []*entity.ScoredConversationTurn
	for _, filter := range s.filterChain(request.Model, request.SessionId, request.IncludeAllSessions) {
		scored, err = s.repo.Search(ctx, vector, filter, limit)
		if err != nil {
			s.sysLogger.Error(moduleMemoryService, "Error searching conversations", map[string]interface{}{
				"model":      request.Model,
				"session_id": filter.SessionId,
				"error":      err.Error(),
			})
			return SearchError
		}
		if len(scored) > 0 {
			break
		}
		if filter.SessionId != "" {
			s.sysLogger.Info(moduleMemoryService, "No conversations for session, retrying without session filter", map[string]interface{}{
				"model":      request.Model,
				"session_id": filter.SessionId,
			})
		}
	}

	if len(scored) == 0 {
		s.sysLogger.Warn(moduleMemoryService, "No conversations found", map[string]interface{}{
			"model": request.Model,
		})
		return NoConversationsFound
	}

	// Newest first; independent of the similarity order above.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Turn.Timestamp.After(scored[j].Turn.Timestamp)
	})

	totalTokens := 0
	var contextLines []string
	for _, result := range scored {
		block := s.formatContextBlock(result.Turn, request.SessionId)
		tokens := s.counter.Count(block)
		if totalTokens+tokens > s.policy.TokenBudget {
			s.sysLogger.Info(moduleMemoryService, "Token budget reached", map[string]interface{}{
				"used":   totalTokens,
				"budget": s.policy.TokenBudget,
			})
			break
		}
		contextLines = append(contextLines, block)
		totalTokens += tokens
	}

	context := strings.Join(contextLines, "")
	s.sysLogger.Info(moduleMemoryService, "Context retrieved", map[string]interface{}{
		"conversations": len(contextLines),
		"tokens":        totalTokens,
	})
	if context == "" {
		return NoConversationsFound
	}
	return context
}

// GetLastConversation returns the most recently scrolled turn's message
// pair for the partition, or an empty pair when nothing usable exists.
// A turn missing either side after trimming counts as absent.
func (s *memoryService) GetLastConversation(ctx context.Context, model string, sessionId string) (string, string) {
	turns, err := s.scrollWithFallback(ctx, model, sessionId, 1)
	if err != nil {
		s.sysLogger.Error(moduleMemoryService, "Error retrieving last conversation", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		return "", ""
	}
	if len(turns) == 0 {
		return "", ""
	}

	last := turns[0]
	if strings.TrimSpace(last.UserMessage) == "" || strings.TrimSpace(last.ChatbotResponse) == "" {
		s.sysLogger.Warn(moduleMemoryService, "Incomplete data in last conversation", map[string]interface{}{
			"model":           model,
			"conversation_id": last.Id.String(),
		})
		return "", ""
	}
	return last.UserMessage, last.ChatbotResponse
}

// GetConversationHistory returns raw turns in store scroll order (no
// recency re-sort) for display.
func (s *memoryService) GetConversationHistory(ctx context.Context, model string, sessionId string, limit int) []*dto.ConversationRecord {
	if limit <= 0 {
		limit = s.policy.HistoryLimit
	}

	turns, err := s.scrollWithFallback(ctx, model, sessionId, limit)
	if err != nil {
		s.sysLogger.Error(moduleMemoryService, "Error retrieving conversation history", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		return []*dto.ConversationRecord{}
	}

	history := make([]*dto.ConversationRecord, 0, len(turns))
	for _, turn := range turns {
		history = append(history, turnToRecord(turn))
	}
	return history
}

// GetConversationStats approximates totals over a bounded scroll window
// (StatsWindow turns at most) rather than a full-table count.
func (s *memoryService) GetConversationStats(ctx context.Context, model string) *dto.ConversationStatsResponse {
	stats := &dto.ConversationStatsResponse{}
	if s.statsRepo != nil {
		stats.RecentStores = s.statsRepo.StoredCount(model)
	}

	turns, err := s.repo.Scroll(ctx, contract.TurnFilter{Model: model}, s.policy.StatsWindow)
	if err != nil {
		s.sysLogger.Error(moduleMemoryService, "Error getting stats", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		return stats
	}

	sessions := make(map[string]struct{})
	for _, turn := range turns {
		if turn.SessionId != "" {
			sessions[turn.SessionId] = struct{}{}
		}
	}

	stats.TotalConversations = len(turns)
	stats.UniqueSessions = len(sessions)
	return stats
}

// GetConversationData bundles history, stats and a total in one call.
func (s *memoryService) GetConversationData(ctx context.Context, model string, sessionId string, limit int) *dto.ConversationDataResponse {
	conversations := s.GetConversationHistory(ctx, model, sessionId, limit)
	return &dto.ConversationDataResponse{
		Conversations:      conversations,
		Stats:              s.GetConversationStats(ctx, model),
		TotalConversations: len(conversations),
	}
}

// filterChain is the ordered list of progressively looser filters tried
// until one yields results: (model, session) first when a session is
// given and cross-session search was not requested, then model alone.
// The looser pass keeps a brand-new session from being starved of
// cross-session memory.
func (s *memoryService) filterChain(model string, sessionId string, includeAllSessions bool) []contract.TurnFilter {
	var filters []contract.TurnFilter
	if sessionId != "" && !includeAllSessions {
		filters = append(filters, contract.TurnFilter{Model: model, SessionId: sessionId})
	}
	filters = append(filters, contract.TurnFilter{Model: model})
	return filters
}

func (s *memoryService) scrollWithFallback(ctx context.Context, model string, sessionId string, limit int) ([]*entity.ConversationTurn, error) {
	var turns []*entity.ConversationTurn
	var err error
	for _, filter := range s.filterChain(model, sessionId, false) {
		turns, err = s.repo.Scroll(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		if len(turns) > 0 {
			return turns, nil
		}
	}
	return turns, nil
}

func (s *memoryService) formatContextBlock(turn *entity.ConversationTurn, currentSessionId string) string {
	sessionTag := "🔹 [SESIÓN ACTUAL]"
	if turn.SessionId != currentSessionId {
		sessionTag = fmt.Sprintf("🔸 [SESIÓN %s]", shorten(turn.SessionId, 8))
	}

	timestamp := turn.Timestamp.UTC().Format("2006-01-02T15:04:05")

	return fmt.Sprintf(
		"---\n%s\n👤 **Usuario:** %s\n🤖 **MATEO:** %s\n📅 **Fecha:** %s\n",
		sessionTag,
		turn.UserMessage,
		turn.ChatbotResponse,
		timestamp,
	)
}

// publishStored pushes the audit event to the in-process bus and, when
// configured, to NATS. Best effort on both: a lost audit event must not
// fail a confirmed write.
func (s *memoryService) publishStored(ctx context.Context, turn *entity.ConversationTurn, attempts int) {
	occurredAt := time.Now().UTC()

	if s.pubSub != nil {
		payload, err := json.Marshal(dto.PublishConversationStoredMessage{
			ConversationId: turn.Id.String(),
			SessionId:      turn.SessionId,
			Model:          turn.Model,
			Attempts:       attempts,
			OccurredAt:     occurredAt.Format(time.RFC3339),
		})
		if err == nil {
			msg := message.NewMessage(watermill.NewUUID(), payload)
			if err := s.pubSub.Publish(s.topicName, msg); err != nil {
				s.sysLogger.Warn(moduleMemoryService, "Failed to publish stored event", map[string]interface{}{
					"conversation_id": turn.Id.String(),
					"error":           err.Error(),
				})
			}
		}
	}

	if s.extPublisher != nil {
		event := events.ConversationStored{
			ConversationId: turn.Id.String(),
			SessionId:      turn.SessionId,
			Model:          turn.Model,
			Attempts:       attempts,
			OccurredAt:     occurredAt,
		}
		if err := s.extPublisher.Publish(ctx, event); err != nil {
			s.sysLogger.Warn(moduleMemoryService, "Failed to publish stored event to NATS", map[string]interface{}{
				"conversation_id": turn.Id.String(),
				"error":           err.Error(),
			})
		}
	}
}

func resolveId(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func turnToRecord(turn *entity.ConversationTurn) *dto.ConversationRecord {
	return &dto.ConversationRecord{
		ConversationId:  turn.Id.String(),
		SessionId:       turn.SessionId,
		UserMessage:     turn.UserMessage,
		ChatbotResponse: turn.ChatbotResponse,
		Timestamp:       turn.Timestamp.UTC().Format(time.RFC3339),
		Model:           turn.Model,
		Metadata:        turn.Metadata,
	}
}
