package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/repository/contract"

	"github.com/google/uuid"
)

// ConversationRepository is the in-process Conversation Store: a map
// guarded by an RWMutex with a brute-force cosine scan. Used by unit
// tests and local development without Postgres or Qdrant.
type ConversationRepository struct {
	mu    sync.RWMutex
	turns map[uuid.UUID]*entity.ConversationTurn
	order []uuid.UUID // insertion order, drives Scroll
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		turns: make(map[uuid.UUID]*entity.ConversationTurn),
	}
}

func (r *ConversationRepository) Upsert(ctx context.Context, turn *entity.ConversationTurn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *turn
	if _, exists := r.turns[turn.Id]; !exists {
		r.order = append(r.order, turn.Id)
	}
	r.turns[turn.Id] = &copied
	return nil
}

func (r *ConversationRepository) Search(ctx context.Context, embedding []float32, filter contract.TurnFilter, limit int) ([]*entity.ScoredConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 15
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var scored []*entity.ScoredConversationTurn
	for _, turn := range r.turns {
		if !matches(turn, filter) {
			continue
		}
		scored = append(scored, &entity.ScoredConversationTurn{
			Turn:       turn,
			Similarity: cosineSimilarity(embedding, turn.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (r *ConversationRepository) Scroll(ctx context.Context, filter contract.TurnFilter, limit int) ([]*entity.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entity.ConversationTurn
	for _, id := range r.order {
		turn := r.turns[id]
		if !matches(turn, filter) {
			continue
		}
		result = append(result, turn)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *ConversationRepository) Count(ctx context.Context, filter contract.TurnFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, turn := range r.turns {
		if matches(turn, filter) {
			count++
		}
	}
	return count, nil
}

func matches(turn *entity.ConversationTurn, filter contract.TurnFilter) bool {
	if turn.Model != filter.Model {
		return false
	}
	if filter.SessionId != "" && turn.SessionId != filter.SessionId {
		return false
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
