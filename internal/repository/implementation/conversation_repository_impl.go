package implementation

import (
	"context"
	"time"

	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/mapper"
	"mateo-memory-be/internal/model"
	"mateo-memory-be/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepositoryImpl persists turns in Postgres with pgvector.
// Cosine distance via the <=> operator; similarity = 1 - distance.
type ConversationRepositoryImpl struct {
	db      *gorm.DB
	mapper  *mapper.ConversationTurnMapper
	timeout time.Duration
}

func NewConversationRepository(db *gorm.DB, timeout time.Duration) contract.ConversationRepository {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ConversationRepositoryImpl{
		db:      db,
		mapper:  mapper.NewConversationTurnMapper(),
		timeout: timeout,
	}
}

func (r *ConversationRepositoryImpl) applyFilter(db *gorm.DB, filter contract.TurnFilter) *gorm.DB {
	db = db.Where("model = ?", filter.Model)
	if filter.SessionId != "" {
		db = db.Where("session_id = ?", filter.SessionId)
	}
	return db
}

func (r *ConversationRepositoryImpl) Upsert(ctx context.Context, turn *entity.ConversationTurn) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	m := r.mapper.ToModel(turn)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "model", "user_message", "chatbot_response",
				"timestamp", "metadata", "embedding", "updated_at",
			}),
		}).
		Create(m).Error
}

func (r *ConversationRepositoryImpl) Search(ctx context.Context, embedding []float32, filter contract.TurnFilter, limit int) ([]*entity.ScoredConversationTurn, error) {
	if limit <= 0 {
		limit = 15
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type row struct {
		model.ConversationTurn
		Similarity float64
	}
	var rows []row

	queryVector := pgvector.NewVector(embedding)

	query := r.db.WithContext(ctx).
		Table("conversation_turns").
		Select("conversation_turns.*, 1 - (embedding <=> ?) as similarity", queryVector)
	query = r.applyFilter(query, filter)

	err := query.
		Order("similarity DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredConversationTurn, len(rows))
	for i, res := range rows {
		scored[i] = &entity.ScoredConversationTurn{
			Turn:       r.mapper.ToEntity(&res.ConversationTurn),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}

func (r *ConversationRepositoryImpl) Scroll(ctx context.Context, filter contract.TurnFilter, limit int) ([]*entity.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var models []*model.ConversationTurn
	query := r.applyFilter(r.db.WithContext(ctx), filter)
	if err := query.Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ConversationRepositoryImpl) Count(ctx context.Context, filter contract.TurnFilter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	query := r.applyFilter(r.db.WithContext(ctx), filter)
	err := query.Model(&model.ConversationTurn{}).Count(&count).Error
	return count, err
}
