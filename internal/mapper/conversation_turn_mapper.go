package mapper

import (
	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ConversationTurnMapper struct{}

func NewConversationTurnMapper() *ConversationTurnMapper {
	return &ConversationTurnMapper{}
}

func (m *ConversationTurnMapper) ToEntity(t *model.ConversationTurn) *entity.ConversationTurn {
	if t == nil {
		return nil
	}

	var metadata map[string]interface{}
	if t.Metadata != nil {
		metadata = map[string]interface{}(t.Metadata)
	}

	return &entity.ConversationTurn{
		Id:              t.Id,
		SessionId:       t.SessionId,
		Model:           t.Model,
		UserMessage:     t.UserMessage,
		ChatbotResponse: t.ChatbotResponse,
		Timestamp:       t.Timestamp,
		Metadata:        metadata,
		Embedding:       t.Embedding.Slice(),
	}
}

func (m *ConversationTurnMapper) ToModel(t *entity.ConversationTurn) *model.ConversationTurn {
	if t == nil {
		return nil
	}

	var metadata datatypes.JSONMap
	if t.Metadata != nil {
		metadata = datatypes.JSONMap(t.Metadata)
	}

	return &model.ConversationTurn{
		Id:              t.Id,
		SessionId:       t.SessionId,
		Model:           t.Model,
		UserMessage:     t.UserMessage,
		ChatbotResponse: t.ChatbotResponse,
		Timestamp:       t.Timestamp,
		Metadata:        metadata,
		Embedding:       pgvector.NewVector(t.Embedding),
	}
}

func (m *ConversationTurnMapper) ToEntities(turns []*model.ConversationTurn) []*entity.ConversationTurn {
	entities := make([]*entity.ConversationTurn, len(turns))
	for i, t := range turns {
		entities[i] = m.ToEntity(t)
	}
	return entities
}
