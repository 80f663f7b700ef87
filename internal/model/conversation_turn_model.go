package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type ConversationTurn struct {
	Id              uuid.UUID         `gorm:"type:uuid;primaryKey"`
	SessionId       string            `gorm:"type:varchar(64);not null;index:idx_conversation_turns_partition,priority:2"`
	Model           string            `gorm:"type:varchar(64);not null;index:idx_conversation_turns_partition,priority:1"`
	UserMessage     string            `gorm:"type:text"`
	ChatbotResponse string            `gorm:"type:text"`
	Timestamp       time.Time         `gorm:"not null;index"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb"`
	Embedding       pgvector.Vector   `gorm:"type:vector(768)"` // nomic-embed-text / text-embedding-004 dimensionality
	CreatedAt       time.Time         `gorm:"autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime"`
}

func (ConversationTurn) TableName() string {
	return "conversation_turns"
}
