package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/model"
	"mateo-memory-be/internal/repository/contract"
	"mateo-memory-be/internal/repository/implementation"
	"mateo-memory-be/pkg/database"
	"mateo-memory-be/pkg/embedding"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgvectorRoundTrip(t *testing.T) {
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	require.NoError(t, gormDB.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error)
	require.NoError(t, gormDB.AutoMigrate(&model.ConversationTurn{}))

	repo := implementation.NewConversationRepository(gormDB, 30*time.Second)
	embedder := embedding.NewHashProvider(768)
	ctx := context.Background()

	sessionId := uuid.New().String()
	vec, err := embedder.Generate(ctx, "prueba de integracion pgvector")
	require.NoError(t, err)

	turn := &entity.ConversationTurn{
		Id:              uuid.New(),
		SessionId:       sessionId,
		Model:           "integration-test",
		UserMessage:     "prueba de integracion",
		ChatbotResponse: "respuesta de prueba",
		Timestamp:       time.Now().UTC(),
		Metadata:        map[string]interface{}{"suite": "pgvector"},
		Embedding:       vec,
	}
	require.NoError(t, repo.Upsert(ctx, turn))
	defer gormDB.Exec(`DELETE FROM conversation_turns WHERE session_id = ?`, sessionId)

	t.Run("Search finds the stored turn", func(t *testing.T) {
		scored, err := repo.Search(ctx, vec, contract.TurnFilter{Model: "integration-test", SessionId: sessionId}, 5)
		require.NoError(t, err)
		require.NotEmpty(t, scored)
		assert.Equal(t, turn.Id, scored[0].Turn.Id)
		assert.InDelta(t, 1.0, scored[0].Similarity, 1e-3)
	})

	t.Run("Scroll and Count see the turn", func(t *testing.T) {
		turns, err := repo.Scroll(ctx, contract.TurnFilter{Model: "integration-test", SessionId: sessionId}, 10)
		require.NoError(t, err)
		assert.Len(t, turns, 1)

		count, err := repo.Count(ctx, contract.TurnFilter{Model: "integration-test", SessionId: sessionId})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Upsert overwrites on conflict", func(t *testing.T) {
		turn.ChatbotResponse = "respuesta corregida"
		require.NoError(t, repo.Upsert(ctx, turn))

		turns, err := repo.Scroll(ctx, contract.TurnFilter{Model: "integration-test", SessionId: sessionId}, 10)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "respuesta corregida", turns[0].ChatbotResponse)
	})
}
