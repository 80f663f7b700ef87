package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mateo-memory-be/internal/dto"
	"mateo-memory-be/internal/entity"
	"mateo-memory-be/internal/pkg/logger"
	"mateo-memory-be/internal/repository/contract"
	memrepo "mateo-memory-be/internal/repository/memory"
	"mateo-memory-be/pkg/embedding"
	"mateo-memory-be/pkg/tokenizer"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo contract.ConversationRepository, policy MemoryPolicy) IMemoryService {
	return NewMemoryService(
		repo,
		embedding.NewHashProvider(64),
		tokenizer.NewHeuristicCounter(),
		memrepo.NewStatsRepository(),
		nil, // no in-process bus in unit tests
		"",
		nil,
		logger.NewNopLogger(),
		policy,
	)
}

// failingRepository fails the first N Upserts, then delegates to an
// in-process store. N < 0 means fail forever.
type failingRepository struct {
	*memrepo.ConversationRepository
	failures    int
	upsertCalls int
}

func (r *failingRepository) Upsert(ctx context.Context, turn *entity.ConversationTurn) error {
	r.upsertCalls++
	if r.failures < 0 || r.upsertCalls <= r.failures {
		return errors.New("connection refused")
	}
	return r.ConversationRepository.Upsert(ctx, turn)
}

// searchErrorRepository fails every read.
type searchErrorRepository struct {
	*memrepo.ConversationRepository
}

func (r *searchErrorRepository) Search(ctx context.Context, embedding []float32, filter contract.TurnFilter, limit int) ([]*entity.ScoredConversationTurn, error) {
	return nil, errors.New("deadline exceeded")
}

// failingEmbedder always errors out.
type failingEmbedder struct{}

func (failingEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model not loaded")
}

func (failingEmbedder) Dimensions() int { return 64 }

func storeTurn(t *testing.T, svc IMemoryService, sessionId, model, userMessage, chatbotResponse string) *dto.StoreConversationResponse {
	t.Helper()
	resp, err := svc.StoreConversation(context.Background(), &dto.StoreConversationRequest{
		SessionId:       sessionId,
		Model:           model,
		UserMessage:     userMessage,
		ChatbotResponse: chatbotResponse,
	})
	require.NoError(t, err)
	return resp
}

func TestStoreConversationRoundTrip(t *testing.T) {
	repo := memrepo.NewConversationRepository()
	svc := newTestService(repo, DefaultMemoryPolicy())

	resp := storeTurn(t, svc, "sess-1", "openai", "hola, como configuro el firewall?", "Para configurar el firewall debes abrir el puerto 443.")

	assert.Equal(t, "sess-1", resp.SessionId)
	assert.Equal(t, "openai", resp.Model)
	_, err := uuid.Parse(resp.ConversationId)
	assert.NoError(t, err, "synthesized conversation id must be a valid UUID")

	user, bot := svc.GetLastConversation(context.Background(), "openai", "sess-1")
	assert.Equal(t, "hola, como configuro el firewall?", user)
	assert.Equal(t, "Para configurar el firewall debes abrir el puerto 443.", bot)
}

func TestStoreConversationSynthesizesSession(t *testing.T) {
	repo := memrepo.NewConversationRepository()
	svc := newTestService(repo, DefaultMemoryPolicy())

	resp := storeTurn(t, svc, "", "openai", "pregunta", "respuesta")

	_, err := uuid.Parse(resp.SessionId)
	assert.NoError(t, err, "missing session id must be synthesized as a UUID")
}

func TestStoreConversationRejectsBadId(t *testing.T) {
	repo := memrepo.NewConversationRepository()
	svc := newTestService(repo, DefaultMemoryPolicy())

	_, err := svc.StoreConversation(context.Background(), &dto.StoreConversationRequest{
		ConversationId:  "not-a-uuid",
		Model:           "openai",
		UserMessage:     "q",
		ChatbotResponse: "a",
	})
	assert.Error(t, err)

	count, err := repo.Count(context.Background(), contract.TurnFilter{Model: "openai"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestStoreConversationOverwriteSameId(t *testing.T) {
	repo := memrepo.NewConversationRepository()
	svc := newTestService(repo, DefaultMemoryPolicy())

	id := uuid.New().String()
	_, err := svc.StoreConversation(context.Background(), &dto.StoreConversationRequest{
		ConversationId:  id,
		SessionId:       "sess-1",
		Model:           "openai",
		UserMessage:     "primera version",
		ChatbotResponse: "respuesta vieja",
	})
	require.NoError(t, err)

	_, err = svc.StoreConversation(context.Background(), &dto.StoreConversationRequest{
		ConversationId:  id,
		SessionId:       "sess-1",
		Model:           "openai",
		UserMessage:     "primera version",
		ChatbotResponse: "respuesta nueva",
	})
	require.NoError(t, err)

	count, err := repo.Count(context.Background(), contract.TurnFilter{Model: "openai"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "same id must overwrite, not duplicate")

	_, bot := svc.GetLastConversation(context.Background(), "openai", "sess-1")
	assert.Equal(t, "respuesta nueva", bot)
}

func TestStoreConversationRetriesTransientFailure(t *testing.T) {
	repo := &failingRepository{ConversationRepository: memrepo.NewConversationRepository(), failures: 2}
	svc := newTestService(repo, DefaultMemoryPolicy())

	storeTurn(t, svc, "sess-1", "openai", "pregunta", "respuesta")

	assert.Equal(t, 3, repo.upsertCalls)
	count, err := repo.Count(context.Background(), contract.TurnFilter{Model: "openai"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStoreConversationRetryBudgetExhausted(t *testing.T) {
	repo := &failingRepository{ConversationRepository: memrepo.NewConversationRepository(), failures: -1}
	svc := newTestService(repo, DefaultMemoryPolicy())

	_, err := svc.StoreConversation(context.Background(), &dto.StoreConversationRequest{
		SessionId:       "sess-1",
		Model:           "openai",
		UserMessage:     "pregunta",
		ChatbotResponse: "respuesta",
	})

	assert.Error(t, err)
	assert.Equal(t, 3, repo.upsertCalls, "exactly RetryMax attempts, no more")
}

func TestSearchConversationsEmptyStore(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query: "firewall",
		Model: "openai",
	})

	assert.Equal(t, NoConversationsFound, result)
}

func TestSearchConversationsReturnsContext(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	storeTurn(t, svc, "sess-1", "openai", "que es el phishing?", "El phishing es una tecnica de suplantacion de identidad.")
	storeTurn(t, svc, "sess-1", "openai", "cual es la capital de francia?", "La capital de Francia es Paris.")

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query:     "Phishing",
		Model:     "openai",
		SessionId: "sess-1",
	})

	assert.Contains(t, result, "que es el phishing?")
	assert.Contains(t, result, "🔹 [SESIÓN ACTUAL]")
	assert.Contains(t, result, "👤 **Usuario:**")
	assert.Contains(t, result, "🤖 **MATEO:**")
	assert.Contains(t, result, "📅 **Fecha:**")
}

func TestSearchConversationsSessionFallback(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	storeTurn(t, svc, "session-abcdef", "openai", "que es el phishing?", "Una tecnica de suplantacion.")

	// The requested session has no turns, so the search is retried
	// across all sessions of the model.
	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query:     "phishing",
		Model:     "openai",
		SessionId: "session-nueva",
	})

	assert.Contains(t, result, "que es el phishing?")
	assert.Contains(t, result, "🔸 [SESIÓN session-]", "cross-session blocks carry the shortened session tag")
}

func TestSearchConversationsModelIsolation(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	storeTurn(t, svc, "sess-1", "gemini", "que es el phishing?", "Una tecnica de suplantacion.")

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query: "phishing",
		Model: "openai",
	})

	assert.Equal(t, NoConversationsFound, result, "turns of other models must stay invisible")
}

func TestSearchConversationsNewestFirst(t *testing.T) {
	repo := memrepo.NewConversationRepository()
	svc := newTestService(repo, DefaultMemoryPolicy())
	embedder := embedding.NewHashProvider(64)

	older, err := embedder.Generate(context.Background(), "tema respuesta vieja")
	require.NoError(t, err)
	newer, err := embedder.Generate(context.Background(), "tema respuesta nueva")
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(context.Background(), &entity.ConversationTurn{
		Id: uuid.New(), SessionId: "sess-1", Model: "openai",
		UserMessage: "tema", ChatbotResponse: "respuesta vieja",
		Timestamp: base, Embedding: older,
	}))
	require.NoError(t, repo.Upsert(context.Background(), &entity.ConversationTurn{
		Id: uuid.New(), SessionId: "sess-1", Model: "openai",
		UserMessage: "tema", ChatbotResponse: "respuesta nueva",
		Timestamp: base.Add(time.Hour), Embedding: newer,
	}))

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query:     "tema",
		Model:     "openai",
		SessionId: "sess-1",
	})

	newerIdx := strings.Index(result, "respuesta nueva")
	olderIdx := strings.Index(result, "respuesta vieja")
	require.GreaterOrEqual(t, newerIdx, 0)
	require.GreaterOrEqual(t, olderIdx, 0)
	assert.Less(t, newerIdx, olderIdx, "newest turn must be presented first")
}

func TestSearchConversationsTokenBudget(t *testing.T) {
	policy := DefaultMemoryPolicy()
	policy.TokenBudget = 100
	svc := newTestService(memrepo.NewConversationRepository(), policy)
	counter := tokenizer.NewHeuristicCounter()

	for i := 0; i < 5; i++ {
		storeTurn(t, svc, "sess-1", "openai",
			"cuentame mas sobre la seguridad de las contraseñas y los gestores",
			"Las contraseñas largas y unicas son la base, un gestor las hace practicables.")
	}

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query:     "seguridad contraseñas",
		Model:     "openai",
		SessionId: "sess-1",
	})

	require.NotEqual(t, NoConversationsFound, result)
	assert.LessOrEqual(t, counter.Count(result), policy.TokenBudget, "assembled context must stay under the budget")

	blocks := strings.Count(result, "---\n")
	assert.Greater(t, blocks, 0)
	assert.Less(t, blocks, 5, "budget must cut the candidate set")
	// Whole blocks only: every block header has its message lines.
	assert.Equal(t, blocks, strings.Count(result, "👤 **Usuario:**"))
	assert.Equal(t, blocks, strings.Count(result, "📅 **Fecha:**"))
}

func TestSearchConversationsRepositoryError(t *testing.T) {
	repo := &searchErrorRepository{ConversationRepository: memrepo.NewConversationRepository()}
	svc := newTestService(repo, DefaultMemoryPolicy())

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query: "firewall",
		Model: "openai",
	})

	assert.Equal(t, SearchError, result)
}

func TestSearchConversationsEmbeddingError(t *testing.T) {
	svc := NewMemoryService(
		memrepo.NewConversationRepository(),
		failingEmbedder{},
		tokenizer.NewHeuristicCounter(),
		nil,
		nil,
		"",
		nil,
		logger.NewNopLogger(),
		DefaultMemoryPolicy(),
	)

	result := svc.SearchConversations(context.Background(), &dto.SearchConversationsRequest{
		Query: "firewall",
		Model: "openai",
	})

	assert.Equal(t, SearchError, result)
}

func TestGetLastConversationIncompletePair(t *testing.T) {
	repo := memrepo.NewConversationRepository()
	svc := newTestService(repo, DefaultMemoryPolicy())

	require.NoError(t, repo.Upsert(context.Background(), &entity.ConversationTurn{
		Id: uuid.New(), SessionId: "sess-1", Model: "openai",
		UserMessage: "pregunta", ChatbotResponse: "   ",
		Timestamp: time.Now().UTC(), Embedding: make([]float32, 64),
	}))

	user, bot := svc.GetLastConversation(context.Background(), "openai", "sess-1")
	assert.Empty(t, user, "a turn missing either side counts as absent")
	assert.Empty(t, bot)
}

func TestGetLastConversationEmptyStore(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	user, bot := svc.GetLastConversation(context.Background(), "openai", "sess-1")
	assert.Empty(t, user)
	assert.Empty(t, bot)
}

func TestGetConversationHistoryLimitAndFallback(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	for i := 0; i < 4; i++ {
		storeTurn(t, svc, "sess-1", "openai", "pregunta", "respuesta")
	}

	history := svc.GetConversationHistory(context.Background(), "openai", "sess-1", 2)
	assert.Len(t, history, 2)

	// Unknown session falls back to the whole model partition.
	history = svc.GetConversationHistory(context.Background(), "openai", "sess-desconocida", 0)
	assert.Len(t, history, 4)

	history = svc.GetConversationHistory(context.Background(), "mistral", "", 0)
	assert.Empty(t, history)
}

func TestGetConversationStats(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	storeTurn(t, svc, "sess-1", "openai", "a", "b")
	storeTurn(t, svc, "sess-1", "openai", "c", "d")
	storeTurn(t, svc, "sess-2", "openai", "e", "f")

	stats := svc.GetConversationStats(context.Background(), "openai")
	assert.Equal(t, 3, stats.TotalConversations)
	assert.Equal(t, 2, stats.UniqueSessions)
}

func TestGetConversationData(t *testing.T) {
	svc := newTestService(memrepo.NewConversationRepository(), DefaultMemoryPolicy())

	storeTurn(t, svc, "sess-1", "openai", "pregunta", "respuesta")

	data := svc.GetConversationData(context.Background(), "openai", "sess-1", 0)
	require.NotNil(t, data)
	assert.Equal(t, 1, data.TotalConversations)
	assert.Len(t, data.Conversations, 1)
	require.NotNil(t, data.Stats)
	assert.Equal(t, 1, data.Stats.TotalConversations)
	assert.Equal(t, "pregunta", data.Conversations[0].UserMessage)
}
