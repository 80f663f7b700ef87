package bootstrap

import (
	"context"
	"log"

	"mateo-memory-be/internal/config"
	"mateo-memory-be/internal/controller"
	"mateo-memory-be/internal/pkg/logger"
	"mateo-memory-be/internal/repository/contract"
	"mateo-memory-be/internal/repository/implementation"
	"mateo-memory-be/internal/repository/memory"
	qdrantrepo "mateo-memory-be/internal/repository/qdrant"
	"mateo-memory-be/internal/service"
	"mateo-memory-be/pkg/embedding"
	"mateo-memory-be/pkg/embedding/jina"
	"mateo-memory-be/pkg/events"
	pktNats "mateo-memory-be/pkg/nats"
	"mateo-memory-be/pkg/tokenizer"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	MemoryController controller.IMemoryController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Embedding Provider based on Config
	var embeddingProvider embedding.Provider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaModel,
			cfg.Ai.EmbeddingDimensions,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	} else if cfg.Ai.EmbeddingProvider == "jina" {
		embeddingProvider = jina.NewProvider(cfg.Ai.JinaApiKey, cfg.Ai.EmbeddingDimensions)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewHashProvider(cfg.Ai.EmbeddingDimensions)
		log.Printf("[INFO] Using Embedding Provider: HASH (deterministic, offline)")
	}

	// 4. Vector Store based on Config
	var conversationRepo contract.ConversationRepository
	switch cfg.Memory.VectorStore {
	case "qdrant":
		repo, err := qdrantrepo.NewConversationRepository(qdrantrepo.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(cfg.Ai.EmbeddingDimensions),
			Timeout:    cfg.Memory.StoreTimeout,
		})
		if err != nil {
			log.Fatalf("[FATAL] Failed to connect to Qdrant: %v", err)
		}
		if err := repo.EnsureCollection(context.Background()); err != nil {
			log.Fatalf("[FATAL] Failed to ensure Qdrant collection: %v", err)
		}
		conversationRepo = repo
		log.Printf("[INFO] Using Vector Store: QDRANT (%s)", cfg.Qdrant.Collection)
	case "memory":
		conversationRepo = memory.NewConversationRepository()
		log.Printf("[INFO] Using Vector Store: MEMORY (non-persistent)")
	default:
		conversationRepo = implementation.NewConversationRepository(db, cfg.Memory.StoreTimeout)
		log.Printf("[INFO] Using Vector Store: PGVECTOR")
	}

	// 5. Supporting infrastructure
	tokenCounter := tokenizer.NewCounter()
	statsRepo := memory.NewStatsRepository()

	// NATS mirror is optional: no URL means in-process bus only.
	var extPublisher service.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			extPublisher = natsPub
		}
	}

	// 6. Services
	memoryService := service.NewMemoryService(
		conversationRepo,
		embeddingProvider,
		tokenCounter,
		statsRepo,
		pubSub,
		events.TypeConversationStored,
		extPublisher,
		sysLogger,
		service.MemoryPolicy{
			TokenBudget:  cfg.Memory.TokenBudget,
			SearchLimit:  cfg.Memory.SearchLimit,
			HistoryLimit: cfg.Memory.HistoryLimit,
			StatsWindow:  cfg.Memory.StatsWindow,
			RetryMax:     cfg.Memory.RetryMax,
		},
	)

	consumerService := service.NewConsumerService(
		pubSub,
		events.TypeConversationStored,
		statsRepo,
		sysLogger,
	)

	// 7. Controllers
	memoryController := controller.NewMemoryController(memoryService)

	return &Container{
		MemoryController: memoryController,
		ConsumerService:  consumerService,
		Logger:           sysLogger,
	}
}
