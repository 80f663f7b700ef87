package service

import (
	"context"
	"encoding/json"

	"mateo-memory-be/internal/dto"
	"mateo-memory-be/internal/pkg/logger"
	memrepo "mateo-memory-be/internal/repository/memory"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const moduleConsumerService = "consumer_service"

// IConsumerService drains the in-process event bus in the background.
type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService keeps the audit counters up to date from
// CONVERSATION_STORED events. The write path stays synchronous; only
// the bookkeeping rides the bus.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	statsRepo *memrepo.StatsRepository
	sysLogger logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	statsRepo *memrepo.StatsRepository,
	sysLogger logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		statsRepo: statsRepo,
		sysLogger: sysLogger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	var payload dto.PublishConversationStoredMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.sysLogger.Warn(moduleConsumerService, "Failed to unmarshal stored event", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.statsRepo.IncrementStored(payload.Model)
	cs.sysLogger.Debug(moduleConsumerService, "Recorded stored conversation", map[string]interface{}{
		"conversation_id": payload.ConversationId,
		"model":           payload.Model,
		"attempts":        payload.Attempts,
	})
	msg.Ack()
}
