package controller

import (
	"mateo-memory-be/internal/dto"
	"mateo-memory-be/internal/pkg/serverutils"
	"mateo-memory-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IMemoryController interface {
	RegisterRoutes(r fiber.Router)
	Store(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
	Last(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	Data(ctx *fiber.Ctx) error
}

type memoryController struct {
	service service.IMemoryService
}

func NewMemoryController(service service.IMemoryService) IMemoryController {
	return &memoryController{service: service}
}

func (c *memoryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/memory/v1")
	h.Post("/conversation", c.Store)
	h.Post("/search", c.Search)
	h.Get("/last", c.Last)
	h.Get("/history", c.History)
	h.Get("/stats", c.Stats)
	h.Get("/data", c.Data)
}

func (c *memoryController) Store(ctx *fiber.Ctx) error {
	var req dto.StoreConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.StoreConversation(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Conversation stored", res))
}

func (c *memoryController) Search(ctx *fiber.Ctx) error {
	var req dto.SearchConversationsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	context := c.service.SearchConversations(ctx.Context(), &req)

	return ctx.JSON(serverutils.SuccessResponse("Search completed", dto.SearchConversationsResponse{
		Context: context,
	}))
}

func (c *memoryController) Last(ctx *fiber.Ctx) error {
	model := ctx.Query("model", "openai")
	sessionId := ctx.Query("session_id")

	userMessage, chatbotResponse := c.service.GetLastConversation(ctx.Context(), model, sessionId)

	return ctx.JSON(serverutils.SuccessResponse("Last conversation retrieved", dto.LastConversationResponse{
		UserMessage:     userMessage,
		ChatbotResponse: chatbotResponse,
	}))
}

func (c *memoryController) History(ctx *fiber.Ctx) error {
	model := ctx.Query("model", "openai")
	sessionId := ctx.Query("session_id")
	limit := ctx.QueryInt("limit", 10)

	history := c.service.GetConversationHistory(ctx.Context(), model, sessionId, limit)

	return ctx.JSON(fiber.Map{
		"success":    true,
		"history":    history,
		"session_id": sessionId,
		"model":      model,
		"count":      len(history),
	})
}

func (c *memoryController) Stats(ctx *fiber.Ctx) error {
	model := ctx.Query("model", "openai")

	stats := c.service.GetConversationStats(ctx.Context(), model)

	return ctx.JSON(serverutils.SuccessResponse("Stats retrieved", stats))
}

func (c *memoryController) Data(ctx *fiber.Ctx) error {
	model := ctx.Query("model", "openai")
	sessionId := ctx.Query("session_id")
	limit := ctx.QueryInt("limit", 100)

	data := c.service.GetConversationData(ctx.Context(), model, sessionId, limit)

	return ctx.JSON(serverutils.SuccessResponse("Conversation data retrieved", data))
}
