package chat

import (
	"errors"

	"github.com/devashish08/chatbot-api/services"
	"github.com/devashish08/chatbot-api/utils/response"
	"github.com/devashish08/chatbot-api/utils/sqlguard"
	"github.com/devashish08/chatbot-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ChatHandler handles chat turn requests
type ChatHandler struct {
	db          *gorm.DB
	validator   *validation.Validator
	chatService *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(db *gorm.DB, chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		db:          db,
		validator:   validation.NewValidator(),
		chatService: chatService,
	}
}

// SendMessageRequest represents the request to send a chat message
type SendMessageRequest struct {
	Message   string                 `json:"message" validate:"required,min=1,max=10000"`
	SessionID *uint                  `json:"session_id" validate:"omitempty,min=1"`
	UserEmail string                 `json:"user_email" validate:"omitempty,email"`
	UserName  string                 `json:"user_name" validate:"omitempty,max=255"`
	SQLMode   bool                   `json:"sql_mode"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// RegenerateRequest represents the request to regenerate a reply
type RegenerateRequest struct {
	MessageID uint   `json:"message_id" validate:"required,min=1"`
	UserEmail string `json:"user_email" validate:"omitempty,email"`
}

// SendMessage handles POST /api/v1/chat/send
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	req.Message = validation.SanitizeString(req.Message)

	if err := h.validator.Validate(&req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.SQLMode {
		if err := sqlguard.Check(req.Message); err != nil {
			return response.BadRequest(c, "SQL query rejected: "+err.Error())
		}
	}

	user, err := h.chatService.GetOrCreateUser(c.Context(), req.UserEmail, req.UserName)
	if err != nil {
		return response.InternalServerError(c, "Failed to resolve user")
	}

	result, err := h.chatService.HandleTurn(c.Context(), services.HandleTurnRequest{
		UserID:    user.ID,
		SessionID: req.SessionID,
		Content:   req.Message,
		SQLMode:   req.SQLMode,
		Metadata:  req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			return response.NotFound(c, "Session not found")
		case errors.Is(err, services.ErrSessionArchived):
			return response.Gone(c, "Session is archived and no longer accepts messages")
		case errors.Is(err, services.ErrStorageUnavailable):
			return response.ServiceUnavailable(c, "Storage temporarily unavailable")
		default:
			return response.InternalServerError(c, "Failed to process message")
		}
	}

	return response.Success(c, result)
}

// Regenerate handles POST /api/v1/chat/regenerate
func (h *ChatHandler) Regenerate(c *fiber.Ctx) error {
	var req RegenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.Validate(&req); err != nil {
		return response.ValidationError(c, err)
	}

	user, err := h.chatService.GetOrCreateUser(c.Context(), req.UserEmail, "")
	if err != nil {
		return response.InternalServerError(c, "Failed to resolve user")
	}

	result, err := h.chatService.RegenerateTurn(c.Context(), req.MessageID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMessageNotFound):
			return response.NotFound(c, "Message not found")
		case errors.Is(err, services.ErrStorageUnavailable):
			return response.ServiceUnavailable(c, "Storage temporarily unavailable")
		default:
			return response.InternalServerError(c, "Failed to regenerate reply")
		}
	}

	return response.Success(c, result)
}
