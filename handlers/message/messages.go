package message

import (
	"errors"
	"strconv"

	"github.com/devashish08/chatbot-api/services"
	"github.com/devashish08/chatbot-api/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MessageHandler handles message history requests
type MessageHandler struct {
	db    *gorm.DB
	store *services.SessionStore
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(db *gorm.DB, store *services.SessionStore) *MessageHandler {
	return &MessageHandler{db: db, store: store}
}

// ListMessages handles GET /api/v1/sessions/:id/messages
func (h *MessageHandler) ListMessages(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || sessionID == 0 {
		return response.BadRequest(c, "Invalid session id")
	}

	userID, err := strconv.ParseUint(c.Query("user_id", "1"), 10, 32)
	if err != nil || userID == 0 {
		return response.BadRequest(c, "Invalid user_id")
	}

	// Ownership check before exposing history.
	if _, err := h.store.GetSession(c.Context(), uint(sessionID), uint(userID)); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to fetch session")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	messages, total, err := h.store.GetHistory(c.Context(), uint(sessionID), limit, (page-1)*limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch messages")
	}

	return response.Paginated(c, messages, response.CalculatePagination(page, limit, total))
}

// GetMessage handles GET /api/v1/messages/:id
func (h *MessageHandler) GetMessage(c *fiber.Ctx) error {
	messageID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || messageID == 0 {
		return response.BadRequest(c, "Invalid message id")
	}

	msg, err := h.store.GetMessage(c.Context(), uint(messageID))
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			return response.NotFound(c, "Message not found")
		}
		return response.InternalServerError(c, "Failed to fetch message")
	}

	return response.Success(c, msg)
}
