package session

import (
	"context"
	"errors"
	"strconv"

	"github.com/devashish08/chatbot-api/services"
	"github.com/devashish08/chatbot-api/utils/response"
	"github.com/devashish08/chatbot-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SessionHandler handles chat session management requests
type SessionHandler struct {
	db        *gorm.DB
	validator *validation.Validator
	store     *services.SessionStore
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(db *gorm.DB, store *services.SessionStore) *SessionHandler {
	return &SessionHandler{
		db:        db,
		validator: validation.NewValidator(),
		store:     store,
	}
}

// CreateSessionRequest represents the request to create a chat session
type CreateSessionRequest struct {
	UserID uint   `json:"user_id" validate:"required,min=1"`
	Title  string `json:"title" validate:"omitempty,max=255"`
}

func userIDFromQuery(c *fiber.Ctx) (uint, error) {
	raw := c.Query("user_id", "1")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid user_id")
	}
	return uint(id), nil
}

func sessionIDFromParams(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid session id")
	}
	return uint(id), nil
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	userID, err := userIDFromQuery(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user_id")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	status := c.Query("status", "")

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sessions, total, err := h.store.ListSessions(c.Context(), userID, status, limit, (page-1)*limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch sessions")
	}

	return response.Paginated(c, sessions, response.CalculatePagination(page, limit, total))
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	userID, err := userIDFromQuery(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user_id")
	}

	sessionID, err := sessionIDFromParams(c)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	session, err := h.store.GetSession(c.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to fetch session")
	}

	if c.QueryBool("include_messages", false) {
		messages, _, err := h.store.GetHistory(c.Context(), sessionID, 1000, 0)
		if err != nil {
			return response.InternalServerError(c, "Failed to fetch session messages")
		}
		return response.Success(c, fiber.Map{
			"session":  session,
			"messages": messages,
		})
	}

	return response.Success(c, session)
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.Validate(&req); err != nil {
		return response.ValidationError(c, err)
	}

	session, err := h.store.CreateSession(c.Context(), req.UserID, validation.SanitizeString(req.Title))
	if err != nil {
		return response.InternalServerError(c, "Failed to create session")
	}

	return response.Created(c, session)
}

// DeleteSession handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	userID, err := userIDFromQuery(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user_id")
	}

	sessionID, err := sessionIDFromParams(c)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	if err := h.store.DeleteSession(c.Context(), sessionID, userID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to delete session")
	}

	return response.SuccessWithMessage(c, "Session deleted", nil)
}

// ArchiveSession handles POST /api/v1/sessions/:id/archive
func (h *SessionHandler) ArchiveSession(c *fiber.Ctx) error {
	return h.setStatus(c, h.store.ArchiveSession, "Session archived")
}

// RestoreSession handles POST /api/v1/sessions/:id/restore
func (h *SessionHandler) RestoreSession(c *fiber.Ctx) error {
	return h.setStatus(c, h.store.RestoreSession, "Session restored")
}

func (h *SessionHandler) setStatus(c *fiber.Ctx, op func(ctx context.Context, sessionID, userID uint) error, message string) error {
	userID, err := userIDFromQuery(c)
	if err != nil {
		return response.BadRequest(c, "Invalid user_id")
	}

	sessionID, err := sessionIDFromParams(c)
	if err != nil {
		return response.BadRequest(c, "Invalid session id")
	}

	if err := op(c.Context(), sessionID, userID); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.InternalServerError(c, "Failed to update session")
	}

	return response.SuccessWithMessage(c, message, nil)
}
