package handlers

import (
	"time"

	"github.com/devashish08/chatbot-api/database"
	"github.com/devashish08/chatbot-api/services/llmrelay"
	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports service health
type HealthHandler struct {
	store *database.GORMStore
	relay *llmrelay.Client
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *database.GORMStore, relay *llmrelay.Client) *HealthHandler {
	return &HealthHandler{store: store, relay: relay}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	overall := "ok"
	dbStatus := "ok"
	statusCode := fiber.StatusOK
	if err := h.store.HealthCheck(); err != nil {
		overall = "degraded"
		dbStatus = "unavailable"
		statusCode = fiber.StatusServiceUnavailable
	}

	relayState := "disabled"
	if h.relay != nil {
		relayState = string(h.relay.State())
	}

	// The relay degrades to fallback replies on its own, so its state is
	// informational and does not flip the overall status.
	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overall,
		"database":  dbStatus,
		"llm_relay": relayState,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
