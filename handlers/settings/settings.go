package settings

import (
	"errors"

	"github.com/devashish08/chatbot-api/services"
	"github.com/devashish08/chatbot-api/utils/response"
	"github.com/devashish08/chatbot-api/utils/validation"
	"github.com/gofiber/fiber/v2"
)

// SettingsHandler handles application settings requests
type SettingsHandler struct {
	validator *validation.Validator
	settings  *services.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		validator: validation.NewValidator(),
		settings:  settings,
	}
}

// UpdateSettingRequest represents the request to update a setting
type UpdateSettingRequest struct {
	Value       string `json:"value" validate:"required,max=10000"`
	Description string `json:"description" validate:"omitempty,max=1000"`
}

// ListSettings handles GET /api/v1/settings
func (h *SettingsHandler) ListSettings(c *fiber.Ctx) error {
	category := c.Query("category", "")

	items, err := h.settings.List(c.Context(), category)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}

	return response.Success(c, items)
}

// GetSetting handles GET /api/v1/settings/:key
func (h *SettingsHandler) GetSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.BadRequest(c, "Setting key is required")
	}

	setting, err := h.settings.Get(c.Context(), key)
	if err != nil {
		if errors.Is(err, services.ErrSettingNotFound) {
			return response.NotFound(c, "Setting not found")
		}
		return response.InternalServerError(c, "Failed to fetch setting")
	}

	return response.Success(c, setting)
}

// UpdateSetting handles PUT /api/v1/settings/:key
func (h *SettingsHandler) UpdateSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return response.BadRequest(c, "Setting key is required")
	}

	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.Validate(&req); err != nil {
		return response.ValidationError(c, err)
	}

	setting, err := h.settings.Update(c.Context(), key, req.Value, req.Description)
	if err != nil {
		if errors.Is(err, services.ErrSettingNotFound) {
			return response.NotFound(c, "Setting not found")
		}
		return response.InternalServerError(c, "Failed to update setting")
	}

	return response.Success(c, setting)
}
