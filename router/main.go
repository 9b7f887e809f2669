package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/devashish08/chatbot-api/database"
	"github.com/devashish08/chatbot-api/handlers"
	chat_handlers "github.com/devashish08/chatbot-api/handlers/chat"
	message_handlers "github.com/devashish08/chatbot-api/handlers/message"
	session_handlers "github.com/devashish08/chatbot-api/handlers/session"
	settings_handlers "github.com/devashish08/chatbot-api/handlers/settings"
	user_handlers "github.com/devashish08/chatbot-api/handlers/user"
	"github.com/devashish08/chatbot-api/services"
	"github.com/devashish08/chatbot-api/services/llmrelay"
	"github.com/devashish08/chatbot-api/utils/cache"
)

// SetupRoutes registers all HTTP routes on the fiber app
func SetupRoutes(app *fiber.App, store *database.GORMStore, relay *llmrelay.Client, redisCache *cache.RedisCache) {
	db := store.DB()

	sessionStore := services.NewSessionStore(db)
	chatService := services.NewChatService(db, sessionStore, relay)
	settingsService := services.NewSettingsService(db, redisCache)

	healthHandler := handlers.NewHealthHandler(store, relay)
	chatHandler := chat_handlers.NewChatHandler(db, chatService)
	sessionHandler := session_handlers.NewSessionHandler(db, sessionStore)
	messageHandler := message_handlers.NewMessageHandler(db, sessionStore)
	userHandler := user_handlers.NewUserHandler(db)
	settingsHandler := settings_handlers.NewSettingsHandler(settingsService)

	app.Get("/health", healthHandler.Check)

	v1 := app.Group("/api/v1")

	chat := v1.Group("/chat")
	chat.Post("/send", chatHandler.SendMessage)
	chat.Post("/regenerate", chatHandler.Regenerate)

	sessions := v1.Group("/sessions")
	sessions.Get("/", sessionHandler.ListSessions)
	sessions.Post("/", sessionHandler.CreateSession)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Delete("/:id", sessionHandler.DeleteSession)
	sessions.Post("/:id/archive", sessionHandler.ArchiveSession)
	sessions.Post("/:id/restore", sessionHandler.RestoreSession)
	sessions.Get("/:id/messages", messageHandler.ListMessages)

	messages := v1.Group("/messages")
	messages.Get("/:id", messageHandler.GetMessage)

	users := v1.Group("/users")
	users.Get("/", userHandler.ListUsers)
	users.Post("/", userHandler.CreateUser)
	users.Get("/:id", userHandler.GetUser)
	users.Put("/:id", userHandler.UpdateUser)
	users.Delete("/:id", userHandler.DeleteUser)

	settings := v1.Group("/settings")
	settings.Get("/", settingsHandler.ListSettings)
	settings.Get("/:key", settingsHandler.GetSetting)
	settings.Put("/:key", settingsHandler.UpdateSetting)
}
