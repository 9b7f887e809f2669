package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/devashish08/chatbot-api/api"
	"github.com/devashish08/chatbot-api/config"
	"github.com/devashish08/chatbot-api/database"
	"github.com/devashish08/chatbot-api/router"
	"github.com/devashish08/chatbot-api/services"
	"github.com/devashish08/chatbot-api/services/cron"
	"github.com/devashish08/chatbot-api/services/llmrelay"
	"github.com/devashish08/chatbot-api/utils/cache"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		return err
	}

	// Seed default settings
	if err := database.NewSeeder(store.DB()).SeedAll(); err != nil {
		log.Printf("Warning: failed to seed default settings: %v", err)
	}

	// Redis is optional; the settings cache degrades to DB reads without it
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Printf("Warning: redis unavailable, running without cache: %v", err)
			redisCache = nil
		}
	}

	// LLM relay client connects in the background; requests sent before the
	// connection is up are queued or answered by the fallback
	relay := llmrelay.NewClient(llmrelay.Config{
		URL:                  getEnv.LLM_WEBSOCKET_URL,
		Model:                getEnv.LLM_MODEL_NAME,
		MaxTokens:            getEnv.LLM_MAX_TOKENS,
		Temperature:          getEnv.LLM_TEMPERATURE,
		RequestTimeout:       getEnv.LLM_TIMEOUT,
		ReconnectDelay:       getEnv.LLM_RECONNECT_DELAY,
		MaxReconnectAttempts: getEnv.LLM_MAX_RETRIES,
		KeepaliveInterval:    getEnv.LLM_KEEPALIVE_INTERVAL,
	})

	// Retention sweeper (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED && getEnv.ENABLE_HISTORY {
		settingsService := services.NewSettingsService(store.DB(), redisCache)
		retentionDays := settingsService.GetInt(context.Background(),
			"history_retention_days", getEnv.HISTORY_RETENTION_DAYS)

		sessionStore := services.NewSessionStore(store.DB())
		cronManager = cron.NewCronManager(store.DB(), sessionStore, retentionDays)
		if err := cronManager.Start(); err != nil {
			log.Printf("Warning: failed to start cron jobs: %v", err)
		}
	}

	// Defer closing DB, relay and cron jobs
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		relay.Disconnect()
		if redisCache != nil {
			redisCache.Close()
		}
		store.Close()
	}()

	// Init API
	var server *api.APIServer = api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Attach Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Setup Routes
	router.SetupRoutes(app, store, relay, redisCache)

	// Shut down cleanly on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Printf("Received %s, shutting down", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Get the PORT & Start the Server
	return server.Run()
}
