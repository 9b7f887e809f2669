package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// Redis Configuration
	REDIS_URL string
	// LLM Relay Configuration
	LLM_WEBSOCKET_URL      string
	LLM_MODEL_NAME         string
	LLM_TIMEOUT            time.Duration
	LLM_MAX_RETRIES        int
	LLM_RECONNECT_DELAY    time.Duration
	LLM_KEEPALIVE_INTERVAL time.Duration
	LLM_MAX_TOKENS         int
	LLM_TEMPERATURE        float64
	// Chat History Configuration
	ENABLE_HISTORY         bool
	HISTORY_RETENTION_DAYS int
	CRON_ENABLED           bool
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// LLM Relay
		LLM_WEBSOCKET_URL:      getEnvString("LLM_WEBSOCKET_URL", "ws://localhost:8090/chat"),
		LLM_MODEL_NAME:         getEnvString("LLM_MODEL_NAME", "custom-model"),
		LLM_TIMEOUT:            time.Duration(getEnvInt("LLM_TIMEOUT", 30)) * time.Second,
		LLM_MAX_RETRIES:        getEnvInt("LLM_MAX_RETRIES", 3),
		LLM_RECONNECT_DELAY:    time.Duration(getEnvInt("LLM_RECONNECT_DELAY", 2)) * time.Second,
		LLM_KEEPALIVE_INTERVAL: time.Duration(getEnvInt("LLM_KEEPALIVE_INTERVAL", 30)) * time.Second,
		LLM_MAX_TOKENS:         getEnvInt("LLM_MAX_TOKENS", 4000),
		LLM_TEMPERATURE:        getEnvFloat("LLM_TEMPERATURE", 0.7),
		// Chat History
		ENABLE_HISTORY:         getEnvBool("ENABLE_HISTORY", true),
		HISTORY_RETENTION_DAYS: getEnvInt("HISTORY_RETENTION_DAYS", 30),
		CRON_ENABLED:           getEnvBool("CRON_ENABLED", true),
	}

	return envVariables, nil
}

func getEnvString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}
