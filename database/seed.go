package database

import (
	"log"
	"time"

	"github.com/devashish08/chatbot-api/model"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("Starting database seeding...")

	if err := s.SeedAppSettings(); err != nil {
		return err
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedAppSettings creates default application settings. Existing keys are
// left untouched so operator edits survive restarts.
func (s *Seeder) SeedAppSettings() error {
	now := time.Now()
	settings := []model.AppSetting{
		{
			Key:         "max_tokens",
			Value:       "4000",
			Type:        "int",
			Description: "Maximum tokens per response",
			Category:    "llm",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "temperature",
			Value:       "0.7",
			Type:        "string",
			Description: "LLM temperature setting",
			Category:    "llm",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "max_history_items",
			Value:       "100",
			Type:        "int",
			Description: "Maximum chat history items",
			Category:    "chat",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "enable_history",
			Value:       "true",
			Type:        "bool",
			Description: "Enable chat history",
			Category:    "chat",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			Key:         "history_retention_days",
			Value:       "30",
			Type:        "int",
			Description: "Days to retain chat history",
			Category:    "chat",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}

	for _, setting := range settings {
		var count int64
		if err := s.db.Model(&model.AppSetting{}).Where("key = ?", setting.Key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := s.db.Create(&setting).Error; err != nil {
			return err
		}
	}

	return nil
}
