package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/devashish08/chatbot-api/model"
	"github.com/devashish08/chatbot-api/utils/cache"
	"gorm.io/gorm"
)

const settingsCacheTTL = 5 * time.Minute

// ErrSettingNotFound is returned for unknown setting keys
var ErrSettingNotFound = errors.New("setting not found")

// SettingsService reads and writes app_settings with an optional Redis
// read-through cache. The database is the source of truth; the cache is just
// a bounded TTL cache and the service works fine with cache == nil.
type SettingsService struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *gorm.DB, redisCache *cache.RedisCache) *SettingsService {
	return &SettingsService{
		db:    db,
		cache: redisCache,
	}
}

// List returns settings, optionally filtered by category
func (s *SettingsService) List(ctx context.Context, category string) ([]model.AppSetting, error) {
	query := s.db.WithContext(ctx).Model(&model.AppSetting{})
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var settings []model.AppSetting
	if err := query.Order("category, key").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to fetch settings: %v", ErrStorageUnavailable, err)
	}
	return settings, nil
}

// Get returns one setting by key, consulting the cache first
func (s *SettingsService) Get(ctx context.Context, key string) (*model.AppSetting, error) {
	if s.cache != nil {
		var cached model.AppSetting
		if err := s.cache.GetJSON(ctx, s.cacheKey(key), &cached); err == nil {
			return &cached, nil
		}
	}

	var setting model.AppSetting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("%w: failed to fetch setting: %v", ErrStorageUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, s.cacheKey(key), setting, settingsCacheTTL); err != nil {
			log.Printf("Warning: failed to cache setting %s: %v", key, err)
		}
	}

	return &setting, nil
}

// GetInt returns a setting parsed as int, or the fallback when missing or
// malformed
func (s *SettingsService) GetInt(ctx context.Context, key string, fallback int) int {
	setting, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	value, err := strconv.Atoi(setting.Value)
	if err != nil {
		return fallback
	}
	return value
}

// GetBool returns a setting parsed as bool, or the fallback when missing or
// malformed
func (s *SettingsService) GetBool(ctx context.Context, key string, fallback bool) bool {
	setting, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	value, err := strconv.ParseBool(setting.Value)
	if err != nil {
		return fallback
	}
	return value
}

// Update changes a setting's value and invalidates its cache entry
func (s *SettingsService) Update(ctx context.Context, key, value, description string) (*model.AppSetting, error) {
	var setting model.AppSetting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("%w: failed to fetch setting: %v", ErrStorageUnavailable, err)
	}

	updates := map[string]interface{}{"value": value}
	if description != "" {
		updates["description"] = description
	}

	if err := s.db.WithContext(ctx).Model(&setting).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to update setting: %v", ErrStorageUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, s.cacheKey(key)); err != nil {
			log.Printf("Warning: failed to invalidate setting cache %s: %v", key, err)
		}
	}

	return &setting, nil
}

func (s *SettingsService) cacheKey(key string) string {
	return "settings:" + key
}
