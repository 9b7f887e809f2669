package model

import (
	"time"

	"gorm.io/datatypes"
)

// User represents a chat user. Accounts are lightweight: the chat endpoint
// creates one on the fly for unknown emails, so there is no registration flow.
type User struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	Name        string            `gorm:"type:varchar(255);not null" json:"name"`
	Email       string            `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	AvatarURL   string            `gorm:"type:text" json:"avatar_url,omitempty"`
	Status      string            `gorm:"type:varchar(50);default:'active'" json:"status"`
	Preferences datatypes.JSONMap `gorm:"type:jsonb" json:"preferences,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Relationships
	Sessions []ChatSession `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"sessions,omitempty"`
	Messages []Message     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
