package model

import (
	"time"
)

// Session status values
const (
	SessionStatusActive   = "active"
	SessionStatusArchived = "archived"
)

// ChatSession represents a conversation thread between a user and the AI
type ChatSession struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_sessions_owner_updated,priority:1" json:"user_id"`
	Title        string     `gorm:"type:varchar(255)" json:"title"`
	Status       string     `gorm:"type:varchar(20);default:'active'" json:"status"` // active, archived
	MessageCount int        `gorm:"default:0" json:"message_count"`
	TotalTokens  int        `gorm:"default:0" json:"total_tokens"`
	LastActivity *time.Time `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `gorm:"index:idx_sessions_owner_updated,priority:2" json:"updated_at"`

	// Relationships
	User     User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for ChatSession
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// IsArchived returns true if the session no longer accepts new messages
func (s *ChatSession) IsArchived() bool {
	return s.Status == SessionStatusArchived
}
