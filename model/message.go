package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message represents one request/reply turn in a chat conversation. The
// request text is written at creation and never changes; the reply is filled
// in exactly once when the relay answers (or the fallback fires). Regenerating
// a reply overwrites the reply fields but never the request or the row id.
type Message struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	SessionID      uint              `gorm:"not null;index:idx_messages_session_created,priority:1" json:"session_id"`
	UserID         uint              `gorm:"not null;index" json:"user_id"`
	RequestText    string            `gorm:"type:text;not null" json:"request_text"`
	ReplyText      *string           `gorm:"type:text" json:"reply_text"`
	SQLMode        bool              `gorm:"default:false" json:"sql_mode"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	TokensUsed     int               `gorm:"default:0" json:"tokens_used"`
	LatencySeconds float64           `gorm:"default:0" json:"latency_seconds"`
	CreatedAt      time.Time         `gorm:"index:idx_messages_session_created,priority:2" json:"created_at"`

	// Relationships
	Session ChatSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"session,omitempty"`
	User    User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}

// HasReply returns true once the reply side of the turn has been recorded
func (m *Message) HasReply() bool {
	return m.ReplyText != nil
}
