package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devashish08/chatbot-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStore is the single authority for chat sessions and their message
// logs. It owns the derived counters: message_count on a session always equals
// the number of completed request/reply pairs, and updated_at/last_activity is
// bumped on every write. All multi-row mutations run inside a transaction so
// partial state is never observable.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// SweepResult reports what a retention sweep removed
type SweepResult struct {
	MessagesDeleted int64
	SessionsDeleted int64
}

// CreateSession inserts a new active session with counters zeroed. The title
// defaults to a timestamp-derived label when omitted.
func (s *SessionStore) CreateSession(ctx context.Context, userID uint, title string) (*model.ChatSession, error) {
	if title == "" {
		title = fmt.Sprintf("Chat - %s", time.Now().Format("Jan 2, 2006 15:04"))
	}

	session := model.ChatSession{
		UserID: userID,
		Title:  title,
		Status: model.SessionStatusActive,
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %v", ErrStorageUnavailable, err)
	}

	return &session, nil
}

// GetSession fetches a session owned by the given user
func (s *SessionStore) GetSession(ctx context.Context, sessionID, userID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: failed to fetch session: %v", ErrStorageUnavailable, err)
	}
	return &session, nil
}

// AppendMessage inserts a message row with a null reply and bumps the owning
// session's last_activity. The reply is filled later by FillReply; committing
// the request first means a crash mid-turn leaves an "asked but not answered"
// row instead of losing the user's input.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID, userID uint, requestText string, sqlMode bool, metadata map[string]interface{}) (*model.Message, error) {
	var message model.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.ChatSession
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("%w: failed to fetch session: %v", ErrStorageUnavailable, err)
		}

		if session.IsArchived() {
			return ErrSessionArchived
		}

		message = model.Message{
			SessionID:   sessionID,
			UserID:      userID,
			RequestText: requestText,
			SQLMode:     sqlMode,
			Metadata:    datatypes.JSONMap(metadata),
		}

		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("%w: failed to save message: %v", ErrStorageUnavailable, err)
		}

		now := time.Now()
		if err := tx.Model(&model.ChatSession{}).Where("id = ?", sessionID).
			Updates(map[string]interface{}{
				"last_activity": now,
				"updated_at":    now,
			}).Error; err != nil {
			return fmt.Errorf("%w: failed to update session: %v", ErrStorageUnavailable, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// FillReply sets the reply side of a message exactly once and completes the
// turn: message_count and total_tokens on the owning session are bumped
// atomically in the same transaction. A second call for the same message
// fails with ErrReplyAlreadySet and leaves the stored reply untouched.
func (s *SessionStore) FillReply(ctx context.Context, messageID uint, replyText string, tokensUsed int, latencySeconds float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message model.Message
		if err := tx.First(&message, messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return fmt.Errorf("%w: failed to fetch message: %v", ErrStorageUnavailable, err)
		}

		// Guard against double fills at the SQL level: the WHERE clause only
		// matches while reply_text is still null, so two racing fills cannot
		// both succeed.
		result := tx.Model(&model.Message{}).
			Where("id = ? AND reply_text IS NULL", messageID).
			Updates(map[string]interface{}{
				"reply_text":      replyText,
				"tokens_used":     tokensUsed,
				"latency_seconds": latencySeconds,
			})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to fill reply: %v", ErrStorageUnavailable, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrReplyAlreadySet
		}

		now := time.Now()
		if err := tx.Model(&model.ChatSession{}).Where("id = ?", message.SessionID).
			Updates(map[string]interface{}{
				"message_count": gorm.Expr("message_count + ?", 1),
				"total_tokens":  gorm.Expr("total_tokens + ?", tokensUsed),
				"last_activity": now,
				"updated_at":    now,
			}).Error; err != nil {
			return fmt.Errorf("%w: failed to update session counters: %v", ErrStorageUnavailable, err)
		}

		return nil
	})
}

// GetMessage fetches a single message by id
func (s *SessionStore) GetMessage(ctx context.Context, messageID uint) (*model.Message, error) {
	var message model.Message
	if err := s.db.WithContext(ctx).First(&message, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("%w: failed to fetch message: %v", ErrStorageUnavailable, err)
	}
	return &message, nil
}

// RegenerateReply overwrites the reply fields of an already answered message.
// This is the one sanctioned way to rewrite a reply; the request text, the
// row identity and message_count are unaffected. The token delta is folded
// into the session's total_tokens.
func (s *SessionStore) RegenerateReply(ctx context.Context, messageID uint, replyText string, tokensUsed int, latencySeconds float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message model.Message
		if err := tx.First(&message, messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return fmt.Errorf("%w: failed to fetch message: %v", ErrStorageUnavailable, err)
		}

		if err := tx.Model(&model.Message{}).Where("id = ?", messageID).
			Updates(map[string]interface{}{
				"reply_text":      replyText,
				"tokens_used":     tokensUsed,
				"latency_seconds": latencySeconds,
			}).Error; err != nil {
			return fmt.Errorf("%w: failed to rewrite reply: %v", ErrStorageUnavailable, err)
		}

		now := time.Now()
		if err := tx.Model(&model.ChatSession{}).Where("id = ?", message.SessionID).
			Updates(map[string]interface{}{
				"total_tokens":  gorm.Expr("total_tokens - ? + ?", message.TokensUsed, tokensUsed),
				"last_activity": now,
				"updated_at":    now,
			}).Error; err != nil {
			return fmt.Errorf("%w: failed to update session counters: %v", ErrStorageUnavailable, err)
		}

		return nil
	})
}

// ListSessions returns the user's sessions newest-activity first, plus the
// unbounded total for pagination. An empty statusFilter (or "all") returns
// every status.
func (s *SessionStore) ListSessions(ctx context.Context, userID uint, statusFilter string, limit, offset int) ([]model.ChatSession, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.ChatSession{}).Where("user_id = ?", userID)

	if statusFilter != "" && statusFilter != "all" {
		query = query.Where("status = ?", statusFilter)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: failed to count sessions: %v", ErrStorageUnavailable, err)
	}

	var sessions []model.ChatSession
	if err := query.
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: failed to fetch sessions: %v", ErrStorageUnavailable, err)
	}

	return sessions, total, nil
}

// GetHistory returns a session's messages oldest-first, the order a UI
// replays them in.
func (s *SessionStore) GetHistory(ctx context.Context, sessionID uint, limit, offset int) ([]model.Message, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Message{}).Where("session_id = ?", sessionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: failed to count messages: %v", ErrStorageUnavailable, err)
	}

	var messages []model.Message
	if err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: failed to fetch messages: %v", ErrStorageUnavailable, err)
	}

	return messages, total, nil
}

// DeleteSession removes a session and all its messages as one transaction, so
// a partially deleted session is never observable.
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.ChatSession
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("%w: failed to fetch session: %v", ErrStorageUnavailable, err)
		}

		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("%w: failed to delete messages: %v", ErrStorageUnavailable, err)
		}

		if err := tx.Delete(&model.ChatSession{}, sessionID).Error; err != nil {
			return fmt.Errorf("%w: failed to delete session: %v", ErrStorageUnavailable, err)
		}

		return nil
	})
}

// ArchiveSession marks a session read-only without deleting data
func (s *SessionStore) ArchiveSession(ctx context.Context, sessionID, userID uint) error {
	return s.setSessionStatus(ctx, sessionID, userID, model.SessionStatusArchived)
}

// RestoreSession reactivates an archived session
func (s *SessionStore) RestoreSession(ctx context.Context, sessionID, userID uint) error {
	return s.setSessionStatus(ctx, sessionID, userID, model.SessionStatusActive)
}

func (s *SessionStore) setSessionStatus(ctx context.Context, sessionID, userID uint, status string) error {
	result := s.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("%w: failed to update session status: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SweepExpired deletes messages older than the horizon, then sessions that
// have no remaining messages and were last touched before the horizon.
// Messages go first so a session is never deleted while rows still reference
// it. Counters on surviving sessions are recomputed from what is left.
// Re-running against already-clean data deletes nothing.
func (s *SessionStore) SweepExpired(ctx context.Context, horizon time.Time) (*SweepResult, error) {
	sweep := &SweepResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("created_at < ?", horizon).Delete(&model.Message{})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to delete expired messages: %v", ErrStorageUnavailable, result.Error)
		}
		sweep.MessagesDeleted = result.RowsAffected

		// Raw SQL on purpose: recomputing counters must not bump updated_at,
		// otherwise swept sessions would never expire.
		if sweep.MessagesDeleted > 0 {
			if err := tx.Exec(`
				UPDATE chat_sessions SET
					message_count = (
						SELECT COUNT(*) FROM messages
						WHERE messages.session_id = chat_sessions.id
						AND messages.reply_text IS NOT NULL
					),
					total_tokens = (
						SELECT COALESCE(SUM(tokens_used), 0) FROM messages
						WHERE messages.session_id = chat_sessions.id
					)
			`).Error; err != nil {
				return fmt.Errorf("%w: failed to recompute session counters: %v", ErrStorageUnavailable, err)
			}
		}

		result = tx.Where(
			"updated_at < ? AND NOT EXISTS (SELECT 1 FROM messages WHERE messages.session_id = chat_sessions.id)",
			horizon,
		).Delete(&model.ChatSession{})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to delete expired sessions: %v", ErrStorageUnavailable, result.Error)
		}
		sweep.SessionsDeleted = result.RowsAffected

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sweep, nil
}
