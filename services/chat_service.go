package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/devashish08/chatbot-api/model"
	"github.com/devashish08/chatbot-api/services/llmrelay"
	"gorm.io/gorm"
)

// Relay is the slice of the relay client the chat flow needs. Tests swap in
// a fake; production wires *llmrelay.Client.
type Relay interface {
	SendWithFallback(ctx context.Context, text string, opts llmrelay.SendOptions) *llmrelay.Reply
}

// ChatService sequences a single chat turn: resolve or create the session,
// persist the user's message, get a reply through the relay, persist the
// reply. Dependencies are injected so the store and the relay can be faked
// independently.
type ChatService struct {
	db    *gorm.DB
	store *SessionStore
	relay Relay
}

// NewChatService creates a new chat service
func NewChatService(db *gorm.DB, store *SessionStore, relay Relay) *ChatService {
	return &ChatService{
		db:    db,
		store: store,
		relay: relay,
	}
}

// HandleTurnRequest represents one incoming chat message
type HandleTurnRequest struct {
	UserID    uint
	SessionID *uint // nil starts a new session
	Content   string
	SQLMode   bool
	Metadata  map[string]interface{}
}

// TurnResult is what the caller gets back from a completed turn
type TurnResult struct {
	SessionID uint            `json:"session_id"`
	MessageID uint            `json:"message_id"`
	Reply     *llmrelay.Reply `json:"reply"`
	Persisted bool            `json:"persisted"`
}

// HandleTurn runs one chat turn end to end. The user message is committed
// before the relay is called, so a crash mid-turn leaves a recoverable
// "asked but not answered" row. Relay failures never fail the turn (the
// fallback reply masks them); a store failure after the relay answered is
// logged and the reply still returned, since the conversation staying
// responsive beats strict persistence here.
func (s *ChatService) HandleTurn(ctx context.Context, req HandleTurnRequest) (*TurnResult, error) {
	sessionID, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	message, err := s.store.AppendMessage(ctx, sessionID, req.UserID, req.Content, req.SQLMode, req.Metadata)
	if err != nil {
		// No relay call for a turn that cannot be recorded
		return nil, err
	}

	startTime := time.Now()
	reply := s.relay.SendWithFallback(ctx, req.Content, llmrelay.SendOptions{
		SQLMode:  req.SQLMode,
		Metadata: req.Metadata,
	})
	latency := time.Since(startTime).Seconds()

	result := &TurnResult{
		SessionID: sessionID,
		MessageID: message.ID,
		Reply:     reply,
		Persisted: true,
	}

	if err := s.store.FillReply(ctx, message.ID, reply.Content, reply.TokensUsed, latency); err != nil {
		// The user already has a reply; losing the persisted copy is an
		// accepted inconsistency under storage degradation.
		log.Printf("Warning: reply for message %d not persisted: %v", message.ID, err)
		result.Persisted = false
	}

	return result, nil
}

// RegenerateTurn re-runs the relay for an existing message and overwrites its
// reply. Request text and message identity never change.
func (s *ChatService) RegenerateTurn(ctx context.Context, messageID, userID uint) (*TurnResult, error) {
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.UserID != userID {
		return nil, ErrMessageNotFound
	}

	startTime := time.Now()
	reply := s.relay.SendWithFallback(ctx, message.RequestText, llmrelay.SendOptions{
		SQLMode:  message.SQLMode,
		Metadata: message.Metadata,
	})
	latency := time.Since(startTime).Seconds()

	result := &TurnResult{
		SessionID: message.SessionID,
		MessageID: message.ID,
		Reply:     reply,
		Persisted: true,
	}

	if err := s.store.RegenerateReply(ctx, messageID, reply.Content, reply.TokensUsed, latency); err != nil {
		log.Printf("Warning: regenerated reply for message %d not persisted: %v", messageID, err)
		result.Persisted = false
	}

	return result, nil
}

// GetOrCreateUser finds a user by email, creating a lightweight record when
// none exists. The chat endpoint accepts anonymous visitors this way.
func (s *ChatService) GetOrCreateUser(ctx context.Context, email, name string) (*model.User, error) {
	if email == "" {
		email = "default@example.com"
	}
	if name == "" {
		name = "Anonymous User"
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: failed to fetch user: %v", ErrStorageUnavailable, err)
	}

	user = model.User{
		Name:   name,
		Email:  email,
		Status: "active",
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to create user: %v", ErrStorageUnavailable, err)
	}

	return &user, nil
}

func (s *ChatService) resolveSession(ctx context.Context, req HandleTurnRequest) (uint, error) {
	if req.SessionID != nil {
		return *req.SessionID, nil
	}

	session, err := s.store.CreateSession(ctx, req.UserID, "")
	if err != nil {
		return 0, err
	}
	return session.ID, nil
}
