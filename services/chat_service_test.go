package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/devashish08/chatbot-api/services/llmrelay"
)

// fakeRelay records calls and replies with canned content
type fakeRelay struct {
	mu       sync.Mutex
	calls    int
	lastText string
	reply    *llmrelay.Reply
}

func (f *fakeRelay) SendWithFallback(ctx context.Context, text string, opts llmrelay.SendOptions) *llmrelay.Reply {
	f.mu.Lock()
	f.calls++
	f.lastText = text
	reply := f.reply
	f.mu.Unlock()

	if reply != nil {
		return reply
	}
	return llmrelay.FallbackReply(text, opts)
}

func TestHandleTurnCreatesSessionAndPersists(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{reply: &llmrelay.Reply{Content: "the answer", TokensUsed: 42, Model: "test-model"}}
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	user, err := svc.GetOrCreateUser(ctx, "visitor@example.com", "Visitor")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}

	result, err := svc.HandleTurn(ctx, HandleTurnRequest{
		UserID:  user.ID,
		Content: "what is the answer?",
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if result.SessionID == 0 {
		t.Error("expected a new session to be created")
	}
	if !result.Persisted {
		t.Error("expected reply to be persisted")
	}
	if result.Reply.Content != "the answer" {
		t.Errorf("unexpected reply content %q", result.Reply.Content)
	}
	if relay.lastText != "what is the answer?" {
		t.Errorf("relay got %q", relay.lastText)
	}

	stored, err := store.GetMessage(ctx, result.MessageID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if !stored.HasReply() || *stored.ReplyText != "the answer" {
		t.Errorf("stored reply mismatch: %v", stored.ReplyText)
	}
	if stored.TokensUsed != 42 {
		t.Errorf("expected 42 tokens recorded, got %d", stored.TokensUsed)
	}

	session, err := store.GetSession(ctx, result.SessionID, user.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.MessageCount != 1 {
		t.Errorf("expected message_count 1, got %d", session.MessageCount)
	}
}

func TestHandleTurnReusesSession(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{}
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	user, _ := svc.GetOrCreateUser(ctx, "", "")

	first, err := svc.HandleTurn(ctx, HandleTurnRequest{UserID: user.ID, Content: "first"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	second, err := svc.HandleTurn(ctx, HandleTurnRequest{
		UserID:    user.ID,
		SessionID: &first.SessionID,
		Content:   "second",
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("expected same session, got %d and %d", first.SessionID, second.SessionID)
	}

	session, _ := store.GetSession(ctx, first.SessionID, user.ID)
	if session.MessageCount != 2 {
		t.Errorf("expected message_count 2, got %d", session.MessageCount)
	}
}

func TestHandleTurnFallbackEchoesInput(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{} // no canned reply, falls back
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	user, _ := svc.GetOrCreateUser(ctx, "", "")
	result, err := svc.HandleTurn(ctx, HandleTurnRequest{UserID: user.ID, Content: "hello there"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if !result.Reply.Fallback {
		t.Error("expected fallback reply")
	}
	if !strings.Contains(result.Reply.Content, "hello there") {
		t.Errorf("fallback must echo the input, got %q", result.Reply.Content)
	}
	if !result.Persisted {
		t.Error("fallback replies are persisted like real ones")
	}

	// The fallback text must be readable back from history like any reply.
	messages, total, err := store.GetHistory(ctx, result.SessionID, 50, 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly 1 message, got %d", total)
	}
	if messages[0].ReplyText == nil || *messages[0].ReplyText != result.Reply.Content {
		t.Errorf("stored reply must equal the fallback text, got %v", messages[0].ReplyText)
	}
}

func TestConcurrentTurnsOnOneSession(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{reply: &llmrelay.Reply{Content: "answer", TokensUsed: 1}}
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	user, _ := svc.GetOrCreateUser(ctx, "", "")
	session, err := store.CreateSession(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, text := range []string{"turn A", "turn B"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := svc.HandleTurn(ctx, HandleTurnRequest{
				UserID:    user.ID,
				SessionID: &session.ID,
				Content:   text,
			})
			if err != nil {
				errs <- err
			}
		}(text)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID, user.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.MessageCount != 2 {
		t.Errorf("expected message_count 2 after two concurrent turns, got %d", got.MessageCount)
	}

	messages, total, err := store.GetHistory(ctx, session.ID, 50, 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if total != 2 || len(messages) != 2 {
		t.Fatalf("expected both messages in history, got %d", total)
	}
	for _, msg := range messages {
		if !msg.HasReply() {
			t.Errorf("message %d missing its reply", msg.ID)
		}
	}
}

func TestHandleTurnArchivedSessionSkipsRelay(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{}
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	user, _ := svc.GetOrCreateUser(ctx, "", "")
	session, _ := store.CreateSession(ctx, user.ID, "")
	if err := store.ArchiveSession(ctx, session.ID, user.ID); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}

	_, err := svc.HandleTurn(ctx, HandleTurnRequest{
		UserID:    user.ID,
		SessionID: &session.ID,
		Content:   "should not go out",
	})
	if !errors.Is(err, ErrSessionArchived) {
		t.Fatalf("expected ErrSessionArchived, got %v", err)
	}
	if relay.calls != 0 {
		t.Errorf("relay must not be called for a rejected turn, got %d calls", relay.calls)
	}
}

func TestRegenerateTurnOverwritesReply(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{reply: &llmrelay.Reply{Content: "first", TokensUsed: 10}}
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	user, _ := svc.GetOrCreateUser(ctx, "", "")
	result, err := svc.HandleTurn(ctx, HandleTurnRequest{UserID: user.ID, Content: "question"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	relay.reply = &llmrelay.Reply{Content: "second, improved", TokensUsed: 20}
	regen, err := svc.RegenerateTurn(ctx, result.MessageID, user.ID)
	if err != nil {
		t.Fatalf("RegenerateTurn failed: %v", err)
	}
	if regen.MessageID != result.MessageID {
		t.Errorf("regenerate must keep the message id, got %d", regen.MessageID)
	}

	stored, _ := store.GetMessage(ctx, result.MessageID)
	if *stored.ReplyText != "second, improved" {
		t.Errorf("expected overwritten reply, got %q", *stored.ReplyText)
	}
	if stored.RequestText != "question" {
		t.Errorf("request text must survive regeneration, got %q", stored.RequestText)
	}

	session, _ := store.GetSession(ctx, result.SessionID, user.ID)
	if session.MessageCount != 1 {
		t.Errorf("regenerate must not bump message_count, got %d", session.MessageCount)
	}
	if session.TotalTokens != 20 {
		t.Errorf("expected total_tokens 20, got %d", session.TotalTokens)
	}
}

func TestRegenerateTurnForeignMessage(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	relay := &fakeRelay{}
	svc := NewChatService(db, store, relay)
	ctx := context.Background()

	owner, _ := svc.GetOrCreateUser(ctx, "owner@example.com", "Owner")
	intruder, _ := svc.GetOrCreateUser(ctx, "intruder@example.com", "Intruder")

	result, err := svc.HandleTurn(ctx, HandleTurnRequest{UserID: owner.ID, Content: "private"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	_, err = svc.RegenerateTurn(ctx, result.MessageID, intruder.ID)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for foreign message, got %v", err)
	}
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	svc := NewChatService(db, store, &fakeRelay{})
	ctx := context.Background()

	first, err := svc.GetOrCreateUser(ctx, "same@example.com", "Same")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	second, err := svc.GetOrCreateUser(ctx, "same@example.com", "Different Name")
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same user, got %d and %d", first.ID, second.ID)
	}
}
