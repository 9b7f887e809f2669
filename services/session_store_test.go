package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devashish08/chatbot-api/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// An in-memory sqlite database exists per connection, so the pool must
	// stay at a single connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.User{}, &model.ChatSession{}, &model.Message{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	return db
}

func newTestUser(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()

	user := model.User{Email: "test@example.com", Name: "Test User"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return &user
}

func TestCreateSessionDefaults(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.Title == "" {
		t.Error("expected a generated default title")
	}
	if session.Status != model.SessionStatusActive {
		t.Errorf("expected status %q, got %q", model.SessionStatusActive, session.Status)
	}
	if session.MessageCount != 0 || session.TotalTokens != 0 {
		t.Errorf("expected zeroed counters, got count=%d tokens=%d", session.MessageCount, session.TotalTokens)
	}

	named, err := store.CreateSession(ctx, user.ID, "My Chat")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if named.Title != "My Chat" {
		t.Errorf("expected title to be kept, got %q", named.Title)
	}
}

func TestMessageCountTracksCompletedPairs(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	msg1, err := store.AppendMessage(ctx, session.ID, user.ID, "first question", false, nil)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	// Appending alone does not complete a pair.
	got, err := store.GetSession(ctx, session.ID, user.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.MessageCount != 0 {
		t.Errorf("expected message_count 0 before reply, got %d", got.MessageCount)
	}

	if err := store.FillReply(ctx, msg1.ID, "first answer", 12, 0.5); err != nil {
		t.Fatalf("FillReply failed: %v", err)
	}

	msg2, err := store.AppendMessage(ctx, session.ID, user.ID, "second question", false, nil)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := store.FillReply(ctx, msg2.ID, "second answer", 8, 0.4); err != nil {
		t.Fatalf("FillReply failed: %v", err)
	}

	got, err = store.GetSession(ctx, session.ID, user.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.MessageCount != 2 {
		t.Errorf("expected message_count 2, got %d", got.MessageCount)
	}
	if got.TotalTokens != 20 {
		t.Errorf("expected total_tokens 20, got %d", got.TotalTokens)
	}
}

func TestFillReplyIsWriteOnce(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, user.ID, "")
	msg, err := store.AppendMessage(ctx, session.ID, user.ID, "question", false, nil)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if err := store.FillReply(ctx, msg.ID, "original answer", 10, 0.5); err != nil {
		t.Fatalf("FillReply failed: %v", err)
	}

	err = store.FillReply(ctx, msg.ID, "sneaky overwrite", 99, 0.1)
	if !errors.Is(err, ErrReplyAlreadySet) {
		t.Fatalf("expected ErrReplyAlreadySet, got %v", err)
	}

	stored, err := store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if stored.ReplyText == nil || *stored.ReplyText != "original answer" {
		t.Errorf("first reply must survive a second fill, got %v", stored.ReplyText)
	}

	got, _ := store.GetSession(ctx, session.ID, user.ID)
	if got.MessageCount != 1 {
		t.Errorf("failed fill must not bump message_count, got %d", got.MessageCount)
	}
}

func TestFillReplyUnknownMessage(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)

	err := store.FillReply(context.Background(), 9999, "answer", 1, 0.1)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestRegenerateReplyAdjustsTokens(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, user.ID, "")
	msg, _ := store.AppendMessage(ctx, session.ID, user.ID, "question", false, nil)
	if err := store.FillReply(ctx, msg.ID, "first answer", 10, 0.5); err != nil {
		t.Fatalf("FillReply failed: %v", err)
	}

	if err := store.RegenerateReply(ctx, msg.ID, "better answer", 25, 0.7); err != nil {
		t.Fatalf("RegenerateReply failed: %v", err)
	}

	stored, _ := store.GetMessage(ctx, msg.ID)
	if stored.ReplyText == nil || *stored.ReplyText != "better answer" {
		t.Errorf("expected rewritten reply, got %v", stored.ReplyText)
	}
	if stored.RequestText != "question" {
		t.Errorf("request text must be untouched, got %q", stored.RequestText)
	}

	got, _ := store.GetSession(ctx, session.ID, user.ID)
	if got.MessageCount != 1 {
		t.Errorf("regenerate must not change message_count, got %d", got.MessageCount)
	}
	if got.TotalTokens != 25 {
		t.Errorf("expected total_tokens 25 after regenerate, got %d", got.TotalTokens)
	}
}

func TestArchivedSessionRejectsMessages(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, user.ID, "")
	msg, _ := store.AppendMessage(ctx, session.ID, user.ID, "before archive", false, nil)
	store.FillReply(ctx, msg.ID, "answer", 5, 0.2)

	if err := store.ArchiveSession(ctx, session.ID, user.ID); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}

	_, err := store.AppendMessage(ctx, session.ID, user.ID, "after archive", false, nil)
	if !errors.Is(err, ErrSessionArchived) {
		t.Fatalf("expected ErrSessionArchived, got %v", err)
	}

	// History stays readable while archived.
	messages, total, err := store.GetHistory(ctx, session.ID, 50, 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if total != 1 || len(messages) != 1 {
		t.Errorf("expected 1 message in archived session, got %d", total)
	}

	if err := store.RestoreSession(ctx, session.ID, user.ID); err != nil {
		t.Fatalf("RestoreSession failed: %v", err)
	}
	if _, err := store.AppendMessage(ctx, session.ID, user.ID, "after restore", false, nil); err != nil {
		t.Fatalf("AppendMessage after restore failed: %v", err)
	}
}

func TestSessionOwnership(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	owner := newTestUser(t, db)
	ctx := context.Background()

	other := model.User{Email: "other@example.com", Name: "Other"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("failed to create second user: %v", err)
	}

	session, _ := store.CreateSession(ctx, owner.ID, "")

	if _, err := store.GetSession(ctx, session.ID, other.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for foreign session, got %v", err)
	}
	if _, err := store.AppendMessage(ctx, session.ID, other.ID, "hi", false, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for foreign append, got %v", err)
	}
	if err := store.DeleteSession(ctx, session.ID, other.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for foreign delete, got %v", err)
	}
}

func TestDeleteSessionLeavesNoOrphans(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, user.ID, "")
	for i := 0; i < 3; i++ {
		msg, err := store.AppendMessage(ctx, session.ID, user.ID, "question", false, nil)
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		store.FillReply(ctx, msg.ID, "answer", 5, 0.1)
	}

	if err := store.DeleteSession(ctx, session.ID, user.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	var orphans int64
	if err := db.Model(&model.Message{}).Where("session_id = ?", session.ID).Count(&orphans).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected 0 orphaned messages, got %d", orphans)
	}

	if _, err := store.GetSession(ctx, session.ID, user.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestListSessionsOrderAndFilter(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	first, _ := store.CreateSession(ctx, user.ID, "oldest")
	second, _ := store.CreateSession(ctx, user.ID, "archived one")
	third, _ := store.CreateSession(ctx, user.ID, "newest")

	// Force distinct activity times; sub-second inserts can tie otherwise.
	base := time.Now().Add(-time.Hour)
	for i, id := range []uint{first.ID, second.ID, third.ID} {
		ts := base.Add(time.Duration(i) * time.Minute)
		if err := db.Model(&model.ChatSession{}).Where("id = ?", id).
			UpdateColumn("updated_at", ts).Error; err != nil {
			t.Fatalf("failed to set updated_at: %v", err)
		}
	}

	if err := store.ArchiveSession(ctx, second.ID, user.ID); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}

	sessions, total, err := store.ListSessions(ctx, user.ID, "", 10, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	// Archive bumped the second session's updated_at, so it sorts first.
	if sessions[0].ID != second.ID {
		t.Errorf("expected most recently touched session first, got %d", sessions[0].ID)
	}

	active, total, err := store.ListSessions(ctx, user.ID, model.SessionStatusActive, 10, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 2 || len(active) != 2 {
		t.Errorf("expected 2 active sessions, got total=%d len=%d", total, len(active))
	}

	paged, total, err := store.ListSessions(ctx, user.ID, "", 2, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if total != 3 || len(paged) != 2 {
		t.Errorf("expected total 3 with page of 2, got total=%d len=%d", total, len(paged))
	}
}

func TestGetHistoryOldestFirst(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	session, _ := store.CreateSession(ctx, user.ID, "")
	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		msg, err := store.AppendMessage(ctx, session.ID, user.ID, text, false, nil)
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		store.FillReply(ctx, msg.ID, "answer to "+text, 1, 0.1)
	}

	messages, total, err := store.GetHistory(ctx, session.ID, 50, 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 messages, got %d", total)
	}
	for i, text := range texts {
		if messages[i].RequestText != text {
			t.Errorf("position %d: expected %q, got %q", i, text, messages[i].RequestText)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	user := newTestUser(t, db)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -60)
	horizon := time.Now().AddDate(0, 0, -30)

	// Session with only expired messages, itself untouched since the horizon.
	dead, _ := store.CreateSession(ctx, user.ID, "dead")
	deadMsg, _ := store.AppendMessage(ctx, dead.ID, user.ID, "old question", false, nil)
	store.FillReply(ctx, deadMsg.ID, "old answer", 5, 0.1)

	// Session with one expired and one fresh message survives with
	// recomputed counters.
	mixed, _ := store.CreateSession(ctx, user.ID, "mixed")
	expiredMsg, _ := store.AppendMessage(ctx, mixed.ID, user.ID, "expired", false, nil)
	store.FillReply(ctx, expiredMsg.ID, "expired answer", 10, 0.1)
	freshMsg, _ := store.AppendMessage(ctx, mixed.ID, user.ID, "fresh", false, nil)
	store.FillReply(ctx, freshMsg.ID, "fresh answer", 7, 0.1)

	for _, id := range []uint{deadMsg.ID, expiredMsg.ID} {
		if err := db.Model(&model.Message{}).Where("id = ?", id).
			UpdateColumn("created_at", old).Error; err != nil {
			t.Fatalf("failed to age message: %v", err)
		}
	}
	if err := db.Model(&model.ChatSession{}).Where("id = ?", dead.ID).
		UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("failed to age session: %v", err)
	}

	result, err := store.SweepExpired(ctx, horizon)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if result.MessagesDeleted != 2 {
		t.Errorf("expected 2 messages deleted, got %d", result.MessagesDeleted)
	}
	if result.SessionsDeleted != 1 {
		t.Errorf("expected 1 session deleted, got %d", result.SessionsDeleted)
	}

	if _, err := store.GetSession(ctx, dead.ID, user.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected dead session gone, got %v", err)
	}

	survivor, err := store.GetSession(ctx, mixed.ID, user.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if survivor.MessageCount != 1 {
		t.Errorf("expected recomputed message_count 1, got %d", survivor.MessageCount)
	}
	if survivor.TotalTokens != 7 {
		t.Errorf("expected recomputed total_tokens 7, got %d", survivor.TotalTokens)
	}

	// A second sweep over clean data is a no-op.
	again, err := store.SweepExpired(ctx, horizon)
	if err != nil {
		t.Fatalf("second SweepExpired failed: %v", err)
	}
	if again.MessagesDeleted != 0 || again.SessionsDeleted != 0 {
		t.Errorf("expected idempotent sweep, got messages=%d sessions=%d",
			again.MessagesDeleted, again.SessionsDeleted)
	}
}
