package db

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	sqlDB, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return NewSessionManager(sqlDB)
}

func TestGetOrCreate(t *testing.T) {
	m := newTestManager(t)

	s1, err := m.GetOrCreate("cli:default")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if s1.ID == "" {
		t.Error("expected non-empty session ID")
	}
	if s1.SessionKey != "cli:default" {
		t.Errorf("expected session key 'cli:default', got %s", s1.SessionKey)
	}

	s2, err := m.GetOrCreate("cli:default")
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if s2.ID != s1.ID {
		t.Errorf("expected same session on second lookup, got %s and %s", s1.ID, s2.ID)
	}

	if _, err := m.GetOrCreate(""); err == nil {
		t.Error("expected error for empty session key")
	}
}

func TestGetByKeyNotFound(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.GetByKey("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	created, err := m.GetOrCreate("real")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	found, err := m.GetByKey("real")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("expected session %s, got %s", created.ID, found.ID)
	}

	if _, err := m.Get("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestAppendAndGetMessages(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.GetOrCreate("test")

	msgs := []AgentMessage{
		{Role: RoleSystem, Content: "You are a coding assistant."},
		{Role: RoleUser, Content: "List the files"},
		{Role: RoleAssistant, ToolCalls: json.RawMessage(`[{"id":"call_1","name":"list_dir","input":{"path":"."}}]`)},
		{Role: RoleTool, ToolResults: json.RawMessage(`[{"tool_call_id":"call_1","content":"main.go"}]`)},
		{Role: RoleAssistant, Content: "There is one file: main.go"},
	}
	for _, msg := range msgs {
		if err := m.AppendMessage(s.ID, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	// Empty messages are skipped
	if err := m.AppendMessage(s.ID, AgentMessage{Role: RoleAssistant}); err != nil {
		t.Fatalf("AppendMessage of empty message failed: %v", err)
	}

	got, err := m.GetMessages(s.ID, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(got))
	}
	if got[0].Role != RoleSystem || got[4].Content != "There is one file: main.go" {
		t.Error("messages out of order")
	}
	if len(got[2].ToolCalls) == 0 {
		t.Error("expected tool calls to round-trip")
	}
}

func TestGetMessagesLimit(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.GetOrCreate("test")

	for i := 0; i < 10; i++ {
		content := "message"
		if i == 9 {
			content = "last"
		}
		if err := m.AppendMessage(s.ID, AgentMessage{Role: RoleUser, Content: content}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	got, err := m.GetMessages(s.ID, 3)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[2].Content != "last" {
		t.Errorf("expected newest message last, got %q", got[2].Content)
	}
}

func TestGetMessagesDropsOrphanedToolResults(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.GetOrCreate("test")

	// A tool result whose assistant tool call was never stored
	if err := m.AppendMessage(s.ID, AgentMessage{
		Role:        RoleTool,
		ToolResults: json.RawMessage(`[{"tool_call_id":"call_missing","content":"orphan"}]`),
	}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := m.AppendMessage(s.ID, AgentMessage{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	got, err := m.GetMessages(s.ID, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected orphaned tool result to be dropped, got %d messages", len(got))
	}
	if got[0].Content != "hello" {
		t.Errorf("expected surviving message 'hello', got %q", got[0].Content)
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.GetOrCreate("test")

	summary, err := m.GetSummary(s.ID)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if summary != "" {
		t.Errorf("expected empty summary for new session, got %q", summary)
	}

	if err := m.UpdateSummary(s.ID, "User is building a parser."); err != nil {
		t.Fatalf("UpdateSummary failed: %v", err)
	}

	summary, err = m.GetSummary(s.ID)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if summary != "User is building a parser." {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestResetClearsMessagesAndSummary(t *testing.T) {
	m := newTestManager(t)
	s, _ := m.GetOrCreate("test")

	m.AppendMessage(s.ID, AgentMessage{Role: RoleUser, Content: "hello"})
	m.UpdateSummary(s.ID, "some summary")

	if err := m.Reset(s.ID); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	msgs, _ := m.GetMessages(s.ID, 0)
	if len(msgs) != 0 {
		t.Errorf("expected no messages after reset, got %d", len(msgs))
	}
	summary, _ := m.GetSummary(s.ID)
	if summary != "" {
		t.Errorf("expected empty summary after reset, got %q", summary)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	m := newTestManager(t)

	a, _ := m.GetOrCreate("alpha")
	m.GetOrCreate("beta")
	m.AppendMessage(a.ID, AgentMessage{Role: RoleUser, Content: "hi"})

	sessions, err := m.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	var alpha *AgentSession
	for i := range sessions {
		if sessions[i].SessionKey == "alpha" {
			alpha = &sessions[i]
		}
	}
	if alpha == nil {
		t.Fatal("session 'alpha' not listed")
	}
	if alpha.MessageCount != 1 {
		t.Errorf("expected message count 1, got %d", alpha.MessageCount)
	}

	if err := m.DeleteSession(a.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	sessions, _ = m.ListSessions()
	if len(sessions) != 1 {
		t.Errorf("expected 1 session after delete, got %d", len(sessions))
	}
}
