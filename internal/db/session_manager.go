package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no session.
var ErrNotFound = errors.New("session not found")

// SessionManager provides persistence for agent sessions and their messages
type SessionManager struct {
	db *sql.DB
}

// NewSessionManager creates a session manager backed by the given database
func NewSessionManager(db *sql.DB) *SessionManager {
	return &SessionManager{db: db}
}

// GetOrCreate returns the session for sessionKey, creating it if missing
func (m *SessionManager) GetOrCreate(sessionKey string) (*AgentSession, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is required")
	}

	s, err := m.GetByKey(sessionKey)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().Unix()
	_, err = m.db.Exec(
		`INSERT INTO sessions (id, session_key, summary, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		id, sessionKey, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &AgentSession{
		ID:         id,
		SessionKey: sessionKey,
		CreatedAt:  time.Unix(now, 0),
		UpdatedAt:  time.Unix(now, 0),
	}, nil
}

// GetByKey returns the session with the given key, or ErrNotFound.
func (m *SessionManager) GetByKey(sessionKey string) (*AgentSession, error) {
	row := m.db.QueryRow(
		`SELECT id, session_key, summary, created_at, updated_at FROM sessions WHERE session_key = ?`,
		sessionKey,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return s, nil
}

// Get returns the session with the given ID, or ErrNotFound.
func (m *SessionManager) Get(sessionID string) (*AgentSession, error) {
	row := m.db.QueryRow(
		`SELECT id, session_key, summary, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func scanSession(row *sql.Row) (*AgentSession, error) {
	var s AgentSession
	var summary sql.NullString
	var created, updated int64
	if err := row.Scan(&s.ID, &s.SessionKey, &summary, &created, &updated); err != nil {
		return nil, err
	}
	s.Summary = summary.String
	s.CreatedAt = time.Unix(created, 0)
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

// AppendMessage stores a message at the end of the session's log.
// Messages with no content, tool calls, or tool results are skipped.
func (m *SessionManager) AppendMessage(sessionID string, msg AgentMessage) error {
	if msg.Content == "" && len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
		return nil
	}

	var toolCalls, toolResults any
	if len(msg.ToolCalls) > 0 {
		toolCalls = string(msg.ToolCalls)
	}
	if len(msg.ToolResults) > 0 {
		toolResults = string(msg.ToolResults)
	}

	now := time.Now().Unix()
	_, err := m.db.Exec(
		`INSERT INTO agent_messages (session_id, role, content, tool_calls, tool_results, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, toolCalls, toolResults, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = m.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// GetMessages returns the session's messages in order. If limit > 0, only the
// most recent limit messages are returned. Orphaned tool results (whose tool
// call is no longer present) are filtered out.
func (m *SessionManager) GetMessages(sessionID string, limit int) ([]AgentMessage, error) {
	query := `SELECT id, role, content, tool_calls, tool_results, created_at FROM agent_messages WHERE session_id = ? ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT id, role, content, tool_calls, tool_results, created_at FROM (
			SELECT id, role, content, tool_calls, tool_results, created_at FROM agent_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []AgentMessage
	for rows.Next() {
		var msg AgentMessage
		var toolCalls, toolResults sql.NullString
		var created int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &toolCalls, &toolResults, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SessionID = sessionID
		msg.CreatedAt = time.Unix(created, 0)
		if toolCalls.Valid && toolCalls.String != "" {
			msg.ToolCalls = json.RawMessage(toolCalls.String)
		}
		if toolResults.Valid && toolResults.String != "" {
			msg.ToolResults = json.RawMessage(toolResults.String)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sanitizeAgentMessages(messages), nil
}

// sanitizeAgentMessages drops tool results whose originating tool call is not
// present in the window. Providers reject conversations where a tool result
// references an unknown call ID, which happens when a limit cuts the log
// between an assistant message and its results.
func sanitizeAgentMessages(messages []AgentMessage) []AgentMessage {
	seenToolCallIDs := make(map[string]bool)
	for _, msg := range messages {
		if msg.Role != RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		var calls []AgentToolCall
		if err := json.Unmarshal(msg.ToolCalls, &calls); err != nil {
			continue
		}
		for _, c := range calls {
			seenToolCallIDs[c.ID] = true
		}
	}

	sanitized := make([]AgentMessage, 0, len(messages))
	for _, msg := range messages {
		if len(msg.ToolResults) == 0 {
			sanitized = append(sanitized, msg)
			continue
		}

		var results []AgentToolResult
		if err := json.Unmarshal(msg.ToolResults, &results); err != nil {
			// Unparseable results are useless to the provider; keep the
			// message only if it carries content of its own
			if msg.Content != "" {
				msg.ToolResults = nil
				sanitized = append(sanitized, msg)
			}
			continue
		}

		valid := make([]AgentToolResult, 0, len(results))
		for _, r := range results {
			if seenToolCallIDs[r.ToolCallID] {
				valid = append(valid, r)
			}
		}

		if len(valid) == 0 {
			if msg.Content != "" {
				msg.ToolResults = nil
				sanitized = append(sanitized, msg)
			}
			continue
		}

		if len(valid) != len(results) {
			data, err := json.Marshal(valid)
			if err != nil {
				continue
			}
			msg.ToolResults = data
		}
		sanitized = append(sanitized, msg)
	}
	return sanitized
}

// GetSummary retrieves the rolling summary for a session (if any)
func (m *SessionManager) GetSummary(sessionID string) (string, error) {
	var summary sql.NullString
	err := m.db.QueryRow(`SELECT summary FROM sessions WHERE id = ?`, sessionID).Scan(&summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get summary: %w", err)
	}
	return summary.String, nil
}

// UpdateSummary replaces the rolling summary for a session
func (m *SessionManager) UpdateSummary(sessionID, summary string) error {
	_, err := m.db.Exec(`UPDATE sessions SET summary = ?, updated_at = ? WHERE id = ?`,
		summary, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return nil
}

// Reset deletes all messages and the summary for a session, keeping the session row
func (m *SessionManager) Reset(sessionID string) error {
	if _, err := m.db.Exec(`DELETE FROM agent_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return m.UpdateSummary(sessionID, "")
}

// ListSessions returns all sessions, most recently updated first
func (m *SessionManager) ListSessions() ([]AgentSession, error) {
	rows, err := m.db.Query(`
		SELECT s.id, s.session_key, s.summary, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM agent_messages am WHERE am.session_id = s.id)
		FROM sessions s ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []AgentSession
	for rows.Next() {
		var s AgentSession
		var summary sql.NullString
		var created, updated int64
		if err := rows.Scan(&s.ID, &s.SessionKey, &summary, &created, &updated, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Summary = summary.String
		s.CreatedAt = time.Unix(created, 0)
		s.UpdatedAt = time.Unix(updated, 0)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and all its messages
func (m *SessionManager) DeleteSession(sessionID string) error {
	if _, err := m.db.Exec(`DELETE FROM agent_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := m.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
