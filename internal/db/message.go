package db

import (
	"encoding/json"
	"time"
)

// Message roles stored in agent_messages.role
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// AgentMessage is a message in an agent conversation
type AgentMessage struct {
	ID          int64           `json:"id,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Role        string          `json:"role"` // user, assistant, system, tool
	Content     string          `json:"content,omitempty"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`   // JSON array of AgentToolCall
	ToolResults json.RawMessage `json:"tool_results,omitempty"` // JSON array of AgentToolResult
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// AgentToolCall is a tool call requested by the model
type AgentToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// AgentToolResult is the outcome of a tool call
type AgentToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// AgentSession is a conversation session
type AgentSession struct {
	ID           string    `json:"id"`
	SessionKey   string    `json:"session_key"`
	Summary      string    `json:"summary,omitempty"`
	MessageCount int64     `json:"message_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
