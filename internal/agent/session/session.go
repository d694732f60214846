// Package session provides the agent-facing view of the session manager.
// The canonical implementation is in internal/db/session_manager.go
package session

import (
	"database/sql"
	"fmt"

	"github.com/maxlabs/maxagent/internal/db"
)

type (
	Manager    = db.SessionManager
	Session    = db.AgentSession
	Message    = db.AgentMessage
	ToolCall   = db.AgentToolCall
	ToolResult = db.AgentToolResult
)

// Message roles
const (
	RoleSystem    = db.RoleSystem
	RoleUser      = db.RoleUser
	RoleAssistant = db.RoleAssistant
	RoleTool      = db.RoleTool
)

// New creates a session manager from a raw database connection
func New(sqlDB *sql.DB) (*Manager, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return db.NewSessionManager(sqlDB), nil
}
