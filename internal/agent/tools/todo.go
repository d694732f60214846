package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Todo item statuses.
const (
	TodoPending    = "pending"
	TodoInProgress = "in_progress"
	TodoCompleted  = "completed"
)

// TodoItem is one entry on the session's working list.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// TodoStore holds the session-scoped todo list shared by todo_read and
// todo_write. It lives for one agent run; nothing is persisted.
type TodoStore struct {
	mu    sync.Mutex
	items []TodoItem
}

// NewTodoStore creates an empty store.
func NewTodoStore() *TodoStore {
	return &TodoStore{}
}

// Set replaces the whole list.
func (s *TodoStore) Set(items []TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

// Items returns a copy of the current list.
func (s *TodoStore) Items() []TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TodoItem, len(s.items))
	copy(out, s.items)
	return out
}

// renderTodos formats the list for the model.
func renderTodos(items []TodoItem) string {
	var b strings.Builder
	done := 0
	for _, item := range items {
		mark := " "
		switch item.Status {
		case TodoInProgress:
			mark = ">"
		case TodoCompleted:
			mark = "x"
			done++
		}
		fmt.Fprintf(&b, "[%s] %s\n", mark, item.Content)
	}
	fmt.Fprintf(&b, "(%d/%d completed)", done, len(items))
	return b.String()
}

// TodoReadTool returns the current todo list.
type TodoReadTool struct {
	store *TodoStore
}

// NewTodoReadTool creates a read tool over the shared store.
func NewTodoReadTool(store *TodoStore) *TodoReadTool {
	return &TodoReadTool{store: store}
}

// Name returns the tool name
func (t *TodoReadTool) Name() string {
	return "todo_read"
}

// Description returns the tool description
func (t *TodoReadTool) Description() string {
	return "Read the current todo list for this session."
}

// Schema returns the JSON schema for the tool input
func (t *TodoReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

// Execute returns the list
func (t *TodoReadTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	items := t.store.Items()
	if len(items) == 0 {
		return &Execution{Success: true, Output: "No todos recorded for this session."}, nil
	}
	return &Execution{Success: true, Output: renderTodos(items)}, nil
}

// TodoWriteTool replaces the todo list.
type TodoWriteTool struct {
	store *TodoStore
}

// NewTodoWriteTool creates a write tool over the shared store.
func NewTodoWriteTool(store *TodoStore) *TodoWriteTool {
	return &TodoWriteTool{store: store}
}

// Name returns the tool name
func (t *TodoWriteTool) Name() string {
	return "todo_write"
}

// Description returns the tool description
func (t *TodoWriteTool) Description() string {
	return `Replace the session todo list. Pass the full list every time.
Valid statuses: pending, in_progress, completed.`
}

// Schema returns the JSON schema for the tool input
func (t *TodoWriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The complete todo list",
				"items": {
					"type": "object",
					"properties": {
						"content": {"type": "string"},
						"status": {
							"type": "string",
							"enum": ["pending", "in_progress", "completed"]
						}
					},
					"required": ["content"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

// TodoWriteInput represents the tool input
type TodoWriteInput struct {
	Todos []TodoItem `json:"todos"`
}

// Execute replaces the list
func (t *TodoWriteTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in TodoWriteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}

	for i := range in.Todos {
		if strings.TrimSpace(in.Todos[i].Content) == "" {
			return &Execution{Error: fmt.Sprintf("Error: todo %d has empty content", i+1)}, nil
		}
		switch in.Todos[i].Status {
		case "":
			in.Todos[i].Status = TodoPending
		case TodoPending, TodoInProgress, TodoCompleted:
		default:
			return &Execution{
				Error: fmt.Sprintf("Error: todo %d has invalid status %q (valid: pending, in_progress, completed)", i+1, in.Todos[i].Status),
			}, nil
		}
	}

	t.store.Set(in.Todos)
	if len(in.Todos) == 0 {
		return &Execution{Success: true, Output: "Cleared the todo list."}, nil
	}
	return &Execution{Success: true, Output: fmt.Sprintf("Updated todo list (%d items)\n%s", len(in.Todos), renderTodos(in.Todos))}, nil
}
