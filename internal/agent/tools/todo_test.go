package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestTodoRoundTrip(t *testing.T) {
	store := NewTodoStore()
	read := NewTodoReadTool(store)
	write := NewTodoWriteTool(store)

	result, err := read.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Output, "No todos") {
		t.Errorf("empty store should say so, got %q", result.Output)
	}

	input, _ := json.Marshal(TodoWriteInput{Todos: []TodoItem{
		{Content: "write tests", Status: TodoInProgress},
		{Content: "ship it"},
	}})
	result, err = write.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	result, _ = read.Execute(context.Background(), json.RawMessage(`{}`))
	if !strings.Contains(result.Output, "[>] write tests") {
		t.Errorf("expected in-progress marker, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "[ ] ship it") {
		t.Errorf("missing status should default to pending, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "(0/2 completed)") {
		t.Errorf("expected completion summary, got %q", result.Output)
	}
}

func TestTodoWriteRejectsInvalidStatus(t *testing.T) {
	write := NewTodoWriteTool(NewTodoStore())

	input, _ := json.Marshal(TodoWriteInput{Todos: []TodoItem{{Content: "x", Status: "done"}}})
	result, err := write.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected rejection of invalid status")
	}
	if !strings.Contains(result.Error, "invalid status") {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestTodoWriteClears(t *testing.T) {
	store := NewTodoStore()
	store.Set([]TodoItem{{Content: "old", Status: TodoPending}})

	write := NewTodoWriteTool(store)
	result, err := write.Execute(context.Background(), json.RawMessage(`{"todos": []}`))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(store.Items()) != 0 {
		t.Errorf("store should be empty, has %d items", len(store.Items()))
	}
}
