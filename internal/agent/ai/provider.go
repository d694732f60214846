package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/maxlabs/maxagent/internal/agent/session"
)

// ToolCall represents a tool invocation from the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition describes a tool available to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Usage reports token consumption for a single request
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ChatRequest represents a request to the model provider
type ChatRequest struct {
	Messages    []session.Message `json:"messages"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	System      string            `json:"system,omitempty"` // Prepended to any system messages in Messages
	Model       string            `json:"model,omitempty"`  // Override the provider's default model
}

// ChatResponse is the provider's reply to a single request
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// Provider is a model backend capable of one chat round trip.
// Implementations must map the neutral message shape onto their wire format
// and filter tool results whose originating call is absent from the window.
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai", "ollama")
	ID() string

	// Chat sends the conversation and returns the model's reply
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// collectToolCallIDs gathers the IDs of every tool call issued by assistant
// messages in the window. Providers use this to drop orphaned tool results,
// which the APIs reject.
func collectToolCallIDs(messages []session.Message) map[string]bool {
	ids := make(map[string]bool)
	for _, msg := range messages {
		if msg.Role != session.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		var calls []session.ToolCall
		if err := json.Unmarshal(msg.ToolCalls, &calls); err != nil {
			continue
		}
		for _, c := range calls {
			ids[c.ID] = true
		}
	}
	return ids
}

// debugDump writes the request and response to a timestamped JSON file when
// MAXAGENT_DEBUG_AI=1 is set
func debugDump(provider string, req *ChatRequest, resp *ChatResponse, reqErr error) {
	if os.Getenv("MAXAGENT_DEBUG_AI") != "1" {
		return
	}
	entry := map[string]any{
		"provider": provider,
		"time":     time.Now().Format(time.RFC3339),
		"request":  req,
		"response": resp,
	}
	if reqErr != nil {
		entry["error"] = reqErr.Error()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return
	}
	path := fmt.Sprintf("maxagent-debug-%s-%d.json", provider, time.Now().UnixNano())
	_ = os.WriteFile(path, data, 0600)
}
