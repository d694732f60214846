package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/logging"
)

const defaultMaxTokens = 8192

// AnthropicProvider implements the Anthropic Claude API using the official SDK
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client: client,
		model:  model,
	}
}

// ID returns the provider identifier
func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

// Chat sends the conversation and returns the model's reply
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	messages, err := p.buildMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(defaultMaxTokens),
		Messages:  messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	// System instructions come from the request field plus any system-role
	// messages in the window (memory blocks travel as system messages)
	if system := buildSystemText(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			var schema map[string]interface{}
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				logging.Warnf("[Anthropic] Failed to parse tool schema for %s: %v", tool.Name, err)
				continue
			}

			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			}
			if required, ok := schema["required"].([]interface{}); ok {
				reqStrings := make([]string, len(required))
				for i, r := range required {
					reqStrings[i], _ = r.(string)
				}
				toolParam.InputSchema.Required = reqStrings
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		perr := &ProviderError{Provider: "anthropic", Message: err.Error()}
		debugDump("anthropic", req, nil, perr)
		return nil, perr
	}

	resp := &ChatResponse{
		FinishReason: string(message.StopReason),
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}

	var content strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.JSON.Input.Raw()),
			})
		}
	}
	resp.Content = content.String()

	debugDump("anthropic", req, resp, nil)
	return resp, nil
}

// buildSystemText joins the request's System field with system-role messages
func buildSystemText(req *ChatRequest) string {
	parts := make([]string, 0, 2)
	if req.System != "" {
		parts = append(parts, req.System)
	}
	for _, msg := range req.Messages {
		if msg.Role == session.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// buildMessages converts session messages to Anthropic format
func (p *AnthropicProvider) buildMessages(msgs []session.Message) ([]anthropic.MessageParam, error) {
	// Collect tool call and result IDs so orphans on either side can be
	// filtered; the API rejects unmatched tool_use / tool_result blocks
	allToolCallIDs := collectToolCallIDs(msgs)
	respondedToolIDs := make(map[string]bool)
	for _, msg := range msgs {
		if msg.Role != session.RoleTool || len(msg.ToolResults) == 0 {
			continue
		}
		var results []session.ToolResult
		if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
			for _, r := range results {
				respondedToolIDs[r.ToolCallID] = true
			}
		}
	}

	var result []anthropic.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case session.RoleUser:
			// The API rejects empty text blocks
			if msg.Content == "" {
				continue
			}
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		case session.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion

			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}

			if len(msg.ToolCalls) > 0 {
				var toolCalls []session.ToolCall
				if err := json.Unmarshal(msg.ToolCalls, &toolCalls); err == nil {
					for _, tc := range toolCalls {
						if !respondedToolIDs[tc.ID] {
							logging.Debugf("[Anthropic] Skipping tool_use without response: %s", tc.ID)
							continue
						}

						var input map[string]interface{}
						if err := json.Unmarshal(tc.Input, &input); err != nil {
							input = map[string]interface{}{}
						}
						blocks = append(blocks, anthropic.ContentBlockParamUnion{
							OfToolUse: &anthropic.ToolUseBlockParam{
								ID:    tc.ID,
								Name:  tc.Name,
								Input: input,
							},
						})
					}
				}
			}

			if len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}

		case session.RoleTool:
			// Tool results travel as user messages with tool_result blocks
			if len(msg.ToolResults) == 0 {
				continue
			}
			var results []session.ToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err != nil {
				continue
			}
			var blocks []anthropic.ContentBlockParamUnion
			for _, r := range results {
				if !allToolCallIDs[r.ToolCallID] {
					logging.Debugf("[Anthropic] Skipping orphaned tool_result: %s", r.ToolCallID)
					continue
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(
					r.ToolCallID,
					r.Content,
					r.IsError,
				))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}

		case session.RoleSystem:
			// Handled via params.System
			continue
		}
	}

	return result, nil
}
