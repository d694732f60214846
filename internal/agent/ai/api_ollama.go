package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/logging"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "qwen3:4b"
)

// OllamaProvider implements chat against a local Ollama server
type OllamaProvider struct {
	client  *api.Client
	baseURL string
	model   string
}

// NewOllamaProvider creates a provider for a local Ollama server
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: 5 * time.Minute})
	return &OllamaProvider{
		client:  client,
		baseURL: baseURL,
		model:   model,
	}, nil
}

// ID returns the provider identifier
func (p *OllamaProvider) ID() string {
	return "ollama"
}

// Chat sends the conversation and returns the model's reply
func (p *OllamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	messages := p.buildMessages(req)

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = p.buildTools(req.Tools)
	}

	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		chatReq.Options = options
	}

	resp := &ChatResponse{}
	var content strings.Builder
	toolCallCounter := 0

	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)

		for _, tc := range r.Message.ToolCalls {
			toolCallCounter++
			argsJSON, err := json.Marshal(tc.Function.Arguments.ToMap())
			if err != nil {
				argsJSON = json.RawMessage(`{}`)
			}
			id := tc.ID
			if id == "" {
				// Ollama does not always assign call IDs; synthesize stable ones
				id = fmt.Sprintf("ollama-call-%d", toolCallCounter)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    id,
				Name:  tc.Function.Name,
				Input: argsJSON,
			})
		}

		if r.Done {
			resp.FinishReason = r.DoneReason
			resp.Usage = Usage{
				InputTokens:  r.Metrics.PromptEvalCount,
				OutputTokens: r.Metrics.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		perr := &ProviderError{Provider: "ollama", Message: err.Error()}
		debugDump("ollama", req, nil, perr)
		return nil, perr
	}

	resp.Content = content.String()
	debugDump("ollama", req, resp, nil)
	return resp, nil
}

// buildMessages converts session messages to Ollama format
func (p *OllamaProvider) buildMessages(req *ChatRequest) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, api.Message{
			Role:    "system",
			Content: req.System,
		})
	}

	respondedToolIDs := make(map[string]bool)
	for _, msg := range req.Messages {
		if msg.Role == session.RoleTool && len(msg.ToolResults) > 0 {
			var results []session.ToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
				for _, r := range results {
					respondedToolIDs[r.ToolCallID] = true
				}
			}
		}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, api.Message{
				Role:    "user",
				Content: msg.Content,
			})

		case session.RoleAssistant:
			assistantMsg := api.Message{
				Role:    "assistant",
				Content: msg.Content,
			}

			if len(msg.ToolCalls) > 0 {
				var toolCalls []session.ToolCall
				if err := json.Unmarshal(msg.ToolCalls, &toolCalls); err == nil {
					for _, tc := range toolCalls {
						if !respondedToolIDs[tc.ID] {
							logging.Debugf("[Ollama] Skipping tool_call without response: %s", tc.ID)
							continue
						}

						args := api.NewToolCallFunctionArguments()
						var argsMap map[string]any
						if err := json.Unmarshal(tc.Input, &argsMap); err == nil {
							for k, v := range argsMap {
								args.Set(k, v)
							}
						}

						assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, api.ToolCall{
							ID: tc.ID,
							Function: api.ToolCallFunction{
								Name:      tc.Name,
								Arguments: args,
							},
						})
					}
				}
			}

			if assistantMsg.Content != "" || len(assistantMsg.ToolCalls) > 0 {
				messages = append(messages, assistantMsg)
			}

		case session.RoleSystem:
			messages = append(messages, api.Message{
				Role:    "system",
				Content: msg.Content,
			})

		case session.RoleTool:
			if len(msg.ToolResults) == 0 {
				continue
			}
			var results []session.ToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err != nil {
				continue
			}
			for _, r := range results {
				messages = append(messages, api.Message{
					Role:       "tool",
					Content:    r.Content,
					ToolCallID: r.ToolCallID,
					ToolName:   p.findToolName(r.ToolCallID, req.Messages),
				})
			}
		}
	}

	return messages
}

// findToolName finds the tool name for a tool call ID by searching messages
func (p *OllamaProvider) findToolName(toolCallID string, msgs []session.Message) string {
	for _, msg := range msgs {
		if msg.Role != session.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		var calls []session.ToolCall
		if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
			for _, c := range calls {
				if c.ID == toolCallID {
					return c.Name
				}
			}
		}
	}
	return "unknown"
}

// buildTools converts tool definitions to Ollama format
func (p *OllamaProvider) buildTools(tools []ToolDefinition) api.Tools {
	result := make(api.Tools, 0, len(tools))

	for _, tool := range tools {
		var schemaRaw map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schemaRaw); err != nil {
			logging.Warnf("[Ollama] Failed to parse tool schema for %s: %v", tool.Name, err)
			continue
		}

		params := api.ToolFunctionParameters{
			Type: "object",
		}

		if props, ok := schemaRaw["properties"].(map[string]any); ok {
			propsMap := api.NewToolPropertiesMap()
			for name, propRaw := range props {
				if propObj, ok := propRaw.(map[string]any); ok {
					propsMap.Set(name, convertToolProperty(propObj))
				}
			}
			params.Properties = propsMap
		}

		if required, ok := schemaRaw["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}

		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	return result
}

// convertToolProperty converts a JSON schema property to Ollama format
func convertToolProperty(prop map[string]any) api.ToolProperty {
	result := api.ToolProperty{}

	if typeVal, ok := prop["type"].(string); ok {
		result.Type = api.PropertyType{typeVal}
	}
	if desc, ok := prop["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		result.Enum = enum
	}
	if items, ok := prop["items"]; ok {
		result.Items = items
	}

	return result
}

// CheckOllamaAvailable checks if an Ollama server is reachable
func CheckOllamaAvailable(baseURL string) bool {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// EnsureOllamaModel checks if a model exists locally and pulls it if not
func EnsureOllamaModel(baseURL, model string) error {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		return nil
	}

	models, err := ListOllamaModels(baseURL)
	if err != nil {
		return fmt.Errorf("cannot list Ollama models: %w", err)
	}
	for _, m := range models {
		// Ollama reports "qwen3:4b" or "qwen3:latest", match either form
		if m == model || strings.HasPrefix(m, model+":") || strings.TrimSuffix(m, ":latest") == model {
			return nil
		}
	}

	logging.Infof("[Ollama] Model %s not found locally, pulling...", model)

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return err
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: 30 * time.Minute})
	pullReq := &api.PullRequest{Model: model}

	var lastPct string
	err = client.Pull(context.Background(), pullReq, func(resp api.ProgressResponse) error {
		if resp.Total > 0 {
			pct := fmt.Sprintf("%d%%", resp.Completed*100/resp.Total)
			if pct != lastPct {
				lastPct = pct
				logging.Infof("[Ollama] Pulling %s: %s", model, pct)
			}
		} else if resp.Status != "" {
			logging.Infof("[Ollama] %s: %s", model, resp.Status)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", model, err)
	}

	logging.Infof("[Ollama] Model %s ready", model)
	return nil
}

// ListOllamaModels returns the models available on the server
func ListOllamaModels(baseURL string) ([]string, error) {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: 5 * time.Second})
	resp, err := client.List(context.Background())
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, m.Name)
	}

	return models, nil
}
