package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maxlabs/maxagent/internal/agent/ai"
	"github.com/maxlabs/maxagent/internal/logging"
)

// Execution is the outcome of running a tool. Tool failures are data, not Go
// errors: a missing file or a rejected edit sets Success=false and Error, and
// the text still flows back to the model as a tool message.
type Execution struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text returns the content that should be sent back to the model.
func (e *Execution) Text() string {
	if e == nil {
		return ""
	}
	if e.Success {
		return e.Output
	}
	return e.Error
}

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a description for the AI
	Description() string

	// Schema returns the JSON schema for the tool's input
	Schema() json.RawMessage

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*Execution, error)
}

// Registry manages available tools
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewCodingRegistry creates a registry with the bundled coding tools.
// File paths in tool inputs resolve relative to projectDir.
func NewCodingRegistry(projectDir string) *Registry {
	r := NewRegistry()

	r.Register(NewReadFileTool(projectDir))
	r.Register(NewWriteFileTool(projectDir))
	r.Register(NewEditFileTool(projectDir))
	r.Register(NewListDirTool(projectDir))
	r.Register(NewSearchContentTool(projectDir))
	r.Register(NewFindFilesTool(projectDir))
	r.Register(NewGitStatusTool(projectDir))
	r.Register(NewGitDiffTool(projectDir))
	r.Register(NewGitLogTool(projectDir))
	r.Register(NewWebFetchTool())
	r.Register(NewExploreTool(projectDir))

	todos := NewTodoStore()
	r.Register(NewTodoReadTool(todos))
	r.Register(NewTodoWriteTool(todos))

	return r
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[tool.Name()]; ok {
		logging.Warnf("[Registry] tool %q already registered (%T), overwritten by %T",
			tool.Name(), existing, tool)
	}
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry by name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tools as AI tool definitions, sorted by name so
// request payloads are deterministic.
func (r *Registry) Definitions() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ai.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs a tool and returns the result. Unknown tools and Go errors
// out of a tool both become failed executions so the model can self-correct.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *Execution {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		logging.Warnf("[Registry] Unknown tool: %s", name)
		return &Execution{
			Error: fmt.Sprintf("TOOL ERROR: %q does not exist. Do NOT call it again.\nYour available tools are: %s",
				name, strings.Join(r.Names(), ", ")),
		}
	}

	logging.Debugf("[Registry] Executing tool: %s", name)

	result, err := tool.Execute(ctx, input)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error executing %s: %v", name, err)}
	}
	if result == nil {
		return &Execution{Error: fmt.Sprintf("Error: %s returned no result", name)}
	}
	return result
}
