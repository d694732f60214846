package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileTool creates or replaces files on disk.
type WriteFileTool struct {
	workDir string
}

// NewWriteFileTool creates a write tool rooted at workDir.
func NewWriteFileTool(workDir string) *WriteFileTool {
	return &WriteFileTool{workDir: workDir}
}

// Name returns the tool name
func (t *WriteFileTool) Name() string {
	return "write_file"
}

// Description returns the tool description
func (t *WriteFileTool) Description() string {
	return `Write content to a file, creating parent directories as needed.
Refuses to replace an existing file unless overwrite is true.`
}

// Schema returns the JSON schema for the tool input
func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "File path (absolute, or relative to the project directory)"
			},
			"content": {
				"type": "string",
				"description": "Full file content to write"
			},
			"overwrite": {
				"type": "boolean",
				"description": "Replace the file if it already exists (default: false)"
			}
		},
		"required": ["path", "content"]
	}`)
}

// WriteFileInput represents the tool input
type WriteFileInput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Overwrite bool   `json:"overwrite"`
}

// Execute writes the file
func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in WriteFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if in.Path == "" {
		return &Execution{Error: "Error: path is required"}, nil
	}

	path, err := ResolvePath(t.workDir, in.Path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}
	if err := validateFilePath(path, "write"); err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return &Execution{Error: fmt.Sprintf("Path is a directory: %s", path)}, nil
		}
		if !in.Overwrite {
			return &Execution{
				Error: fmt.Sprintf("File already exists: %s\nPass overwrite=true to replace it.", path),
			}, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &Execution{Error: fmt.Sprintf("Error creating directories: %v", err)}, nil
	}
	if err := os.WriteFile(path, []byte(in.Content), 0644); err != nil {
		return &Execution{Error: fmt.Sprintf("Error writing file: %v", err)}, nil
	}

	return &Execution{Success: true, Output: fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), path)}, nil
}
