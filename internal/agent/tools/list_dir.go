package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// maxDirEntries caps how many entries a single listing returns.
const maxDirEntries = 500

// ListDirTool lists directory contents.
type ListDirTool struct {
	workDir string
}

// NewListDirTool creates a list tool rooted at workDir.
func NewListDirTool(workDir string) *ListDirTool {
	return &ListDirTool{workDir: workDir}
}

// Name returns the tool name
func (t *ListDirTool) Name() string {
	return "list_dir"
}

// Description returns the tool description
func (t *ListDirTool) Description() string {
	return "List the entries of a directory. Directories are marked with a trailing slash; hidden entries are skipped unless all is true."
}

// Schema returns the JSON schema for the tool input
func (t *ListDirTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Directory to list (default: the project directory)"
			},
			"all": {
				"type": "boolean",
				"description": "Include hidden entries (default: false)"
			}
		}
	}`)
}

// ListDirInput represents the tool input
type ListDirInput struct {
	Path string `json:"path"`
	All  bool   `json:"all"`
}

// Execute lists the directory
func (t *ListDirTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in ListDirInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if in.Path == "" {
		in.Path = "."
	}

	path, err := ResolvePath(t.workDir, in.Path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Execution{Error: fmt.Sprintf("Directory not found: %s", path)}, nil
		}
		return &Execution{Error: fmt.Sprintf("Error reading directory: %v", err)}, nil
	}

	var b strings.Builder
	listed := 0
	skipped := 0
	for _, entry := range entries {
		name := entry.Name()
		if !in.All && strings.HasPrefix(name, ".") {
			continue
		}
		if listed >= maxDirEntries {
			skipped++
			continue
		}
		if entry.IsDir() {
			b.WriteString(name)
			b.WriteString("/\n")
		} else {
			size := int64(0)
			if info, err := entry.Info(); err == nil {
				size = info.Size()
			}
			fmt.Fprintf(&b, "%s (%d bytes)\n", name, size)
		}
		listed++
	}

	if listed == 0 {
		return &Execution{Success: true, Output: "(empty directory)"}, nil
	}
	if skipped > 0 {
		fmt.Fprintf(&b, "... (%d more entries)", skipped)
	}
	return &Execution{Success: true, Output: strings.TrimSpace(b.String())}, nil
}
