package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// maxReadBytes caps how much of a file a single full read returns.
const maxReadBytes = 256 * 1024

// ReadFileTool reads files from disk. A full read (no offset/limit) returns
// the file body verbatim, so the dispatcher can cache it and keep the copy
// current across writes.
type ReadFileTool struct {
	workDir string
}

// NewReadFileTool creates a read tool rooted at workDir.
func NewReadFileTool(workDir string) *ReadFileTool {
	return &ReadFileTool{workDir: workDir}
}

// Name returns the tool name
func (t *ReadFileTool) Name() string {
	return "read_file"
}

// Description returns the tool description
func (t *ReadFileTool) Description() string {
	return `Read a file from disk and return its content.
Without offset/limit the whole file is returned verbatim.
Use offset (1-based line) and limit (line count) to read a slice of a large file.`
}

// Schema returns the JSON schema for the tool input
func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "File path (absolute, or relative to the project directory)"
			},
			"offset": {
				"type": "integer",
				"description": "First line to read, 1-based (omit to read the whole file)"
			},
			"limit": {
				"type": "integer",
				"description": "Number of lines to read from offset"
			}
		},
		"required": ["path"]
	}`)
}

// ReadFileInput represents the tool input
type ReadFileInput struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// Execute reads the file
func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in ReadFileInput
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
	if err := validateFilePath(path, "read"); err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Execution{Error: fmt.Sprintf("File not found: %s", path)}, nil
		}
		return &Execution{Error: fmt.Sprintf("Error accessing file: %v", err)}, nil
	}
	if info.IsDir() {
		return &Execution{
			Error: fmt.Sprintf("Path is a directory: %s\nUse list_dir to see its contents", path),
		}, nil
	}

	if in.Offset > 0 || in.Limit > 0 {
		return t.readSlice(path, in.Offset, in.Limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error reading file: %v", err)}, nil
	}
	if len(data) == 0 {
		return &Execution{Success: true, Output: "(file is empty)"}, nil
	}
	if len(data) > maxReadBytes {
		return &Execution{
			Success: true,
			Output: string(data[:maxReadBytes]) +
				fmt.Sprintf("\n... [truncated: showing %d of %d bytes, use offset/limit for the rest]", maxReadBytes, len(data)),
		}, nil
	}
	return &Execution{Success: true, Output: string(data)}, nil
}

// readSlice returns limit lines starting at the 1-based offset line.
func (t *ReadFileTool) readSlice(path string, offset, limit int) (*Execution, error) {
	if offset <= 0 {
		offset = 1
	}
	if limit <= 0 {
		limit = 2000
	}

	file, err := os.Open(path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error opening file: %v", err)}, nil
	}
	defer file.Close()

	var result strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	lineNum := 0
	linesRead := 0
	truncated := false

	for scanner.Scan() {
		lineNum++
		if lineNum < offset {
			continue
		}
		if linesRead >= limit {
			truncated = true
			break
		}
		result.WriteString(scanner.Text())
		result.WriteString("\n")
		linesRead++
	}
	if err := scanner.Err(); err != nil {
		return &Execution{Error: fmt.Sprintf("Error reading file: %v", err)}, nil
	}

	if linesRead == 0 {
		if offset > 1 {
			return &Execution{Success: true, Output: fmt.Sprintf("(file has fewer than %d lines)", offset)}, nil
		}
		return &Execution{Success: true, Output: "(file is empty)"}, nil
	}

	content := result.String()
	if truncated {
		content += fmt.Sprintf("... (showing lines %d-%d; file continues)", offset, offset+linesRead-1)
	}
	return &Execution{Success: true, Output: content}, nil
}
