package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EditFileTool performs exact find-and-replace edits. Several replacements
// in one call go through the edits array; either every edit applies or the
// file is left untouched.
type EditFileTool struct {
	workDir string
}

// NewEditFileTool creates an edit tool rooted at workDir.
func NewEditFileTool(workDir string) *EditFileTool {
	return &EditFileTool{workDir: workDir}
}

// Name returns the tool name
func (t *EditFileTool) Name() string {
	return "edit_file"
}

// Description returns the tool description
func (t *EditFileTool) Description() string {
	return `Edit a file by exact string replacement.
For a single replacement pass old_string and new_string.
To make several changes to one file in a single call, pass them in the edits array instead of issuing repeated single edits.
old_string must match the file content exactly, including whitespace.`
}

// Schema returns the JSON schema for the tool input
func (t *EditFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "File path (absolute, or relative to the project directory)"
			},
			"old_string": {
				"type": "string",
				"description": "Exact text to replace"
			},
			"new_string": {
				"type": "string",
				"description": "Replacement text"
			},
			"replace_all": {
				"type": "boolean",
				"description": "Replace every occurrence of old_string (default: false)"
			},
			"edits": {
				"type": "array",
				"description": "Batch of replacements applied in order; use this instead of repeated single-edit calls",
				"items": {
					"type": "object",
					"properties": {
						"old_string": {"type": "string"},
						"new_string": {"type": "string"},
						"replace_all": {"type": "boolean"}
					},
					"required": ["old_string", "new_string"]
				}
			}
		},
		"required": ["path"]
	}`)
}

// EditOp is a single replacement within an edit_file call.
type EditOp struct {
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

// EditFileInput represents the tool input
type EditFileInput struct {
	Path       string   `json:"path"`
	OldString  string   `json:"old_string"`
	NewString  string   `json:"new_string"`
	ReplaceAll bool     `json:"replace_all"`
	Edits      []EditOp `json:"edits"`
}

// Execute applies the edits
func (t *EditFileTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in EditFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if in.Path == "" {
		return &Execution{Error: "Error: path is required"}, nil
	}

	ops := in.Edits
	if len(ops) == 0 {
		if in.OldString == "" {
			return &Execution{Error: "Error: old_string is required (or pass an edits array)"}, nil
		}
		ops = []EditOp{{OldString: in.OldString, NewString: in.NewString, ReplaceAll: in.ReplaceAll}}
	}

	path, err := ResolvePath(t.workDir, in.Path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}
	if err := validateFilePath(path, "edit"); err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Execution{Error: fmt.Sprintf("File not found: %s", path)}, nil
		}
		return &Execution{Error: fmt.Sprintf("Error reading file: %v", err)}, nil
	}

	// Apply every edit to the in-memory copy first; the file is only
	// written once all of them succeed.
	content := string(data)
	replacements := 0
	for i, op := range ops {
		updated, n, opErr := applyEdit(content, op)
		if opErr != "" {
			if len(ops) > 1 {
				return &Execution{Error: fmt.Sprintf("Error in edit %d of %d: %s\nNo changes were written.", i+1, len(ops), opErr)}, nil
			}
			return &Execution{Error: "Error: " + opErr}, nil
		}
		content = updated
		replacements += n
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return &Execution{Error: fmt.Sprintf("Error writing file: %v", err)}, nil
	}

	return &Execution{Success: true, Output: fmt.Sprintf("Edited %s (%d replacements)", path, replacements)}, nil
}

// applyEdit performs one exact replacement, returning the new content and
// how many occurrences were replaced. A non-empty third return describes
// why the edit could not apply.
func applyEdit(content string, op EditOp) (string, int, string) {
	if op.OldString == "" {
		return content, 0, "old_string is empty"
	}
	if op.OldString == op.NewString {
		return content, 0, "old_string and new_string are identical"
	}

	count := strings.Count(content, op.OldString)
	if count == 0 {
		return content, 0, fmt.Sprintf("old_string not found in file.\n\nSearched for:\n```\n%s\n```\n\nMake sure the string matches exactly, including whitespace and indentation.", op.OldString)
	}
	if count > 1 && !op.ReplaceAll {
		return content, 0, fmt.Sprintf("old_string appears %d times in file. Use replace_all=true to replace all, or include more surrounding context to make it unique.", count)
	}

	if op.ReplaceAll {
		return strings.ReplaceAll(content, op.OldString, op.NewString), count, ""
	}
	return strings.Replace(content, op.OldString, op.NewString, 1), 1, ""
}
