package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesTool finds files by name pattern. Patterns with ** walk the tree
// recursively; plain patterns go through filepath.Glob.
type FindFilesTool struct {
	workDir string
}

// NewFindFilesTool creates a find tool rooted at workDir.
func NewFindFilesTool(workDir string) *FindFilesTool {
	return &FindFilesTool{workDir: workDir}
}

// Name returns the tool name
func (t *FindFilesTool) Name() string {
	return "find_files"
}

// Description returns the tool description
func (t *FindFilesTool) Description() string {
	return `Find files matching a glob pattern, newest first.
Supports ** for recursive matching (e.g. '**/*.go', 'src/**/*.ts').`
}

// Schema returns the JSON schema for the tool input
func (t *FindFilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "Glob pattern to match file names against"
			},
			"path": {
				"type": "string",
				"description": "Base directory to search from (default: the project directory)"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of files to return (default: 100)"
			}
		},
		"required": ["pattern"]
	}`)
}

// FindFilesInput represents the tool input
type FindFilesInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Limit   int    `json:"limit"`
}

// Execute finds matching files
func (t *FindFilesTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in FindFilesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if in.Pattern == "" {
		return &Execution{Error: "Error: pattern is required"}, nil
	}
	if in.Path == "" {
		in.Path = "."
	}
	if in.Limit <= 0 {
		in.Limit = 100
	}

	base, err := ResolvePath(t.workDir, in.Path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	var matches []string
	if strings.Contains(in.Pattern, "**") {
		matches, err = recursiveGlob(ctx, base, in.Pattern, in.Limit*4)
	} else {
		matches, err = filepath.Glob(filepath.Join(base, in.Pattern))
	}
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	// Newest first, directories excluded.
	type fileWithTime struct {
		path    string
		modTime int64
	}
	files := make([]fileWithTime, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err == nil && !info.IsDir() {
			files = append(files, fileWithTime{path: m, modTime: info.ModTime().UnixNano()})
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime > files[j].modTime
		}
		return files[i].path < files[j].path
	})
	if len(files) > in.Limit {
		files = files[:in.Limit]
	}

	if len(files) == 0 {
		return &Execution{Success: true, Output: fmt.Sprintf("No files found matching pattern: %s", in.Pattern)}, nil
	}

	var b strings.Builder
	for _, f := range files {
		b.WriteString(f.path)
		b.WriteString("\n")
	}
	return &Execution{Success: true, Output: strings.TrimSpace(b.String())}, nil
}

// recursiveGlob handles ** patterns by walking the tree and matching the
// part after ** against the file name or the path relative to the prefix.
func recursiveGlob(ctx context.Context, base, pattern string, limit int) ([]string, error) {
	parts := strings.SplitN(pattern, "**", 2)
	if len(parts) != 2 {
		return filepath.Glob(filepath.Join(base, pattern))
	}

	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	searchPath := base
	if prefix != "" {
		searchPath = filepath.Join(base, prefix)
	}

	var matches []string
	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipWalkDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if suffix != "" {
			matched, _ := filepath.Match(suffix, info.Name())
			if !matched {
				rel, _ := filepath.Rel(searchPath, path)
				matched, _ = filepath.Match(suffix, rel)
				if !matched {
					return nil
				}
			}
		}
		matches = append(matches, path)
		if len(matches) >= limit {
			return filepath.SkipAll
		}
		return nil
	})
	return matches, err
}
