package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// SearchContentTool searches file contents with regular expressions.
// It shells out to ripgrep when available and falls back to a pure-Go walk.
type SearchContentTool struct {
	workDir    string
	hasRipgrep bool
}

// NewSearchContentTool creates a search tool rooted at workDir.
func NewSearchContentTool(workDir string) *SearchContentTool {
	_, err := exec.LookPath("rg")
	return &SearchContentTool{workDir: workDir, hasRipgrep: err == nil}
}

// Name returns the tool name
func (t *SearchContentTool) Name() string {
	return "search_content"
}

// Description returns the tool description
func (t *SearchContentTool) Description() string {
	return `Search for a regular expression in file contents.
Returns matching lines as path:line: content.
Use glob to restrict which files are searched.`
}

// Schema returns the JSON schema for the tool input
func (t *SearchContentTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "Regular expression pattern to search for"
			},
			"path": {
				"type": "string",
				"description": "File or directory to search in (default: the project directory)"
			},
			"glob": {
				"type": "string",
				"description": "Glob pattern to filter files (e.g. '*.go')"
			},
			"case_insensitive": {
				"type": "boolean",
				"description": "Make the search case-insensitive (default: false)"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of matches to return (default: 100)"
			}
		},
		"required": ["pattern"]
	}`)
}

// SearchContentInput represents the tool input
type SearchContentInput struct {
	Pattern         string `json:"pattern"`
	Path            string `json:"path"`
	Glob            string `json:"glob"`
	CaseInsensitive bool   `json:"case_insensitive"`
	Limit           int    `json:"limit"`
}

// contentMatch is a single matching line.
type contentMatch struct {
	file    string
	line    int
	content string
}

// Execute searches for the pattern
func (t *SearchContentTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in SearchContentInput
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

	path, err := ResolvePath(t.workDir, in.Path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	// Block roots that would sweep the whole filesystem.
	for _, broad := range []string{"/", "/usr", "/var", "/etc", "/bin", "/sbin", "/opt", "/home"} {
		if path == broad {
			return &Execution{
				Error: fmt.Sprintf("Error: cannot search %q, path is too broad. Specify a more specific directory.", in.Path),
			}, nil
		}
	}

	if t.hasRipgrep {
		return t.searchWithRipgrep(ctx, &in, path)
	}
	return t.searchWithGo(ctx, &in, path)
}

// searchWithRipgrep uses the rg command for fast searching
func (t *SearchContentTool) searchWithRipgrep(ctx context.Context, in *SearchContentInput, path string) (*Execution, error) {
	args := []string{
		"--line-number",
		"--no-heading",
		"--color=never",
		fmt.Sprintf("--max-count=%d", in.Limit),
	}
	if in.CaseInsensitive {
		args = append(args, "-i")
	}
	if in.Glob != "" {
		args = append(args, "--glob", in.Glob)
	}
	args = append(args, in.Pattern, path)

	cmd := exec.CommandContext(ctx, "rg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// rg exits 1 when nothing matched; that is not an error.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return &Execution{Success: true, Output: fmt.Sprintf("No matches found for pattern: %s", in.Pattern)}, nil
		}
		if ctx.Err() != nil {
			return &Execution{Error: "Error: search timed out or was cancelled"}, nil
		}
		if stderr.Len() > 0 {
			return &Execution{Error: fmt.Sprintf("Error: %s", strings.TrimSpace(stderr.String()))}, nil
		}
		return &Execution{Error: fmt.Sprintf("Error running search: %v", err)}, nil
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		return &Execution{Success: true, Output: fmt.Sprintf("No matches found for pattern: %s", in.Pattern)}, nil
	}

	lines := strings.Split(output, "\n")
	if len(lines) > in.Limit {
		output = strings.Join(lines[:in.Limit], "\n")
		output += fmt.Sprintf("\n... (showing first %d matches)", in.Limit)
	}
	return &Execution{Success: true, Output: output}, nil
}

// searchWithGo is the pure-Go fallback
func (t *SearchContentTool) searchWithGo(ctx context.Context, in *SearchContentInput, path string) (*Execution, error) {
	flags := ""
	if in.CaseInsensitive {
		flags = "(?i)"
	}
	re, err := regexp.Compile(flags + in.Pattern)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid regex pattern: %v", err)}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error: %v", err)}, nil
	}

	var files []string
	if info.IsDir() {
		files, err = t.findSearchable(ctx, path, in.Glob)
		if err != nil {
			if ctx.Err() != nil {
				return &Execution{Error: "Error: search timed out or was cancelled"}, nil
			}
			return &Execution{Error: fmt.Sprintf("Error finding files: %v", err)}, nil
		}
	} else {
		files = []string{path}
	}

	var matches []contentMatch
	for _, file := range files {
		if len(matches) >= in.Limit {
			break
		}
		fileMatches, err := searchFileLines(file, re, in.Limit-len(matches))
		if err != nil {
			continue // skip files we can't read
		}
		matches = append(matches, fileMatches...)
	}

	if len(matches) == 0 {
		return &Execution{Success: true, Output: fmt.Sprintf("No matches found for pattern: %s", in.Pattern)}, nil
	}

	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.file, m.line, m.content)
	}
	if len(matches) >= in.Limit {
		fmt.Fprintf(&b, "\n... (showing first %d matches)", in.Limit)
	}
	return &Execution{Success: true, Output: strings.TrimSpace(b.String())}, nil
}

// findSearchable walks dir collecting text files that pass the glob filter.
func (t *SearchContentTool) findSearchable(ctx context.Context, dir, glob string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
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
		if binaryExts[filepath.Ext(path)] {
			return nil
		}
		if glob != "" {
			matched, _ := filepath.Match(glob, info.Name())
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		if len(files) >= 10000 {
			return filepath.SkipAll
		}
		return nil
	})
	return files, err
}

// searchFileLines scans a single file for the pattern.
func searchFileLines(path string, re *regexp.Regexp, maxMatches int) ([]contentMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matches []contentMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if len(matches) >= maxMatches {
			break
		}
		line := scanner.Text()
		if re.MatchString(line) {
			if len(line) > 500 {
				line = line[:500] + "..."
			}
			matches = append(matches, contentMatch{file: path, line: lineNum, content: line})
		}
	}
	return matches, scanner.Err()
}

// skipWalkDir reports directories that file walks never descend into.
func skipWalkDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	switch name {
	case "node_modules", "vendor", "__pycache__", "dist", "target":
		return true
	}
	return false
}

var binaryExts = map[string]bool{
	".exe": true, ".bin": true, ".so": true, ".dylib": true, ".a": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".db": true,
	".sqlite": true, ".wasm": true, ".woff": true, ".woff2": true,
}
