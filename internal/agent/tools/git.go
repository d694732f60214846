package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// maxGitOutput caps the output of a single git invocation.
const maxGitOutput = 50 * 1024

// runGit executes a read-only git command in dir and converts the outcome
// into an Execution.
func runGit(ctx context.Context, dir string, args ...string) *Execution {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &Execution{Error: "Error: git command timed out or was cancelled"}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return &Execution{Error: fmt.Sprintf("git %s failed: %s", args[0], msg)}
	}

	out := strings.TrimSpace(stdout.String())
	if len(out) > maxGitOutput {
		out = out[:maxGitOutput] + fmt.Sprintf("\n... [truncated %d chars]", len(out)-maxGitOutput)
	}
	return &Execution{Success: true, Output: out}
}

// GitStatusTool reports the working tree status.
type GitStatusTool struct {
	workDir string
}

// NewGitStatusTool creates a git status tool for the given repository.
func NewGitStatusTool(workDir string) *GitStatusTool {
	return &GitStatusTool{workDir: workDir}
}

// Name returns the tool name
func (t *GitStatusTool) Name() string {
	return "git_status"
}

// Description returns the tool description
func (t *GitStatusTool) Description() string {
	return "Show the git working tree status (current branch plus changed, staged, and untracked files)."
}

// Schema returns the JSON schema for the tool input
func (t *GitStatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

// Execute runs git status
func (t *GitStatusTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	result := runGit(ctx, t.workDir, "status", "--short", "--branch")
	if result.Success && !strings.Contains(result.Output, "\n") {
		// Only the branch line: nothing changed.
		result.Output += "\nWorking tree clean."
	}
	return result, nil
}

// GitDiffTool shows uncommitted changes.
type GitDiffTool struct {
	workDir string
}

// NewGitDiffTool creates a git diff tool for the given repository.
func NewGitDiffTool(workDir string) *GitDiffTool {
	return &GitDiffTool{workDir: workDir}
}

// Name returns the tool name
func (t *GitDiffTool) Name() string {
	return "git_diff"
}

// Description returns the tool description
func (t *GitDiffTool) Description() string {
	return "Show uncommitted changes as a unified diff. Pass staged=true for the index, or a path to narrow the diff."
}

// Schema returns the JSON schema for the tool input
func (t *GitDiffTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Limit the diff to this file or directory"
			},
			"staged": {
				"type": "boolean",
				"description": "Diff the staged changes instead of the working tree (default: false)"
			}
		}
	}`)
}

// GitDiffInput represents the tool input
type GitDiffInput struct {
	Path   string `json:"path"`
	Staged bool   `json:"staged"`
}

// Execute runs git diff
func (t *GitDiffTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in GitDiffInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}

	args := []string{"diff"}
	if in.Staged {
		args = append(args, "--staged")
	}
	if in.Path != "" {
		args = append(args, "--", in.Path)
	}

	result := runGit(ctx, t.workDir, args...)
	if result.Success && result.Output == "" {
		result.Output = "No changes."
	}
	return result, nil
}

// GitLogTool shows recent commit history.
type GitLogTool struct {
	workDir string
}

// NewGitLogTool creates a git log tool for the given repository.
func NewGitLogTool(workDir string) *GitLogTool {
	return &GitLogTool{workDir: workDir}
}

// Name returns the tool name
func (t *GitLogTool) Name() string {
	return "git_log"
}

// Description returns the tool description
func (t *GitLogTool) Description() string {
	return "Show recent commits, one line each. Pass a path to see only commits touching it."
}

// Schema returns the JSON schema for the tool input
func (t *GitLogTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"limit": {
				"type": "integer",
				"description": "Number of commits to show (default: 10)"
			},
			"path": {
				"type": "string",
				"description": "Limit the log to commits touching this file or directory"
			}
		}
	}`)
}

// GitLogInput represents the tool input
type GitLogInput struct {
	Limit int    `json:"limit"`
	Path  string `json:"path"`
}

// Execute runs git log
func (t *GitLogTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in GitLogInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}

	args := []string{"log", "--oneline", "-n", fmt.Sprintf("%d", in.Limit)}
	if in.Path != "" {
		args = append(args, "--", in.Path)
	}
	return runGit(ctx, t.workDir, args...), nil
}
