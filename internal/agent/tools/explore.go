package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// maxExploreFiles bounds the walk so huge trees stay cheap.
const maxExploreFiles = 20000

// ExploreTool surveys the project tree for files whose names relate to a
// query. Its result carries the ranked paths as metadata so the caller can
// follow up with reads.
type ExploreTool struct {
	workDir string
}

// NewExploreTool creates an explore tool rooted at workDir.
func NewExploreTool(workDir string) *ExploreTool {
	return &ExploreTool{workDir: workDir}
}

// Name returns the tool name
func (t *ExploreTool) Name() string {
	return "explore"
}

// Description returns the tool description
func (t *ExploreTool) Description() string {
	return `Scan the project tree for files relevant to a topic, ranked by filename match.
Use this first when you don't know where something lives; then read the recommended files.`
}

// Schema returns the JSON schema for the tool input
func (t *ExploreTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "What you are looking for, e.g. 'session persistence' or 'token estimation'"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of files to recommend (default: 10)"
			}
		},
		"required": ["query"]
	}`)
}

// ExploreInput represents the tool input
type ExploreInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Execute scans the tree
func (t *ExploreTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in ExploreInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return &Execution{Error: "Error: query is required"}, nil
	}
	if in.Limit <= 0 {
		in.Limit = 10
	}

	tokens := queryTokens(in.Query)
	if len(tokens) == 0 {
		return &Execution{Error: "Error: query has no searchable words"}, nil
	}

	root := t.workDir
	if root == "" {
		root = "."
	}

	type scored struct {
		rel   string
		score int
	}
	var candidates []scored
	visited := 0

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipWalkDir(info.Name()) || info.Name() == ".maxagent" {
				return filepath.SkipDir
			}
			return nil
		}
		visited++
		if visited > maxExploreFiles {
			return filepath.SkipAll
		}
		if binaryExts[filepath.Ext(path)] {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if score := scoreFilename(rel, tokens); score > 0 {
			candidates = append(candidates, scored{rel: rel, score: score})
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return &Execution{Error: "Error: explore timed out or was cancelled"}, nil
	}

	if len(candidates) == 0 {
		return &Execution{Success: true, Output: fmt.Sprintf("No files matched %q. Try search_content for a content-level search.", in.Query)}, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rel < candidates[j].rel
	})
	if len(candidates) > in.Limit {
		candidates = candidates[:in.Limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Files likely relevant to %q:\n", in.Query)
	recommended := make([]string, 0, len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s\n", c.rel)
		recommended = append(recommended, c.rel)
	}

	return &Execution{
		Success:  true,
		Output:   strings.TrimSpace(b.String()),
		Metadata: map[string]any{"recommended_files": recommended},
	}, nil
}

// scoreFilename ranks how well a relative path matches the query tokens.
// The base name counts for more than the directory part.
func scoreFilename(rel string, tokens []string) int {
	base := strings.ToLower(filepath.Base(rel))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	pathLower := strings.ToLower(rel)

	score := 0
	for _, tok := range tokens {
		switch {
		case stem == tok:
			score += 5
		case strings.Contains(base, tok):
			score += 3
		case strings.Contains(pathLower, tok):
			score += 1
		}
	}
	return score
}

// queryTokens splits a query into lowercase word tokens.
func queryTokens(query string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 1 { // single letters match everything
			tokens = append(tokens, word.String())
		}
		word.Reset()
	}
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
