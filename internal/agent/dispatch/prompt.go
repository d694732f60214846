package dispatch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/tools"
)

const supersededFmt = "(file read superseded by a newer read of %s)"

// PromptState keeps the conversation from carrying more than one full copy
// of any file. It tracks the message currently holding each file's full read
// by tool-call ID; a newer read rewrites the older one to a short
// placeholder, and a successful edit or write patches the tracked message in
// place so the model's view of the file stays current without another read.
// IDs that no longer resolve to a message (compression rewrote the list)
// silently drop out of tracking.
type PromptState struct {
	workDir string
	reads   map[string]string // resolved path -> tool-call ID of the live full read
}

// NewPromptState creates prompt tracking for one conversation.
func NewPromptState(workDir string) *PromptState {
	return &PromptState{workDir: workDir, reads: make(map[string]string)}
}

// Apply folds one dispatch round into the message list, rewriting superseded
// reads and patching edited files in place. The slice's messages are
// modified; the slice itself is returned unchanged.
func (p *PromptState) Apply(outcomes []Outcome, messages []session.Message) []session.Message {
	for _, o := range outcomes {
		if o.Duplicate || o.Result == nil || !o.Result.Success {
			continue
		}
		switch o.Call.Name {
		case toolReadFile:
			p.applyRead(o, messages)
		case toolEditFile, toolWriteFile:
			p.applyMutation(o, messages)
		}
	}
	return messages
}

func (p *PromptState) applyRead(o Outcome, messages []session.Message) {
	if !isFullRead(o.Call.Input) {
		return
	}
	rawPath, ok := argString(o.Call.Input, "path")
	if !ok {
		return
	}
	path, err := tools.ResolvePath(p.workDir, rawPath)
	if err != nil {
		return
	}
	if prior, tracked := p.reads[path]; tracked && prior != o.Call.ID {
		rewriteToolResult(messages, prior, fmt.Sprintf(supersededFmt, rawPath))
	}
	p.reads[path] = o.Call.ID
}

func (p *PromptState) applyMutation(o Outcome, messages []session.Message) {
	rawPath, ok := argString(o.Call.Input, "path")
	if !ok {
		return
	}
	path, err := tools.ResolvePath(p.workDir, rawPath)
	if err != nil {
		return
	}
	callID, tracked := p.reads[path]
	if !tracked {
		return
	}

	var body string
	if o.Call.Name == toolWriteFile {
		body, ok = argString(o.Call.Input, "content")
	} else {
		data, err := os.ReadFile(path)
		ok = err == nil
		body = string(data)
	}
	if !ok {
		// Can't reconstruct the new body; stop tracking rather than lie.
		delete(p.reads, path)
		return
	}

	if !rewriteToolResult(messages, callID, body) {
		delete(p.reads, path)
	}
}

// rewriteToolResult replaces the content of the tool result carrying callID.
// Returns false when no message holds that call anymore.
func rewriteToolResult(messages []session.Message, callID, content string) bool {
	for i := range messages {
		if messages[i].Role != session.RoleTool || len(messages[i].ToolResults) == 0 {
			continue
		}
		var results []session.ToolResult
		if err := json.Unmarshal(messages[i].ToolResults, &results); err != nil {
			continue
		}
		for j := range results {
			if results[j].ToolCallID != callID {
				continue
			}
			results[j].Content = content
			if data, err := json.Marshal(results); err == nil {
				messages[i].ToolResults = data
			}
			return true
		}
	}
	return false
}
