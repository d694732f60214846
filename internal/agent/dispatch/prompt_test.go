package dispatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/tools"
)

func toolResultMessage(callID, content string) session.Message {
	data, _ := json.Marshal([]session.ToolResult{{ToolCallID: callID, Content: content}})
	return session.Message{Role: session.RoleTool, ToolResults: data}
}

func resultContent(t *testing.T, msg session.Message, callID string) string {
	t.Helper()
	var results []session.ToolResult
	if err := json.Unmarshal(msg.ToolResults, &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	for _, r := range results {
		if r.ToolCallID == callID {
			return r.Content
		}
	}
	t.Fatalf("call %s not found in message", callID)
	return ""
}

func successfulRead(id, args, body string) Outcome {
	return Outcome{
		Call:   toolCall(id, "read_file", args),
		Result: &tools.Execution{Success: true, Output: body},
	}
}

func TestPromptSupersedesOlderRead(t *testing.T) {
	dir := t.TempDir()
	ps := NewPromptState(dir)

	messages := []session.Message{toolResultMessage("r1", "body v1")}
	ps.Apply([]Outcome{successfulRead("r1", `{"path": "f.txt"}`, "body v1")}, messages)

	messages = append(messages, toolResultMessage("r2", "body v2"))
	ps.Apply([]Outcome{successfulRead("r2", `{"path": "f.txt"}`, "body v2")}, messages)

	if got := resultContent(t, messages[0], "r1"); got != "(file read superseded by a newer read of f.txt)" {
		t.Errorf("older read = %q", got)
	}
	if got := resultContent(t, messages[1], "r2"); got != "body v2" {
		t.Errorf("newest read must stay intact, got %q", got)
	}
}

func TestPromptPatchesReadOnWrite(t *testing.T) {
	dir := t.TempDir()
	ps := NewPromptState(dir)

	messages := []session.Message{toolResultMessage("r1", "old body")}
	ps.Apply([]Outcome{successfulRead("r1", `{"path": "f.txt"}`, "old body")}, messages)

	write := Outcome{
		Call:   toolCall("w1", "write_file", `{"path": "f.txt", "content": "brand new", "overwrite": true}`),
		Result: &tools.Execution{Success: true, Output: "Wrote 9 bytes to f.txt"},
	}
	ps.Apply([]Outcome{write}, messages)

	if got := resultContent(t, messages[0], "r1"); got != "brand new" {
		t.Errorf("cached read should reflect the write, got %q", got)
	}
}

func TestPromptPatchesReadOnEditFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("edited on disk"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	ps := NewPromptState(dir)

	messages := []session.Message{toolResultMessage("r1", "old body")}
	ps.Apply([]Outcome{successfulRead("r1", `{"path": "f.txt"}`, "old body")}, messages)

	edit := Outcome{
		Call:   toolCall("e1", "edit_file", `{"path": "f.txt", "old_string": "x", "new_string": "y"}`),
		Result: &tools.Execution{Success: true, Output: "Edited f.txt (1 replacements)"},
	}
	ps.Apply([]Outcome{edit}, messages)

	if got := resultContent(t, messages[0], "r1"); got != "edited on disk" {
		t.Errorf("cached read should match disk after the edit, got %q", got)
	}
}

func TestPromptIgnoresPartialReads(t *testing.T) {
	dir := t.TempDir()
	ps := NewPromptState(dir)

	messages := []session.Message{toolResultMessage("r1", "lines 1-5")}
	ps.Apply([]Outcome{successfulRead("r1", `{"path": "f.txt", "offset": 1, "limit": 5}`, "lines 1-5")}, messages)

	write := Outcome{
		Call:   toolCall("w1", "write_file", `{"path": "f.txt", "content": "whole file", "overwrite": true}`),
		Result: &tools.Execution{Success: true, Output: "ok"},
	}
	ps.Apply([]Outcome{write}, messages)

	if got := resultContent(t, messages[0], "r1"); got != "lines 1-5" {
		t.Errorf("partial reads are never patched, got %q", got)
	}
}

func TestPromptIgnoresFailedMutations(t *testing.T) {
	dir := t.TempDir()
	ps := NewPromptState(dir)

	messages := []session.Message{toolResultMessage("r1", "stable")}
	ps.Apply([]Outcome{successfulRead("r1", `{"path": "f.txt"}`, "stable")}, messages)

	failed := Outcome{
		Call:   toolCall("w1", "write_file", `{"path": "f.txt", "content": "nope"}`),
		Result: &tools.Execution{Success: false, Error: "File already exists: f.txt"},
	}
	ps.Apply([]Outcome{failed}, messages)

	if got := resultContent(t, messages[0], "r1"); got != "stable" {
		t.Errorf("failed writes must not patch, got %q", got)
	}
}

func TestPromptDropsTrackingWhenMessageGone(t *testing.T) {
	dir := t.TempDir()
	ps := NewPromptState(dir)

	tracked := []session.Message{toolResultMessage("r1", "old body")}
	ps.Apply([]Outcome{successfulRead("r1", `{"path": "f.txt"}`, "old body")}, tracked)

	// Compression rewrote the list; the read message is gone.
	write := Outcome{
		Call:   toolCall("w1", "write_file", `{"path": "f.txt", "content": "v2", "overwrite": true}`),
		Result: &tools.Execution{Success: true, Output: "ok"},
	}
	ps.Apply([]Outcome{write}, []session.Message{})

	// Later writes find no tracking and leave the original list alone.
	again := Outcome{
		Call:   toolCall("w2", "write_file", `{"path": "f.txt", "content": "v3", "overwrite": true}`),
		Result: &tools.Execution{Success: true, Output: "ok"},
	}
	ps.Apply([]Outcome{again}, tracked)

	if got := resultContent(t, tracked[0], "r1"); got != "old body" {
		t.Errorf("dropped tracking should never resurrect, got %q", got)
	}
}
