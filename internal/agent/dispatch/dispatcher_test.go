package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/tools"
	"github.com/maxlabs/maxagent/internal/config"
)

func toolCall(id, name, args string) session.ToolCall {
	return session.ToolCall{ID: id, Name: name, Input: json.RawMessage(args)}
}

// fakeRegistry records executions and answers with canned results
type fakeRegistry struct {
	mu       sync.Mutex
	calls    []string
	handler  func(name string, input json.RawMessage) *tools.Execution
	slowTool string
}

func (f *fakeRegistry) Execute(ctx context.Context, name string, input json.RawMessage) *tools.Execution {
	if name == f.slowTool {
		time.Sleep(20 * time.Millisecond)
	}
	f.mu.Lock()
	f.calls = append(f.calls, name+" "+NormalizeArgs(input))
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(name, input)
	}
	return &tools.Execution{Success: true, Output: "ok: " + name}
}

func (f *fakeRegistry) executed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// newFileDispatcher builds a dispatcher over the real tool registry in a
// temp project directory.
func newFileDispatcher(t *testing.T, cfg config.DispatchConfig) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	return New(tools.NewCodingRegistry(dir), dir, cfg), dir
}

func writeProjectFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNormalizeArgsKeyOrder(t *testing.T) {
	a := NormalizeArgs(json.RawMessage(`{"b": 1, "a": {"y": 2, "x": 1}}`))
	b := NormalizeArgs(json.RawMessage(`{"a":{"x":1,"y":2},"b":1}`))
	if a != b {
		t.Errorf("normalized forms differ: %q vs %q", a, b)
	}
	if NormalizeArgs(nil) != "{}" {
		t.Errorf("empty args should normalize to {}")
	}
	if got := NormalizeArgs(json.RawMessage("not json")); got != "not json" {
		t.Errorf("non-JSON should pass through, got %q", got)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	d, dir := newFileDispatcher(t, config.DefaultConfig().Dispatch)
	writeProjectFile(t, dir, "x.py", "hello world\n")

	first := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c1", "read_file", `{"path": "x.py"}`),
	})[0]
	if first.CacheHit {
		t.Fatal("first read should miss")
	}
	if first.Result.Output != "hello world\n" {
		t.Fatalf("first read output = %q", first.Result.Output)
	}

	second := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c2", "read_file", `{"path": "x.py"}`),
	})[0]
	if !second.CacheHit {
		t.Fatal("identical read with no intervening edit should hit the cache")
	}
	if second.Result.Output != "(cached) hello world\n" {
		t.Errorf("cache stand-in = %q", second.Result.Output)
	}
	if !second.Result.Success {
		t.Error("stand-in success should match the original")
	}

	edit := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c3", "edit_file", `{"path": "x.py", "old_string": "world", "new_string": "there"}`),
	})[0]
	if !edit.Result.Success {
		t.Fatalf("edit failed: %s", edit.Result.Error)
	}

	third := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c4", "read_file", `{"path": "x.py"}`),
	})[0]
	if third.CacheHit {
		t.Fatal("read after an edit must go to disk")
	}
	if third.Result.Output != "hello there\n" {
		t.Errorf("fresh read output = %q", third.Result.Output)
	}
}

func TestCacheKeyIgnoresArgOrder(t *testing.T) {
	d, dir := newFileDispatcher(t, config.DefaultConfig().Dispatch)
	writeProjectFile(t, dir, "notes.txt", strings.Repeat("line\n", 10))

	first := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c1", "read_file", `{"path": "notes.txt", "offset": 1, "limit": 2}`),
	})[0]
	if first.CacheHit {
		t.Fatal("first read should miss")
	}

	reordered := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c2", "read_file", `{"limit": 2, "offset": 1, "path": "notes.txt"}`),
	})[0]
	if !reordered.CacheHit {
		t.Error("same args in a different key order should hit the cache")
	}
}

func TestEditVetoAtDefaultThreshold(t *testing.T) {
	d, dir := newFileDispatcher(t, config.DefaultConfig().Dispatch)
	writeProjectFile(t, dir, "main.go", "one two three four\n")

	ctx := context.Background()
	for i, edit := range []string{
		`{"path": "main.go", "old_string": "one", "new_string": "1"}`,
		`{"path": "main.go", "old_string": "two", "new_string": "2"}`,
	} {
		out := d.Dispatch(ctx, []session.ToolCall{toolCall(fmt.Sprintf("e%d", i), "edit_file", edit)})[0]
		if !out.Result.Success {
			t.Fatalf("edit %d should succeed: %s", i+1, out.Result.Error)
		}
	}

	vetoed := d.Dispatch(ctx, []session.ToolCall{
		toolCall("e3", "edit_file", `{"path": "main.go", "old_string": "three", "new_string": "3"}`),
	})[0]
	if vetoed.Result.Success {
		t.Fatal("third single edit should be rejected")
	}
	if !vetoed.Vetoed {
		t.Error("outcome should be marked vetoed")
	}
	if !strings.Contains(vetoed.Result.Error, "EDIT REJECTED") {
		t.Errorf("veto error = %q", vetoed.Result.Error)
	}
	if !strings.Contains(vetoed.Result.Error, "'edits' parameter") {
		t.Errorf("veto should point at the batched edits parameter, got %q", vetoed.Result.Error)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "main.go"))
	if string(data) != "1 2 three four\n" {
		t.Errorf("disk should reflect only the accepted edits, got %q", string(data))
	}
}

func TestEditVetoThresholdOne(t *testing.T) {
	cfg := config.DefaultConfig().Dispatch
	cfg.EditThreshold = 1
	d, dir := newFileDispatcher(t, cfg)
	writeProjectFile(t, dir, "a.py", "alpha beta\n")

	ctx := context.Background()
	first := d.Dispatch(ctx, []session.ToolCall{
		toolCall("e1", "edit_file", `{"path": "a.py", "old_string": "alpha", "new_string": "A"}`),
	})[0]
	if !first.Result.Success {
		t.Fatalf("first edit should succeed: %s", first.Result.Error)
	}

	second := d.Dispatch(ctx, []session.ToolCall{
		toolCall("e2", "edit_file", `{"path": "a.py", "old_string": "beta", "new_string": "B"}`),
	})[0]
	if second.Result.Success {
		t.Fatal("second edit should be rejected at threshold 1")
	}
	if !strings.Contains(second.Result.Error, "EDIT REJECTED") {
		t.Errorf("veto error = %q", second.Result.Error)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "a.py"))
	if string(data) != "A beta\n" {
		t.Errorf("disk should hold only the first edit, got %q", string(data))
	}
}

func TestBatchedEditBypassesVeto(t *testing.T) {
	cfg := config.DefaultConfig().Dispatch
	cfg.EditThreshold = 1
	d, dir := newFileDispatcher(t, cfg)
	writeProjectFile(t, dir, "f.txt", "x and y\n")

	ctx := context.Background()
	single := d.Dispatch(ctx, []session.ToolCall{
		toolCall("e1", "edit_file", `{"path": "f.txt", "old_string": "x", "new_string": "X"}`),
	})[0]
	if !single.Result.Success {
		t.Fatalf("single edit failed: %s", single.Result.Error)
	}

	batched := d.Dispatch(ctx, []session.ToolCall{
		toolCall("e2", "edit_file", `{"path": "f.txt", "edits": [{"old_string": "y", "new_string": "Y"}]}`),
	})[0]
	if !batched.Result.Success {
		t.Fatalf("batched edit should bypass the veto: %s", batched.Result.Error)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "X and Y\n" {
		t.Errorf("disk = %q", string(data))
	}
}

func TestWriteThroughCache(t *testing.T) {
	d, dir := newFileDispatcher(t, config.DefaultConfig().Dispatch)
	writeProjectFile(t, dir, "x.py", "original")

	ctx := context.Background()
	read := d.Dispatch(ctx, []session.ToolCall{
		toolCall("c1", "read_file", `{"path": "x.py"}`),
	})[0]
	if read.CacheHit || read.Result.Output != "original" {
		t.Fatalf("first read: hit=%v output=%q", read.CacheHit, read.Result.Output)
	}

	write := d.Dispatch(ctx, []session.ToolCall{
		toolCall("c2", "write_file", `{"path": "x.py", "content": "new body", "overwrite": true}`),
	})[0]
	if !write.Result.Success {
		t.Fatalf("write failed: %s", write.Result.Error)
	}

	again := d.Dispatch(ctx, []session.ToolCall{
		toolCall("c3", "read_file", `{"path": "x.py"}`),
	})[0]
	if !again.CacheHit {
		t.Fatal("read after write should be a legitimate cache hit")
	}
	if again.Result.Output != "(cached) new body" {
		t.Errorf("patched cache should serve the written body, got %q", again.Result.Output)
	}
}

func TestEditDoesNotPatchCache(t *testing.T) {
	d, dir := newFileDispatcher(t, config.DefaultConfig().Dispatch)
	writeProjectFile(t, dir, "x.py", "keep fresh")

	ctx := context.Background()
	d.Dispatch(ctx, []session.ToolCall{toolCall("c1", "read_file", `{"path": "x.py"}`)})
	edit := d.Dispatch(ctx, []session.ToolCall{
		toolCall("c2", "edit_file", `{"path": "x.py", "old_string": "keep", "new_string": "stay"}`),
	})[0]
	if !edit.Result.Success {
		t.Fatalf("edit failed: %s", edit.Result.Error)
	}

	read := d.Dispatch(ctx, []session.ToolCall{toolCall("c3", "read_file", `{"path": "x.py"}`)})[0]
	if read.CacheHit {
		t.Error("an edit must force the next read to disk")
	}
	if read.Result.Output != "stay fresh" {
		t.Errorf("fresh read = %q", read.Result.Output)
	}
}

func TestExternalBumpInvalidates(t *testing.T) {
	d, dir := newFileDispatcher(t, config.DefaultConfig().Dispatch)
	writeProjectFile(t, dir, "x.py", "v1")

	ctx := context.Background()
	d.Dispatch(ctx, []session.ToolCall{toolCall("c1", "read_file", `{"path": "x.py"}`)})

	// Simulate the project watcher seeing an external change.
	writeProjectFile(t, dir, "x.py", "v2")
	resolved, err := tools.ResolvePath(dir, "x.py")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	d.bumpVersion(resolved)

	read := d.Dispatch(ctx, []session.ToolCall{toolCall("c2", "read_file", `{"path": "x.py"}`)})[0]
	if read.CacheHit {
		t.Fatal("externally modified file served from cache")
	}
	if read.Result.Output != "v2" {
		t.Errorf("read = %q", read.Result.Output)
	}
}

func TestBatchDedupesAndPreservesOrder(t *testing.T) {
	cfg := config.DefaultConfig().Dispatch
	cfg.Planner = true
	reg := &fakeRegistry{}
	d := New(reg, t.TempDir(), cfg)

	calls := []session.ToolCall{
		toolCall("c1", "list_dir", `{"path": ".", "all": true}`),
		toolCall("c2", "git_status", `{}`),
		toolCall("c3", "list_dir", `{"all": true, "path": "."}`),
	}
	outcomes := d.Dispatch(context.Background(), calls)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Call.ID != calls[i].ID {
			t.Errorf("outcome %d carries call %s, want %s", i, o.Call.ID, calls[i].ID)
		}
	}
	if outcomes[0].Duplicate || outcomes[1].Duplicate {
		t.Error("unique calls marked duplicate")
	}
	if !outcomes[2].Duplicate {
		t.Fatal("reordered identical call should be deduplicated")
	}
	if outcomes[2].Result.Output != duplicateStandIn {
		t.Errorf("duplicate stand-in = %q", outcomes[2].Result.Output)
	}
	if reg.executed() != 2 {
		t.Errorf("expected 2 executions, got %d", reg.executed())
	}
}

func TestUnsafeBatchRunsSequentially(t *testing.T) {
	cfg := config.DefaultConfig().Dispatch
	cfg.Planner = true
	reg := &fakeRegistry{slowTool: "read_file"}
	d := New(reg, t.TempDir(), cfg)

	calls := []session.ToolCall{
		toolCall("c1", "read_file", `{"path": "a.txt"}`),
		toolCall("c2", "edit_file", `{"path": "a.txt", "old_string": "x", "new_string": "y"}`),
	}
	d.Dispatch(context.Background(), calls)

	if reg.executed() != 2 {
		t.Fatalf("expected 2 executions, got %d", reg.executed())
	}
	if !strings.HasPrefix(reg.calls[0], "read_file") {
		t.Errorf("calls must run in emitted order, first was %q", reg.calls[0])
	}
}

func TestPlannerOffNeverBatches(t *testing.T) {
	cfg := config.DefaultConfig().Dispatch // planner off
	reg := &fakeRegistry{}
	d := New(reg, t.TempDir(), cfg)

	// Identical safe calls: without planner mode both execute (the second is
	// a cache hit, not a duplicate stand-in).
	calls := []session.ToolCall{
		toolCall("c1", "git_status", `{}`),
		toolCall("c2", "git_status", `{}`),
	}
	outcomes := d.Dispatch(context.Background(), calls)

	if outcomes[1].Duplicate {
		t.Error("sequential path must not mark duplicates")
	}
	if !outcomes[1].CacheHit {
		t.Error("second identical safe call should hit the cache")
	}
	if reg.executed() != 1 {
		t.Errorf("expected 1 execution (second served from cache), got %d", reg.executed())
	}
}

func TestCacheEviction(t *testing.T) {
	cfg := config.DefaultConfig().Dispatch
	cfg.CacheSize = 2
	reg := &fakeRegistry{}
	d := New(reg, t.TempDir(), cfg)

	ctx := context.Background()
	for _, path := range []string{"a", "b", "c"} {
		d.Dispatch(ctx, []session.ToolCall{toolCall("c-"+path, "list_dir", `{"path": "`+path+`"}`)})
	}
	if reg.executed() != 3 {
		t.Fatalf("setup executed %d", reg.executed())
	}

	// "a" was evicted by "c"; "c" is still live.
	evicted := d.Dispatch(ctx, []session.ToolCall{toolCall("c4", "list_dir", `{"path": "a"}`)})[0]
	if evicted.CacheHit {
		t.Error("evicted entry served as a hit")
	}
	live := d.Dispatch(ctx, []session.ToolCall{toolCall("c5", "list_dir", `{"path": "c"}`)})[0]
	if !live.CacheHit {
		t.Error("live entry should hit")
	}
	if reg.executed() != 4 {
		t.Errorf("expected 4 executions, got %d", reg.executed())
	}
}

func TestUnknownToolBecomesFailedResult(t *testing.T) {
	d, _ := newFileDispatcher(t, config.DefaultConfig().Dispatch)

	out := d.Dispatch(context.Background(), []session.ToolCall{
		toolCall("c1", "no_such_tool", `{}`),
	})[0]
	if out.Result.Success {
		t.Fatal("unknown tool should fail")
	}
	if !strings.Contains(out.Result.Error, "does not exist") {
		t.Errorf("error = %q", out.Result.Error)
	}
}
