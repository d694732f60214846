// Package dispatch routes model tool calls to the tool registry. It caches
// idempotent reads behind a file-version check, vetoes repeated single-file
// edits, and fans out read-only batches concurrently in planner mode.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/tools"
	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/logging"
)

// Tool names the dispatcher treats specially
const (
	toolReadFile  = "read_file"
	toolWriteFile = "write_file"
	toolEditFile  = "edit_file"
)

// safeTools is the fixed set of idempotent, side-effect-free tools. Only
// these are cacheable, and only all-safe batches run concurrently.
var safeTools = map[string]bool{
	"read_file":      true,
	"list_dir":       true,
	"search_content": true,
	"find_files":     true,
	"git_status":     true,
	"git_diff":       true,
	"git_log":        true,
	"web_fetch":      true,
	"todo_read":      true,
}

const (
	cachedPrefix     = "(cached) "
	duplicateStandIn = "(duplicate call: result same as above)"

	editRejectedFmt = "EDIT REJECTED: too many single edits to %s this session. Batch your changes into one call using the 'edits' parameter instead of repeated single replacements."
)

// Registry is the tool execution surface the dispatcher drives.
// *tools.Registry satisfies it.
type Registry interface {
	Execute(ctx context.Context, name string, input json.RawMessage) *tools.Execution
}

// Outcome pairs one model tool call with its execution result.
type Outcome struct {
	Call      session.ToolCall
	Result    *tools.Execution
	CacheHit  bool
	Duplicate bool
	Vetoed    bool
}

// Dispatcher executes one session's tool calls. All mutation happens on the
// dispatching goroutine; the file-version table alone takes a mutex because
// the project watcher bumps it from its own goroutine.
type Dispatcher struct {
	registry      Registry
	workDir       string
	planner       bool
	editThreshold int

	mu       sync.Mutex
	versions map[string]int

	edits map[string]int
	cache *resultCache
}

// New creates a dispatcher rooted at workDir. workDir anchors relative tool
// paths so version and edit bookkeeping key on the same resolved paths the
// tools act on.
func New(registry Registry, workDir string, cfg config.DispatchConfig) *Dispatcher {
	threshold := cfg.EditThreshold
	if threshold <= 0 {
		threshold = 2
	}
	return &Dispatcher{
		registry:      registry,
		workDir:       workDir,
		planner:       cfg.Planner,
		editThreshold: threshold,
		versions:      make(map[string]int),
		edits:         make(map[string]int),
		cache:         newResultCache(cfg.CacheSize),
	}
}

// Dispatch executes a batch of tool calls from one model turn and returns
// one outcome per call, in the original order. All-safe batches of more than
// one call run concurrently when planner mode is on; everything else runs
// strictly sequentially in the order the model emitted.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []session.ToolCall) []Outcome {
	if len(calls) == 0 {
		return nil
	}
	if d.planner && len(calls) > 1 && allSafe(calls) {
		return d.dispatchBatch(ctx, calls)
	}

	outcomes := make([]Outcome, 0, len(calls))
	for i := range calls {
		outcomes = append(outcomes, d.dispatchOne(ctx, calls[i]))
	}
	return outcomes
}

// dispatchOne runs the per-call pipeline: cache check, edit veto, execute,
// record.
func (d *Dispatcher) dispatchOne(ctx context.Context, call session.ToolCall) Outcome {
	args := NormalizeArgs(call.Input)

	if safeTools[call.Name] {
		if result, ok := d.lookup(call.Name, args); ok {
			logging.Debugf("[Dispatcher] Cache hit: %s %s", call.Name, args)
			return Outcome{Call: call, Result: result, CacheHit: true}
		}
	}

	if call.Name == toolEditFile {
		if veto := d.checkEditVeto(call.Input); veto != nil {
			logging.Warnf("[Dispatcher] Edit veto: %s", args)
			return Outcome{Call: call, Result: veto, Vetoed: true}
		}
	}

	result := d.registry.Execute(ctx, call.Name, call.Input)
	d.record(call.Name, call.Input, args, result)
	return Outcome{Call: call, Result: result}
}

// dispatchBatch deduplicates an all-safe batch by (name, normalized args),
// runs the unique misses concurrently, and reassembles results in the
// original call order. Cache lookups and recording stay on this goroutine;
// only the registry calls fan out.
func (d *Dispatcher) dispatchBatch(ctx context.Context, calls []session.ToolCall) []Outcome {
	keys := make([]string, len(calls))
	norms := make([]string, len(calls))
	firstIndex := make(map[string]int, len(calls))
	var order []string

	for i, call := range calls {
		norms[i] = NormalizeArgs(call.Input)
		keys[i] = call.Name + "\x00" + norms[i]
		if _, seen := firstIndex[keys[i]]; !seen {
			firstIndex[keys[i]] = i
			order = append(order, keys[i])
		}
	}

	resolved := make(map[string]Outcome, len(order))
	var pending []string
	for _, key := range order {
		i := firstIndex[key]
		if result, ok := d.lookup(calls[i].Name, norms[i]); ok {
			resolved[key] = Outcome{Call: calls[i], Result: result, CacheHit: true}
			continue
		}
		pending = append(pending, key)
	}

	results := make([]*tools.Execution, len(pending))
	var wg sync.WaitGroup
	for slot, key := range pending {
		wg.Add(1)
		go func(slot int, call session.ToolCall) {
			defer wg.Done()
			results[slot] = d.registry.Execute(ctx, call.Name, call.Input)
		}(slot, calls[firstIndex[key]])
	}
	wg.Wait()

	for slot, key := range pending {
		i := firstIndex[key]
		d.record(calls[i].Name, calls[i].Input, norms[i], results[slot])
		resolved[key] = Outcome{Call: calls[i], Result: results[slot]}
	}

	if len(calls) > len(order) {
		logging.Debugf("[Dispatcher] Batched %d calls into %d unique executions", len(calls), len(order))
	}

	outcomes := make([]Outcome, len(calls))
	for i, call := range calls {
		key := keys[i]
		if firstIndex[key] == i {
			o := resolved[key]
			o.Call = call
			outcomes[i] = o
			continue
		}
		first := resolved[key]
		standIn := &tools.Execution{Success: first.Result.Success}
		if standIn.Success {
			standIn.Output = duplicateStandIn
		} else {
			standIn.Error = duplicateStandIn
		}
		outcomes[i] = Outcome{Call: call, Result: standIn, Duplicate: true}
	}
	return outcomes
}

// lookup serves a cache hit as a stand-in result. read_file entries are
// valid only while the recorded file version matches the current one; stale
// or incomplete entries fail open as misses and are dropped.
func (d *Dispatcher) lookup(name, args string) (*tools.Execution, bool) {
	e := d.cache.find(name, args)
	if e == nil {
		return nil, false
	}
	if name == toolReadFile {
		if e.path == "" || e.version != d.fileVersion(e.path) {
			d.cache.remove(name, args)
			return nil, false
		}
	}
	return &tools.Execution{
		Success:  e.result.Success,
		Output:   cachedPrefix + e.result.Output,
		Metadata: e.result.Metadata,
	}, true
}

// checkEditVeto rejects a single-replacement edit once the path has used up
// the session's allowance. The tool never runs, so disk stays untouched.
// Batched edits (the 'edits' parameter) are always allowed through.
func (d *Dispatcher) checkEditVeto(input json.RawMessage) *tools.Execution {
	if !isSingleEdit(input) {
		return nil
	}
	rawPath, ok := argString(input, "path")
	if !ok {
		return nil
	}
	path, err := tools.ResolvePath(d.workDir, rawPath)
	if err != nil {
		return nil
	}
	if d.edits[path] < d.editThreshold {
		return nil
	}
	return &tools.Execution{
		Success: false,
		Error:   fmt.Sprintf(editRejectedFmt, rawPath),
	}
}

// record updates dispatcher state after an execution: successful writes and
// edits bump the file version (and writes patch live cached reads); single
// edits count toward the veto; successful safe-tool results enter the cache.
func (d *Dispatcher) record(name string, input json.RawMessage, args string, result *tools.Execution) {
	if result == nil || !result.Success {
		return
	}

	switch name {
	case toolEditFile, toolWriteFile:
		rawPath, ok := argString(input, "path")
		if !ok {
			return
		}
		path, err := tools.ResolvePath(d.workDir, rawPath)
		if err != nil {
			return
		}
		version := d.bumpVersion(path)
		if name == toolEditFile && isSingleEdit(input) {
			d.edits[path]++
		}
		if name == toolWriteFile {
			if body, ok := argString(input, "content"); ok {
				d.cache.patchReads(path, body, version)
			}
		}

	default:
		if !safeTools[name] {
			return
		}
		e := cacheEntry{name: name, args: args, result: result}
		if name == toolReadFile {
			rawPath, ok := argString(input, "path")
			if !ok {
				return
			}
			path, err := tools.ResolvePath(d.workDir, rawPath)
			if err != nil {
				return
			}
			e.path = path
			e.version = d.fileVersion(path)
			e.fullRead = isFullRead(input)
		}
		d.cache.add(e)
	}
}

// isSingleEdit reports whether edit_file arguments use the single
// old_string/new_string form rather than the batched edits array.
func isSingleEdit(raw json.RawMessage) bool {
	var args struct {
		Edits []json.RawMessage `json:"edits"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return true
	}
	return len(args.Edits) == 0
}

func allSafe(calls []session.ToolCall) bool {
	for _, call := range calls {
		if !safeTools[call.Name] {
			return false
		}
	}
	return true
}

// fileVersion reads the current version for a resolved path. Versions start
// at zero and only ever increase.
func (d *Dispatcher) fileVersion(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.versions[path]
}

// bumpVersion advances the version for a resolved path and returns the new
// value. Called from the dispatch goroutine on successful edits/writes and
// from the watcher on external changes.
func (d *Dispatcher) bumpVersion(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.versions[path]++
	return d.versions[path]
}
