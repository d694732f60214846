// Package runner drives the agentic conversation loop: one model call per
// iteration, tool dispatch between calls, and context compression plus memory
// injection keeping the window inside the model's budget.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/maxlabs/maxagent/internal/agent/ai"
	"github.com/maxlabs/maxagent/internal/agent/compress"
	"github.com/maxlabs/maxagent/internal/agent/contextwin"
	"github.com/maxlabs/maxagent/internal/agent/dispatch"
	"github.com/maxlabs/maxagent/internal/agent/memory"
	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/summary"
	"github.com/maxlabs/maxagent/internal/agent/tools"
	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/logging"
)

// resumeWindowMessages is how much stored history a resumed session reloads.
// Older turns are represented by the stored rolling summary instead.
const resumeWindowMessages = 30

// Auto-read limits for files recommended by an explore result.
const (
	maxAutoReadFiles   = 5
	autoReadMaxChars   = 2000
	autoReadAbridgedAt = "\n... [truncated, read the file for the rest]"
)

// Runner executes the agentic loop for one conversation. All state is
// session-scoped and owned by the struct; nothing is shared between runners.
type Runner struct {
	provider   ai.Provider
	registry   *tools.Registry
	dispatcher *dispatch.Dispatcher
	prompts    *dispatch.PromptState
	analyzer   *contextwin.Analyzer
	compressor *compress.Compressor
	memories   *memory.Store
	cfg        *config.Config
	callbacks  Callbacks
	quiet      bool

	sessions  *session.Manager
	sessionID string

	messages []session.Message
}

// New creates a runner for one conversation. model selects the context window
// size and is passed through to the provider on every request; workDir anchors
// tool paths, the dispatcher's bookkeeping, and the project memory store.
func New(cfg *config.Config, provider ai.Provider, model string, registry *tools.Registry, workDir string) *Runner {
	analyzer := contextwin.NewAnalyzer(cfg.Context, model)
	store := memory.NewStore(workDir)
	summarizer := summary.New(provider, model, cfg.Context)

	return &Runner{
		provider:   provider,
		registry:   registry,
		dispatcher: dispatch.New(registry, workDir, cfg.Dispatch),
		prompts:    dispatch.NewPromptState(workDir),
		analyzer:   analyzer,
		compressor: compress.New(analyzer, summarizer, store, cfg.Context),
		memories:   store,
		cfg:        cfg,
		callbacks:  NopCallbacks{},
	}
}

// SetCallbacks installs run observers. nil restores the no-op set.
func (r *Runner) SetCallbacks(cb Callbacks) {
	if cb == nil {
		cb = NopCallbacks{}
	}
	r.callbacks = cb
}

// SetQuiet suppresses the per-iteration progress lines.
func (r *Runner) SetQuiet(quiet bool) {
	r.quiet = quiet
}

// Dispatcher exposes the tool dispatcher so the caller can attach the
// project file watcher.
func (r *Runner) Dispatcher() *dispatch.Dispatcher {
	return r.dispatcher
}

// Memories exposes the project memory store.
func (r *Runner) Memories() *memory.Store {
	return r.memories
}

// Messages returns the live message window.
func (r *Runner) Messages() []session.Message {
	return r.messages
}

// AttachSession binds the runner to a persistent session: every appended
// message is stored, the rolling summary is written back on compaction, and
// the stored tail plus summary are loaded now so the conversation resumes
// where it left off.
func (r *Runner) AttachSession(manager *session.Manager, sessionKey string) error {
	sess, err := manager.GetOrCreate(sessionKey)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	r.sessions = manager
	r.sessionID = sess.ID

	history, err := manager.GetMessages(sess.ID, resumeWindowMessages)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	r.messages = []session.Message{{Role: session.RoleSystem, Content: r.systemPrompt()}}
	if text, err := manager.GetSummary(sess.ID); err == nil && text != "" {
		r.messages = append(r.messages, summary.NewMessage(text))
	}
	r.messages = append(r.messages, history...)

	if len(history) > 0 {
		r.printf("[Runner] Resumed session %q: %d messages\n", sessionKey, len(history))
	}
	return nil
}

// Run executes the loop until the model answers without tool calls, tools are
// requested while disabled, or max_iterations runs out. The returned string
// is the final assistant text; model transport errors propagate unmodified.
func (r *Runner) Run(ctx context.Context, task string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task is required")
	}

	if len(r.messages) == 0 {
		r.append(session.Message{Role: session.RoleSystem, Content: r.systemPrompt()})
	}
	r.append(session.Message{Role: session.RoleUser, Content: task})

	maxIterations := r.cfg.Agent.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 25
	}

	compactionAttempted := false

	for iteration := 1; iteration <= maxIterations; iteration++ {
		r.printf("[Runner] === Iteration %d ===\n", iteration)

		// The memory block is ephemeral: pull it out before measuring so
		// neither compression nor the summarizer ever sees it.
		r.removeMemoryBlock()

		if r.compressor.NeedsCompression(r.messages) {
			r.compact(ctx)
		}

		r.insertMemoryBlock()

		requestID := uuid.New().String()

		resp, err := r.chat(ctx)
		if err != nil {
			if ai.IsContextOverflow(err) && !compactionAttempted {
				compactionAttempted = true
				r.printf("[Runner] Context overflow, compacting and retrying\n")
				r.removeMemoryBlock()
				r.compact(ctx)
				resp, err = r.chat(ctx)
			}
			if err != nil {
				return "", err
			}
		}

		// Tool calls requested with tools enabled: run them and loop.
		if len(resp.ToolCalls) > 0 && !r.cfg.Agent.DisableTools {
			calls := sessionToolCalls(resp.ToolCalls)
			toolCallsJSON, _ := json.Marshal(calls)
			r.append(session.Message{
				Role:      session.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: toolCallsJSON,
			})

			outcomes := r.dispatcher.Dispatch(ctx, calls)
			for _, o := range outcomes {
				r.append(toolResultMessage(o))
			}
			r.prompts.Apply(outcomes, r.messages)
			r.autoReadRecommended(ctx, outcomes)

			for _, o := range outcomes {
				r.callbacks.OnToolCall(o.Call.Name, o.Call.Input, o.Result, requestID)
			}
			r.finishRound(requestID, resp)
			continue
		}

		if len(resp.ToolCalls) > 0 {
			r.append(session.Message{Role: session.RoleAssistant, Content: toolsDisabledMessage})
			r.finishRound(requestID, resp)
			return toolsDisabledMessage, nil
		}

		// No tool calls: the model's text is the final answer.
		if resp.Content != "" {
			r.append(session.Message{Role: session.RoleAssistant, Content: resp.Content})
		}
		r.finishRound(requestID, resp)
		return resp.Content, nil
	}

	r.append(session.Message{Role: session.RoleAssistant, Content: maxIterationsMessage})
	return maxIterationsMessage, nil
}

func (r *Runner) systemPrompt() string {
	if r.cfg.Agent.SystemPrompt != "" {
		return r.cfg.Agent.SystemPrompt
	}
	return DefaultSystemPrompt
}

// chat performs one model round trip with the current window.
func (r *Runner) chat(ctx context.Context) (*ai.ChatResponse, error) {
	req := &ai.ChatRequest{
		Messages: r.messages,
		Model:    r.analyzer.Model(),
	}
	if !r.cfg.Agent.DisableTools {
		req.Tools = r.registry.Definitions()
	}
	return r.provider.Chat(ctx, req)
}

// compact replaces the window with the compressor's output and persists the
// refreshed rolling summary when a session is attached.
func (r *Runner) compact(ctx context.Context) {
	before := r.analyzer.TotalTokens(r.messages)
	compacted, summaryText := r.compressor.Compact(ctx, r.messages)
	r.messages = compacted
	r.printf("[Runner] Compacted: ~%d -> ~%d tokens\n", before, r.analyzer.TotalTokens(r.messages))

	if summaryText != "" && r.sessions != nil {
		if err := r.sessions.UpdateSummary(r.sessionID, summaryText); err != nil {
			logging.Warnf("[Runner] Failed to persist summary: %v", err)
		}
	}
}

// finishRound reports window stats for the completed model round trip.
func (r *Runner) finishRound(requestID string, resp *ai.ChatResponse) {
	stats := r.analyzer.Stats(r.messages)
	note := ""
	if stats.Critical {
		note = " [critical]"
	} else if stats.NearLimit {
		note = " [near limit]"
	}
	r.printf("[Runner] Context: %d/%d tokens (%.0f%%), %d messages%s\n",
		stats.CurrentTokens, stats.MaxTokens, stats.UsageFraction*100, stats.Messages, note)
	r.callbacks.OnRequestEnd(requestID, stats, resp)
}

// append adds a message to the window and stores it when a session is
// attached. System and summary messages are derived state and never stored.
func (r *Runner) append(msg session.Message) {
	r.messages = append(r.messages, msg)

	if r.sessions == nil || msg.Role == session.RoleSystem || summary.IsSummaryMessage(msg) {
		return
	}
	msg.SessionID = r.sessionID
	if err := r.sessions.AppendMessage(r.sessionID, msg); err != nil {
		logging.Warnf("[Runner] Failed to persist message: %v", err)
	}
}

// removeMemoryBlock deletes the injected memory block, if present.
func (r *Runner) removeMemoryBlock() {
	for i := range r.messages {
		if r.messages[i].Role == session.RoleSystem && memory.IsContextBlock(r.messages[i].Content) {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return
		}
	}
}

// insertMemoryBlock searches the store with the latest user message and, on
// hits, inserts a budgeted bullet block immediately before that message.
func (r *Runner) insertMemoryBlock() {
	if r.memories == nil {
		return
	}

	userIdx := -1
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Role == session.RoleUser && r.messages[i].Content != "" {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		return
	}

	cards := r.memories.Search(r.messages[userIdx].Content, r.cfg.Memory.TopK)
	block := memory.BuildContextBlock(cards, r.cfg.Memory.InjectBudgetTokens)
	if block == "" {
		return
	}

	msg := session.Message{Role: session.RoleSystem, Content: block}
	r.messages = append(r.messages[:userIdx], append([]session.Message{msg}, r.messages[userIdx:]...)...)
	logging.Debugf("[Runner] Injected %d memories before the user message", len(cards))
}

// autoReadRecommended reads files an explore result recommended, through the
// dispatcher so caching and version rules apply, and appends one user message
// aggregating the excerpts. Synthetic reads never enter tool-role messages:
// they have no originating assistant tool call, and providers reject results
// whose call is absent.
func (r *Runner) autoReadRecommended(ctx context.Context, outcomes []dispatch.Outcome) {
	var paths []string
	seen := make(map[string]bool)
	for _, o := range outcomes {
		if o.Result == nil || !o.Result.Success || o.Result.Metadata == nil {
			continue
		}
		for _, p := range stringSlice(o.Result.Metadata["recommended_files"]) {
			if p != "" && !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	if len(paths) == 0 {
		return
	}
	if len(paths) > maxAutoReadFiles {
		paths = paths[:maxAutoReadFiles]
	}

	var b strings.Builder
	b.WriteString("Excerpts from the recommended files:")
	got := 0
	for _, p := range paths {
		input, err := json.Marshal(map[string]string{"path": p})
		if err != nil {
			continue
		}
		call := session.ToolCall{ID: "autoread-" + uuid.New().String()[:8], Name: "read_file", Input: input}
		res := r.dispatcher.Dispatch(ctx, []session.ToolCall{call})
		if len(res) == 0 || res[0].Result == nil || !res[0].Result.Success {
			continue
		}

		content := res[0].Result.Output
		if len(content) > autoReadMaxChars {
			content = content[:autoReadMaxChars] + autoReadAbridgedAt
		}
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", p, content)
		got++
	}
	if got == 0 {
		return
	}

	r.printf("[Runner] Auto-read %d recommended files\n", got)
	r.append(session.Message{Role: session.RoleUser, Content: b.String()})
}

func (r *Runner) printf(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Printf(format, args...)
}

// toolResultMessage wraps one dispatch outcome as a tool-role message.
func toolResultMessage(o dispatch.Outcome) session.Message {
	results := []session.ToolResult{{
		ToolCallID: o.Call.ID,
		Content:    o.Result.Text(),
		IsError:    !o.Result.Success,
	}}
	data, _ := json.Marshal(results)
	return session.Message{Role: session.RoleTool, ToolResults: data}
}

func sessionToolCalls(calls []ai.ToolCall) []session.ToolCall {
	out := make([]session.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = session.ToolCall{ID: c.ID, Name: c.Name, Input: c.Input}
	}
	return out
}

// stringSlice coerces metadata values into a string slice. Tools built
// in-process hand over []string; anything JSON-decoded arrives as []any.
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
