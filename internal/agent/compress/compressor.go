// Package compress reduces a conversation's token footprint in two stages:
// trimming oversized tool outputs, then compacting the oldest messages into a
// rolling summary when the window crosses the compression threshold.
package compress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maxlabs/maxagent/internal/agent/contextwin"
	"github.com/maxlabs/maxagent/internal/agent/memory"
	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/summary"
	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/logging"
)

// Summarizer folds dropped messages into a rolling summary.
// *summary.Summarizer satisfies this; tests substitute fakes.
type Summarizer interface {
	Summarize(ctx context.Context, dropped []session.Message, previousSummary string) (*summary.Result, error)
}

// Compressor owns both reduction stages for one conversation.
type Compressor struct {
	analyzer   *contextwin.Analyzer
	summarizer Summarizer
	store      *memory.Store
	cfg        config.ContextConfig
}

// New creates a compressor. summarizer may be nil, in which case compaction
// discards dropped messages and carries the previous summary forward. store
// may be nil to skip memory extraction.
func New(analyzer *contextwin.Analyzer, summarizer Summarizer, store *memory.Store, cfg config.ContextConfig) *Compressor {
	return &Compressor{analyzer: analyzer, summarizer: summarizer, store: store, cfg: cfg}
}

// NeedsCompression reports whether the window has crossed the threshold.
func (c *Compressor) NeedsCompression(messages []session.Message) bool {
	return c.analyzer.NeedsCompression(messages)
}

// TrimToolOutputs shortens oversized tool results to head + tail, leaving the
// most recent tool messages untouched. Already-trimmed results fall under the
// size cap, so running it again is a no-op.
func (c *Compressor) TrimToolOutputs(messages []session.Message) []session.Message {
	exempt := c.exemptToolMessages(messages)

	// First pass: anything to do?
	needsTrim := false
	for i := range messages {
		if messages[i].Role != session.RoleTool || exempt[i] {
			continue
		}
		if c.hasOversizedResult(&messages[i]) {
			needsTrim = true
			break
		}
	}
	if !needsTrim {
		return messages
	}

	result := make([]session.Message, len(messages))
	copy(result, messages)

	trimmed := 0
	saved := 0
	for i := range result {
		if result[i].Role != session.RoleTool || exempt[i] || len(result[i].ToolResults) == 0 {
			continue
		}

		var results []session.ToolResult
		if err := json.Unmarshal(result[i].ToolResults, &results); err != nil {
			continue
		}

		changed := false
		for j := range results {
			if len(results[j].Content) <= c.cfg.ToolResultMaxChars {
				continue
			}
			oldLen := len(results[j].Content)
			head := results[j].Content[:c.cfg.ToolResultHeadChars]
			tail := results[j].Content[oldLen-c.cfg.ToolResultTailChars:]
			omitted := oldLen - c.cfg.ToolResultHeadChars - c.cfg.ToolResultTailChars
			results[j].Content = head + fmt.Sprintf("\n... [omitted %d chars] ...\n", omitted) + tail

			saved += oldLen - len(results[j].Content)
			trimmed++
			changed = true
		}

		if changed {
			if newData, err := json.Marshal(results); err == nil {
				result[i].ToolResults = newData
			}
		}
	}

	if trimmed > 0 {
		logging.Debugf("[Compressor] Trimmed %d tool results (saved ~%d chars)", trimmed, saved)
	}
	return result
}

// exemptToolMessages returns the indices of the newest tool messages that
// trimming must leave alone.
func (c *Compressor) exemptToolMessages(messages []session.Message) map[int]bool {
	exempt := make(map[int]bool)
	remaining := c.cfg.KeepRecentToolResults
	for i := len(messages) - 1; i >= 0 && remaining > 0; i-- {
		if messages[i].Role == session.RoleTool {
			exempt[i] = true
			remaining--
		}
	}
	return exempt
}

func (c *Compressor) hasOversizedResult(msg *session.Message) bool {
	if len(msg.ToolResults) == 0 {
		return false
	}
	var results []session.ToolResult
	if err := json.Unmarshal(msg.ToolResults, &results); err != nil {
		return false
	}
	for _, r := range results {
		if len(r.Content) > c.cfg.ToolResultMaxChars {
			return true
		}
	}
	return false
}

// Compact reduces the conversation below the retention target. It trims tool
// outputs first; if the window is still over the threshold it summarizes the
// oldest messages into a single rolling summary message and keeps the newest
// ones. Returns the reduced window and the new summary text ("" when no
// compaction ran or no summary exists).
//
// The system prompt always survives. A previous summary message is folded
// into the new summary rather than kept. Summarizer failures degrade to
// dropping the old messages with the previous summary carried forward.
func (c *Compressor) Compact(ctx context.Context, messages []session.Message) ([]session.Message, string) {
	messages = c.TrimToolOutputs(messages)
	if !c.analyzer.NeedsCompression(messages) {
		return messages, ""
	}

	var system *session.Message
	rest := messages
	if len(rest) > 0 && rest[0].Role == session.RoleSystem {
		sys := rest[0]
		system = &sys
		rest = rest[1:]
	}

	// Pull out the previous rolling summary so it folds into the new one.
	prevSummary := ""
	withoutSummary := make([]session.Message, 0, len(rest))
	for _, msg := range rest {
		if summary.IsSummaryMessage(msg) {
			prevSummary = summary.Body(msg)
			continue
		}
		withoutSummary = append(withoutSummary, msg)
	}
	rest = withoutSummary

	target := int(c.cfg.RetainedRatio * float64(c.analyzer.MaxTokens()-c.analyzer.Reserve()))

	systemTokens := 0
	if system != nil {
		systemTokens = contextwin.EstimateMessageTokens(system)
	}
	keepBudget := target - systemTokens - c.cfg.SummaryBudgetTokens

	// Keep the newest messages that fit the budget, never fewer than the floor.
	cut := len(rest)
	budget := keepBudget
	for i := len(rest) - 1; i >= 0; i-- {
		tokens := contextwin.EstimateMessageTokens(&rest[i])
		if len(rest)-cut >= c.cfg.MinMessagesToKeep && tokens > budget {
			break
		}
		cut = i
		budget -= tokens
	}

	// A tool message at the head of the kept region answers a call that was
	// just dropped; providers filter orphaned results, so drop it too.
	for cut < len(rest) && rest[cut].Role == session.RoleTool {
		cut++
	}

	dropped := rest[:cut]
	kept := rest[cut:]

	summaryText := prevSummary
	if c.summarizer != nil && len(dropped) > 0 {
		res, err := c.summarizer.Summarize(ctx, dropped, prevSummary)
		if err != nil {
			logging.Warnf("[Compressor] Summarization failed, dropping %d messages unsummarized: %v", len(dropped), err)
		} else {
			summaryText = res.Summary
			if c.store != nil && len(res.Memories) > 0 {
				if n, err := c.store.AppendAll(res.Memories); err != nil {
					logging.Warnf("[Compressor] Failed to persist memories: %v", err)
				} else if n > 0 {
					logging.Debugf("[Compressor] Saved %d memories from compacted history", n)
				}
			}
		}
	}

	out := make([]session.Message, 0, len(kept)+2)
	if system != nil {
		out = append(out, *system)
	}
	if strings.TrimSpace(summaryText) != "" {
		out = append(out, summary.NewMessage(summaryText))
	}
	prefix := len(out)
	out = append(out, kept...)

	// Still over target: drop the oldest retained message one at a time until
	// it fits or none remain. The system prompt and the summary never drop.
	for c.analyzer.TotalTokens(out) > target && len(out) > prefix {
		out = append(out[:prefix], out[prefix+1:]...)
	}

	logging.Infof("[Compressor] Compacted %d -> %d messages (%d summarized)", len(messages), len(out), len(dropped))
	return out, summaryText
}
