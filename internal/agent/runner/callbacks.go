package runner

import (
	"encoding/json"

	"github.com/maxlabs/maxagent/internal/agent/ai"
	"github.com/maxlabs/maxagent/internal/agent/contextwin"
	"github.com/maxlabs/maxagent/internal/agent/tools"
)

// Callbacks observe the run loop. They carry no control flow: the loop
// neither inspects return values (there are none) nor guards against
// panics, since implementations are trusted in-process code.
type Callbacks interface {
	// OnToolCall fires once per dispatched tool call, after the result is
	// known. Cache hits, duplicates, and vetoed calls all fire.
	OnToolCall(name string, args json.RawMessage, result *tools.Execution, requestID string)

	// OnRequestEnd fires once per model round trip with the window stats
	// measured after the round's messages were appended.
	OnRequestEnd(requestID string, stats contextwin.ContextStats, raw *ai.ChatResponse)
}

// NopCallbacks ignores every notification.
type NopCallbacks struct{}

func (NopCallbacks) OnToolCall(string, json.RawMessage, *tools.Execution, string) {}

func (NopCallbacks) OnRequestEnd(string, contextwin.ContextStats, *ai.ChatResponse) {}
