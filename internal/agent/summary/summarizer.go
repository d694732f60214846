package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maxlabs/maxagent/internal/agent/ai"
	"github.com/maxlabs/maxagent/internal/agent/contextwin"
	"github.com/maxlabs/maxagent/internal/agent/memory"
	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/logging"
)

// SummaryHeader marks the single synthetic message carrying the rolling
// summary. At most one message with this header exists in a conversation.
const SummaryHeader = "[Conversation summary]"

// NewMessage wraps a summary body in the synthetic assistant message.
func NewMessage(body string) session.Message {
	return session.Message{
		Role:    session.RoleAssistant,
		Content: SummaryHeader + "\n" + body,
	}
}

// IsSummaryMessage reports whether msg is the rolling summary message.
func IsSummaryMessage(msg session.Message) bool {
	return msg.Role == session.RoleAssistant && strings.HasPrefix(msg.Content, SummaryHeader)
}

// Body returns the summary text without the header.
func Body(msg session.Message) string {
	return strings.TrimSpace(strings.TrimPrefix(msg.Content, SummaryHeader))
}

// Result is what one summarization round produces.
type Result struct {
	Summary  string
	Memories []memory.Card
}

const summarizePrompt = `You are compressing the older part of a coding-agent conversation so the agent can keep working with less context.

Previous rolling summary (may be empty):
%s

Conversation segment to fold in:
%s

Respond ONLY with valid JSON, no other text, in this shape:
{
  "summary": "<markdown summary merging the previous summary with the new segment: state of the task, decisions made, files touched, open problems>",
  "memories": [
    {"content": "<a durable fact worth remembering across sessions>", "type": "goal|decision|constraint|todo|code|fact", "tags": ["tag1", "tag2"]}
  ]
}

Keep the summary under %d words. Only include memories that matter beyond this session; an empty array is fine.`

const condensePrompt = `Condense this segment of a coding-agent conversation into a short plain-text summary. Keep task state, decisions, file names, and errors; drop pleasantries and raw file dumps.

%s

Respond with the summary text only.`

// Summarizer folds dropped conversation history into a rolling summary via
// the model, extracting durable memories along the way.
type Summarizer struct {
	provider ai.Provider
	model    string
	cfg      config.ContextConfig
}

// New creates a summarizer using the given provider and model.
func New(provider ai.Provider, model string, cfg config.ContextConfig) *Summarizer {
	return &Summarizer{provider: provider, model: model, cfg: cfg}
}

// Summarize merges the dropped messages and the previous summary into a new
// rolling summary. Transport errors propagate so the caller can fall back;
// malformed model output never errors (the raw text becomes the summary).
func (s *Summarizer) Summarize(ctx context.Context, dropped []session.Message, previousSummary string) (*Result, error) {
	transcript := Transcript(dropped)
	if strings.TrimSpace(transcript) == "" {
		return &Result{Summary: previousSummary}, nil
	}

	// Over the input budget: summarize fixed-size chunks independently,
	// then run exactly one reduce pass over the chunk summaries plus the
	// previous summary. The reduce input is never re-split.
	if contextwin.EstimateText(transcript) > s.cfg.SummarizerInputTokens {
		chunks := splitByTokens(transcript, s.cfg.SummarizerChunkTokens)
		logging.Infof("[Summarizer] Transcript over budget, map-reducing %d chunks", len(chunks))

		parts := make([]string, 0, len(chunks))
		for i, chunk := range chunks {
			condensed, err := s.complete(ctx, fmt.Sprintf(condensePrompt, chunk))
			if err != nil {
				return nil, fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
			}
			parts = append(parts, strings.TrimSpace(condensed))
		}
		transcript = strings.Join(parts, "\n\n")
	}

	raw, err := s.complete(ctx, fmt.Sprintf(summarizePrompt, orNone(previousSummary), transcript, s.cfg.SummaryBudgetTokens/2))
	if err != nil {
		return nil, err
	}
	return parseResult(raw), nil
}

// complete runs a single user-prompt request and returns the response text.
func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	maxTokens := s.cfg.SummaryBudgetTokens * 2
	if maxTokens < 1024 {
		maxTokens = 1024
	}
	resp, err := s.provider.Chat(ctx, &ai.ChatRequest{
		Messages:  []session.Message{{Role: session.RoleUser, Content: prompt}},
		Model:     s.model,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Transcript renders messages as a flat role-prefixed text block.
func Transcript(messages []session.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch {
		case msg.Role == session.RoleTool:
			var results []session.ToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err != nil {
				continue
			}
			for _, r := range results {
				status := ""
				if r.IsError {
					status = " (failed)"
				}
				fmt.Fprintf(&b, "tool%s: %s\n\n", status, r.Content)
			}
		case msg.Content != "":
			fmt.Fprintf(&b, "%s: %s\n\n", msg.Role, msg.Content)
		}
		if len(msg.ToolCalls) > 0 {
			var calls []session.ToolCall
			if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
				names := make([]string, 0, len(calls))
				for _, c := range calls {
					names = append(names, c.Name)
				}
				fmt.Fprintf(&b, "assistant called tools: %s\n\n", strings.Join(names, ", "))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// splitByTokens splits text into chunks of roughly chunkTokens each,
// breaking at line boundaries.
func splitByTokens(text string, chunkTokens int) []string {
	if chunkTokens <= 0 {
		chunkTokens = 2000
	}

	var chunks []string
	var current strings.Builder
	currentTokens := 0

	for _, line := range strings.Split(text, "\n") {
		lineTokens := contextwin.EstimateText(line) + 1
		if currentTokens+lineTokens > chunkTokens && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentTokens = 0
		}
		current.WriteString(line)
		current.WriteString("\n")
		currentTokens += lineTokens
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// resultPayload is the JSON shape requested from the model.
type resultPayload struct {
	Summary  string `json:"summary"`
	Memories []struct {
		Content string   `json:"content"`
		Type    string   `json:"type"`
		Tags    []string `json:"tags"`
	} `json:"memories"`
}

// parseResult turns model output into a Result. It tries progressively
// looser parses and never fails: direct JSON, a fenced block, the first
// balanced JSON span, and finally the raw text as the summary.
func parseResult(raw string) *Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Result{}
	}

	var payload resultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return payloadToResult(&payload)
	}
	if fenced := extractFenced(raw); fenced != "" {
		if err := json.Unmarshal([]byte(fenced), &payload); err == nil {
			return payloadToResult(&payload)
		}
	}
	if span := extractBalanced(raw); span != "" {
		if err := json.Unmarshal([]byte(span), &payload); err == nil {
			return payloadToResult(&payload)
		}
	}
	// The model answered in prose; keep it verbatim rather than losing it.
	return &Result{Summary: raw}
}

func payloadToResult(p *resultPayload) *Result {
	res := &Result{Summary: strings.TrimSpace(p.Summary)}
	for _, m := range p.Memories {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		cardType := m.Type
		switch cardType {
		case memory.TypeGoal, memory.TypeDecision, memory.TypeConstraint,
			memory.TypeTodo, memory.TypeCode, memory.TypeFact:
		default:
			cardType = memory.TypeFact
		}
		res.Memories = append(res.Memories, memory.Card{
			Content: content,
			Type:    cardType,
			Tags:    m.Tags,
			Source:  "summarizer",
		})
	}
	return res
}

// extractFenced returns the body of the first ``` fenced block, if any.
func extractFenced(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// Skip the language tag on the fence line.
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// extractBalanced returns the first balanced {...} or [...] span.
func extractBalanced(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	opener := text[start]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
