// Package contextwin estimates context window occupancy for a model and
// decides when the conversation needs compression.
package contextwin

import (
	"math"
	"unicode"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/config"
)

const (
	charsPerToken    = 4.0
	cjkCharsPerToken = 1.5

	// messageOverheadTokens approximates per-message framing: role tags,
	// content block wrappers, stop sequences
	messageOverheadTokens = 6
)

// ContextStats is a snapshot of estimated window occupancy
type ContextStats struct {
	CurrentTokens int            `json:"current_tokens"`
	MaxTokens     int            `json:"max_tokens"`
	Remaining     int            `json:"remaining"`
	UsageFraction float64        `json:"usage_fraction"`
	Messages      int            `json:"messages"`
	ByRole        map[string]int `json:"by_role,omitempty"`
	// NearLimit is set once the compaction threshold is crossed; Critical once
	// the response reserve no longer fits.
	NearLimit bool `json:"near_limit"`
	Critical  bool `json:"critical"`
}

// Analyzer estimates token usage against a model's context window
type Analyzer struct {
	cfg       config.ContextConfig
	model     string
	maxTokens int
}

// NewAnalyzer creates an analyzer for the given model. The window size comes
// from the model table unless cfg pins it with MaxTokensOverride.
func NewAnalyzer(cfg config.ContextConfig, model string) *Analyzer {
	max := cfg.MaxTokensOverride
	if max <= 0 {
		max = MaxTokensForModel(model)
	}
	return &Analyzer{cfg: cfg, model: model, maxTokens: max}
}

// Model returns the model this analyzer was built for
func (a *Analyzer) Model() string { return a.model }

// MaxTokens returns the context window size in tokens
func (a *Analyzer) MaxTokens() int { return a.maxTokens }

// Reserve returns the tokens held back for the model's response
func (a *Analyzer) Reserve() int {
	r := int(a.cfg.ResponseReserveFraction * float64(a.maxTokens))
	if r < a.cfg.MinReserveFloor {
		r = a.cfg.MinReserveFloor
	}
	return r
}

// Threshold returns the usage level at which compression triggers: the
// threshold fraction of the window, capped so the response reserve always fits
func (a *Analyzer) Threshold() int {
	byFraction := int(a.cfg.ThresholdFraction * float64(a.maxTokens))
	byReserve := a.maxTokens - a.Reserve()
	if byReserve < byFraction {
		return byReserve
	}
	return byFraction
}

// TotalTokens estimates the token usage of the whole window
func (a *Analyzer) TotalTokens(messages []session.Message) int {
	total := 0
	for i := range messages {
		total += EstimateMessageTokens(&messages[i])
	}
	return total
}

// NeedsCompression reports whether the window has crossed the compression threshold
func (a *Analyzer) NeedsCompression(messages []session.Message) bool {
	return a.TotalTokens(messages) >= a.Threshold()
}

// Stats returns a snapshot of window occupancy
func (a *Analyzer) Stats(messages []session.Message) ContextStats {
	byRole := make(map[string]int)
	total := 0
	for i := range messages {
		t := EstimateMessageTokens(&messages[i])
		byRole[messages[i].Role] += t
		total += t
	}
	remaining := a.maxTokens - total
	if remaining < 0 {
		remaining = 0
	}
	return ContextStats{
		CurrentTokens: total,
		MaxTokens:     a.maxTokens,
		Remaining:     remaining,
		UsageFraction: float64(total) / float64(a.maxTokens),
		Messages:      len(messages),
		ByRole:        byRole,
		NearLimit:     total >= a.Threshold(),
		Critical:      total >= a.maxTokens-a.Reserve(),
	}
}

// EstimateMessageTokens estimates tokens for one message, including framing
// overhead and tool payloads
func EstimateMessageTokens(msg *session.Message) int {
	tokens := messageOverheadTokens
	tokens += EstimateText(msg.Content)
	if len(msg.ToolCalls) > 0 {
		tokens += EstimateText(string(msg.ToolCalls))
	}
	if len(msg.ToolResults) > 0 {
		tokens += EstimateText(string(msg.ToolResults))
	}
	return tokens
}

// EstimateText estimates tokens for a string. CJK text tokenizes much denser
// than Latin text: roughly 1.5 chars per token against 4.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	var cjk, other int
	for _, r := range s {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/cjkCharsPerToken + float64(other)/charsPerToken))
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
