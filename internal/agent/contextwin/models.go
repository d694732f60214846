package contextwin

import "strings"

// DefaultMaxContextTokens is the conservative window assumed for unknown models
const DefaultMaxContextTokens = 32768

// modelMaxTokens maps model identifiers to context window sizes.
// Keys are matched exactly first, then as substrings (longest key wins),
// so dated variants like "claude-sonnet-4-5-20250929" resolve correctly.
var modelMaxTokens = map[string]int{
	// Anthropic
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,
	"claude-sonnet-4-5": 200000,
	"claude-haiku-4-5":  200000,
	"claude-3-7-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-3-5-sonnet": 200000,

	// OpenAI
	"gpt-4.1":       1047576,
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-4-turbo":   128000,
	"gpt-4":         8192,
	"gpt-3.5-turbo": 16385,
	"o1":            200000,
	"o3":            200000,

	// Common local models
	"llama3.1":    131072,
	"llama3":      8192,
	"qwen3":       32768,
	"qwen2.5":     32768,
	"mistral":     32768,
	"deepseek-r1": 65536,
	"gemma3":      131072,
}

// MaxTokensForModel resolves a model's context window size.
// Exact match, then longest substring match, then the global default.
func MaxTokensForModel(model string) int {
	if model == "" {
		return DefaultMaxContextTokens
	}
	if max, ok := modelMaxTokens[model]; ok {
		return max
	}

	bestLen := 0
	best := 0
	for key, max := range modelMaxTokens {
		if strings.Contains(model, key) && len(key) > bestLen {
			bestLen = len(key)
			best = max
		}
	}
	if bestLen > 0 {
		return best
	}
	return DefaultMaxContextTokens
}
