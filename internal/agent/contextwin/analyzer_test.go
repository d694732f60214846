package contextwin

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/config"
)

func TestEstimateText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"ascii exact", "abcdefgh", 2},          // 8 chars / 4
		{"ascii rounds up", "abcde", 2},         // ceil(5/4)
		{"cjk", "你好世界", 3},                      // ceil(4/1.5)
		{"cjk dense", strings.Repeat("语", 9), 6}, // 9/1.5
		{"mixed", "hi你好", 2},                    // ceil(2/4 + 2/1.5) = ceil(1.83)
		{"kana", "こんにちは", 4},                    // ceil(5/1.5)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateText(tt.text); got != tt.want {
				t.Errorf("EstimateText(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCJKCountsDenserThanASCII(t *testing.T) {
	ascii := strings.Repeat("a", 120)
	cjk := strings.Repeat("文", 120)

	if EstimateText(cjk) <= EstimateText(ascii) {
		t.Errorf("CJK should estimate more tokens per char: cjk=%d ascii=%d",
			EstimateText(cjk), EstimateText(ascii))
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	empty := session.Message{Role: session.RoleUser}
	if got := EstimateMessageTokens(&empty); got != 6 {
		t.Errorf("empty message should cost only framing overhead, got %d", got)
	}

	withContent := session.Message{Role: session.RoleUser, Content: strings.Repeat("a", 40)}
	if got := EstimateMessageTokens(&withContent); got != 16 {
		t.Errorf("expected 6 + 10 tokens, got %d", got)
	}

	withTools := session.Message{
		Role:      session.RoleAssistant,
		ToolCalls: json.RawMessage(`[{"id":"call_1","name":"read_file","input":{"path":"main.go"}}]`),
	}
	plain := EstimateMessageTokens(&empty)
	if got := EstimateMessageTokens(&withTools); got <= plain {
		t.Errorf("tool payload should add to the estimate: %d <= %d", got, plain)
	}
}

func TestMaxTokensForModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o", 128000},
		{"gpt-4o-2024-11-20", 128000}, // substring, longest key wins over gpt-4
		{"gpt-4", 8192},
		{"claude-sonnet-4-5-20250929", 200000},
		{"qwen3:4b", 32768},
		{"totally-unknown-model", DefaultMaxContextTokens},
		{"", DefaultMaxContextTokens},
	}

	for _, tt := range tests {
		if got := MaxTokensForModel(tt.model); got != tt.want {
			t.Errorf("MaxTokensForModel(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func testConfig(maxTokens int) config.ContextConfig {
	cfg := config.DefaultConfig().Context
	cfg.MaxTokensOverride = maxTokens
	return cfg
}

func TestReserveAndThreshold(t *testing.T) {
	// 0.2 * 8000 = 1600 beats the 1024 floor
	a := NewAnalyzer(testConfig(8000), "test-model")
	if got := a.Reserve(); got != 1600 {
		t.Errorf("Reserve() = %d, want 1600", got)
	}
	// min(0.85*8000, 8000-1600) = min(6800, 6400)
	if got := a.Threshold(); got != 6400 {
		t.Errorf("Threshold() = %d, want 6400", got)
	}

	// Small window: the floor dominates the reserve
	small := NewAnalyzer(testConfig(3000), "test-model")
	if got := small.Reserve(); got != 1024 {
		t.Errorf("Reserve() = %d, want floor 1024", got)
	}
	// min(2550, 3000-1024) = 1976
	if got := small.Threshold(); got != 1976 {
		t.Errorf("Threshold() = %d, want 1976", got)
	}
}

func TestNeedsCompression(t *testing.T) {
	a := NewAnalyzer(testConfig(8000), "test-model")

	// Each message: 6 overhead + 250 content tokens
	msg := session.Message{Role: session.RoleUser, Content: strings.Repeat("a", 1000)}

	var small []session.Message
	for i := 0; i < 5; i++ {
		small = append(small, msg)
	}
	if a.NeedsCompression(small) {
		t.Errorf("5 messages (~%d tokens) should not need compression at threshold %d",
			a.TotalTokens(small), a.Threshold())
	}

	var large []session.Message
	for i := 0; i < 26; i++ {
		large = append(large, msg)
	}
	if !a.NeedsCompression(large) {
		t.Errorf("26 messages (~%d tokens) should need compression at threshold %d",
			a.TotalTokens(large), a.Threshold())
	}
}

func TestStats(t *testing.T) {
	a := NewAnalyzer(testConfig(8000), "test-model")
	messages := []session.Message{
		{Role: session.RoleSystem, Content: strings.Repeat("s", 400)},
		{Role: session.RoleUser, Content: strings.Repeat("u", 400)},
	}

	stats := a.Stats(messages)
	if stats.MaxTokens != 8000 {
		t.Errorf("MaxTokens = %d, want 8000", stats.MaxTokens)
	}
	if stats.CurrentTokens != a.TotalTokens(messages) {
		t.Error("CurrentTokens disagrees with TotalTokens")
	}
	if stats.Remaining != stats.MaxTokens-stats.CurrentTokens {
		t.Errorf("Remaining = %d, want %d", stats.Remaining, stats.MaxTokens-stats.CurrentTokens)
	}
	if stats.Messages != 2 {
		t.Errorf("Messages = %d, want 2", stats.Messages)
	}
	if stats.ByRole[session.RoleSystem] == 0 || stats.ByRole[session.RoleUser] == 0 {
		t.Error("ByRole should account for both roles")
	}
	if stats.UsageFraction <= 0 || stats.UsageFraction >= 1 {
		t.Errorf("UsageFraction = %v, want between 0 and 1", stats.UsageFraction)
	}
	if stats.NearLimit || stats.Critical {
		t.Error("a mostly empty window should not be near limit or critical")
	}

	full := a.Stats([]session.Message{
		{Role: session.RoleSystem, Content: strings.Repeat("s", 400)},
		{Role: session.RoleUser, Content: strings.Repeat("u", 28000)},
	})
	if !full.NearLimit {
		t.Errorf("%d of %d tokens should be past the threshold %d",
			full.CurrentTokens, full.MaxTokens, a.Threshold())
	}
	if !full.Critical {
		t.Errorf("%d of %d tokens should leave less than the %d token reserve",
			full.CurrentTokens, full.MaxTokens, a.Reserve())
	}
}

func TestMaxTokensOverride(t *testing.T) {
	cfg := config.DefaultConfig().Context

	// Without override the model table applies
	a := NewAnalyzer(cfg, "gpt-4o")
	if a.MaxTokens() != 128000 {
		t.Errorf("MaxTokens() = %d, want 128000", a.MaxTokens())
	}

	// Override pins the window regardless of model
	cfg.MaxTokensOverride = 9000
	b := NewAnalyzer(cfg, "gpt-4o")
	if b.MaxTokens() != 9000 {
		t.Errorf("MaxTokens() = %d, want override 9000", b.MaxTokens())
	}
}
