package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the agent configuration
type Config struct {
	// DataDir is the platform data directory (default: ~/.maxagent)
	DataDir string `yaml:"data_dir"`

	// Agent holds execution loop settings
	Agent AgentConfig `yaml:"agent"`

	// Context holds token estimation and compression settings
	Context ContextConfig `yaml:"context"`

	// Dispatch holds tool dispatch settings (cache, edit limits, planner mode)
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Memory holds persistent memory settings
	Memory MemoryConfig `yaml:"memory"`

	// Providers holds model provider credentials and defaults
	Providers ProvidersConfig `yaml:"providers"`
}

// AgentConfig holds execution loop settings
type AgentConfig struct {
	MaxIterations int    `yaml:"max_iterations"` // Safety limit on loop iterations (default: 25)
	SystemPrompt  string `yaml:"system_prompt"`  // Override for the built-in system prompt
	DisableTools  bool   `yaml:"disable_tools"`  // Run without exposing tools to the model
}

// ContextConfig holds token estimation and compression settings.
// Compression runs in two stages: tool-output trimming (head+tail of oversized
// results) and threshold compaction (summarize-and-drop of the oldest messages).
type ContextConfig struct {
	MaxTokensOverride       int     `yaml:"max_tokens_override"`       // Pin the context window size, 0 = use the model table
	ThresholdFraction       float64 `yaml:"threshold_fraction"`        // Compress at this fraction of the window (default: 0.85)
	ResponseReserveFraction float64 `yaml:"response_reserve_fraction"` // Fraction of the window reserved for the response (default: 0.2)
	MinReserveFloor         int     `yaml:"min_reserve_floor"`         // Minimum reserved tokens regardless of window size (default: 1024)
	RetainedRatio           float64 `yaml:"retained_ratio"`            // Post-compaction size as a fraction of usable window (default: 0.5)
	MinMessagesToKeep       int     `yaml:"min_messages_to_keep"`      // Never retain fewer recent messages than this (default: 4)
	ToolResultMaxChars      int     `yaml:"tool_result_max_chars"`     // Only trim tool results over this length (default: 4000)
	ToolResultHeadChars     int     `yaml:"tool_result_head_chars"`    // Chars kept from the start of a trimmed result (default: 1500)
	ToolResultTailChars     int     `yaml:"tool_result_tail_chars"`    // Chars kept from the end of a trimmed result (default: 1500)
	KeepRecentToolResults   int     `yaml:"keep_recent_tool_results"`  // Most recent tool results exempt from trimming (default: 1)
	SummaryBudgetTokens     int     `yaml:"summary_budget_tokens"`     // Token allowance for the rolling summary message (default: 800)
	SummarizerInputTokens   int     `yaml:"summarizer_input_tokens"`   // Transcript size that triggers chunked summarization (default: 6000)
	SummarizerChunkTokens   int     `yaml:"summarizer_chunk_tokens"`   // Chunk size for map-phase summarization (default: 2000)
}

// DispatchConfig holds tool dispatch settings
type DispatchConfig struct {
	CacheSize     int  `yaml:"cache_size"`     // Result cache capacity (default: 12)
	EditThreshold int  `yaml:"edit_threshold"` // Single edits allowed per file per session before rejection (default: 2)
	Planner       bool `yaml:"planner"`        // Planner mode: batch read-only tool calls concurrently
	WatchProject  bool `yaml:"watch_project"`  // Watch the project dir to invalidate stale file reads
}

// MemoryConfig holds persistent memory settings
type MemoryConfig struct {
	TopK               int `yaml:"top_k"`                // Memories injected per turn (default: 5)
	InjectBudgetTokens int `yaml:"inject_budget_tokens"` // Token allowance for the injected memory block (default: 600)
}

// ProvidersConfig holds model provider credentials and defaults
type ProvidersConfig struct {
	Default   string         `yaml:"default"` // "anthropic", "openai", or "ollama"
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Ollama    OllamaConfig   `yaml:"ollama"`
}

// ProviderConfig holds credentials for an API provider.
// An empty APIKey falls back to the environment and then the system keyring.
type ProviderConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaConfig holds settings for a local Ollama server
type OllamaConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Agent: AgentConfig{
			MaxIterations: 25,
		},
		Context: ContextConfig{
			ThresholdFraction:       0.85,
			ResponseReserveFraction: 0.2,
			MinReserveFloor:         1024,
			RetainedRatio:           0.5,
			MinMessagesToKeep:       4,
			ToolResultMaxChars:      4000,
			ToolResultHeadChars:     1500,
			ToolResultTailChars:     1500,
			KeepRecentToolResults:   1,
			SummaryBudgetTokens:     800,
			SummarizerInputTokens:   6000,
			SummarizerChunkTokens:   2000,
		},
		Dispatch: DispatchConfig{
			CacheSize:     12,
			EditThreshold: 2,
			Planner:       false,
			WatchProject:  true,
		},
		Memory: MemoryConfig{
			TopK:               5,
			InjectBudgetTokens: 600,
		},
		Providers: ProvidersConfig{
			Default:   "anthropic",
			Anthropic: ProviderConfig{Model: "claude-sonnet-4-5"},
			OpenAI:    ProviderConfig{Model: "gpt-4o"},
			Ollama:    OllamaConfig{BaseURL: "http://localhost:11434", Model: "qwen3:4b"},
		},
	}
}

// DefaultDataDir returns the platform data directory for maxagent
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maxagent"
	}
	return filepath.Join(home, ".maxagent")
}

// Load loads config from the data directory's config.yaml.
// A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.expand()
	return cfg, nil
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.expand()
	return cfg, nil
}

// expand resolves ~ in DataDir and environment variables in credentials
func (c *Config) expand() {
	if strings.HasPrefix(c.DataDir, "~/") {
		home, _ := os.UserHomeDir()
		c.DataDir = filepath.Join(home, c.DataDir[2:])
	}
	c.Providers.Anthropic.APIKey = os.ExpandEnv(c.Providers.Anthropic.APIKey)
	c.Providers.OpenAI.APIKey = os.ExpandEnv(c.Providers.OpenAI.APIKey)
	c.Providers.Ollama.BaseURL = os.ExpandEnv(c.Providers.Ollama.BaseURL)
}

// Save writes the config to the data directory's config.yaml
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configPath := filepath.Join(c.DataDir, "config.yaml")
	return os.WriteFile(configPath, data, 0600)
}

// DBPath returns the path to the SQLite database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "maxagent.db")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}
