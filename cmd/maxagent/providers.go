package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxlabs/maxagent/internal/agent/ai"
	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/keyring"
)

// envVars maps provider names to the environment variable holding their key
var envVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// resolveProvider builds the provider named by the flag (or the config
// default). API keys resolve config first, then the environment, then the OS
// keychain.
func resolveProvider(cfg *config.Config, name, modelOverride string) (ai.Provider, string, error) {
	if name == "" {
		name = cfg.Providers.Default
	}

	switch name {
	case "anthropic":
		model := cfg.Providers.Anthropic.Model
		if modelOverride != "" {
			model = modelOverride
		}
		key := resolveAPIKey(cfg.Providers.Anthropic.APIKey, "anthropic")
		if key == "" {
			return nil, "", fmt.Errorf("no Anthropic API key: set ANTHROPIC_API_KEY or run 'maxagent providers set-key anthropic'")
		}
		return ai.NewAnthropicProvider(key, model), model, nil

	case "openai":
		model := cfg.Providers.OpenAI.Model
		if modelOverride != "" {
			model = modelOverride
		}
		key := resolveAPIKey(cfg.Providers.OpenAI.APIKey, "openai")
		if key == "" {
			return nil, "", fmt.Errorf("no OpenAI API key: set OPENAI_API_KEY or run 'maxagent providers set-key openai'")
		}
		return ai.NewOpenAIProvider(key, model), model, nil

	case "ollama":
		model := cfg.Providers.Ollama.Model
		if modelOverride != "" {
			model = modelOverride
		}
		baseURL := cfg.Providers.Ollama.BaseURL
		if !ai.CheckOllamaAvailable(baseURL) {
			return nil, "", fmt.Errorf("ollama server not reachable at %s (is 'ollama serve' running?)", baseURL)
		}
		if err := ai.EnsureOllamaModel(baseURL, model); err != nil {
			return nil, "", fmt.Errorf("ollama: %w", err)
		}
		p, err := ai.NewOllamaProvider(baseURL, model)
		if err != nil {
			return nil, "", fmt.Errorf("ollama: %w", err)
		}
		return p, model, nil

	default:
		return nil, "", fmt.Errorf("unknown provider %q (use anthropic, openai, or ollama)", name)
	}
}

/// resolveAPIKey returns the first key found: config, environment, OS keychain.
func resolveAPIKey(configured, provider string) string {
	if configured != "" {
		return configured
	}
	if key := os.Getenv(envVars[provider]); key != "" {
		return key
	}
	if keyring.Available() {
		if key, err := keyring.GetAPIKey(provider); err == nil {
			return key
		}
	}
	return ""
}

// ProvidersCmd creates the providers command
func ProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers and manage API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show configured providers and where their keys come from",
		Run: func(cmd *cobra.Command, args []string) {
			listProviders(loadConfig())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-key <provider> [key]",
		Short: "Store an API key in the OS keychain",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			setProviderKey(args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-key <provider>",
		Short: "Remove a stored API key from the OS keychain",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			deleteProviderKey(args[0])
		},
	})

	return cmd
}

// listProviders prints each provider, its model, and its key source
func listProviders(cfg *config.Config) {
	rows := []struct {
		name  string
		model string
		cred  string
	}{
		{"anthropic", cfg.Providers.Anthropic.Model, keySource(cfg.Providers.Anthropic.APIKey, "anthropic")},
		{"openai", cfg.Providers.OpenAI.Model, keySource(cfg.Providers.OpenAI.APIKey, "openai")},
		{"ollama", cfg.Providers.Ollama.Model, ollamaStatus(cfg.Providers.Ollama.BaseURL)},
	}

	fmt.Println("Providers:")
	for _, row := range rows {
		marker := " "
		if row.name == cfg.Providers.Default {
			marker = "*"
		}
		fmt.Printf("  %s %-10s model=%-22s %s\n", marker, row.name, row.model, row.cred)
	}
	fmt.Println()
	fmt.Println("* = default. Change with 'providers.default' in config.yaml.")
}

// ollamaStatus reports whether the local server is up and how many models it has
func ollamaStatus(baseURL string) string {
	if !ai.CheckOllamaAvailable(baseURL) {
		return "not reachable"
	}
	models, err := ai.ListOllamaModels(baseURL)
	if err != nil {
		return "reachable"
	}
	return fmt.Sprintf("reachable, %d models", len(models))
}

// keySource reports where a provider's API key would come from
func keySource(configured, provider string) string {
	if configured != "" {
		return "key=config"
	}
	if os.Getenv(envVars[provider]) != "" {
		return "key=env:" + envVars[provider]
	}
	if keyring.Available() {
		if _, err := keyring.GetAPIKey(provider); err == nil {
			return "key=keychain"
		}
	}
	return "key=not set"
}

// setProviderKey stores a key in the OS keychain, prompting if not given
func setProviderKey(args []string) {
	provider := args[0]
	if _, ok := envVars[provider]; !ok {
		fmt.Fprintf(os.Stderr, "Error: %q does not use API keys (use anthropic or openai)\n", provider)
		os.Exit(1)
	}

	var key string
	if len(args) > 1 {
		key = args[1]
	} else {
		fmt.Printf("Paste the API key for %s: ", provider)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading key: %v\n", err)
			os.Exit(1)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: empty key")
		os.Exit(1)
	}

	if !keyring.Available() {
		fmt.Fprintf(os.Stderr, "Error: no OS keychain available. Set %s instead.\n", envVars[provider])
		os.Exit(1)
	}
	if err := keyring.SetAPIKey(provider, key); err != nil {
		fmt.Fprintf(os.Stderr, "Error storing key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Stored %s key in the OS keychain.\n", provider)
}

// deleteProviderKey removes a stored key
func deleteProviderKey(provider string) {
	err := keyring.DeleteAPIKey(provider)
	if err != nil {
		if keyring.IsNotFound(err) {
			fmt.Printf("No stored key for %s.\n", provider)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %s key from the OS keychain.\n", provider)
}
