package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/db/migrations"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile     string
	sessionKey  string
	providerArg string
	verbose     bool
)

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "maxagent",
		Short:   "maxagent - a coding agent for your terminal",
		Version: version,
		Long: `maxagent is a coding agent that works on a project directory: it reads and
edits files, searches code, runs git commands, and keeps long conversations
inside the model's context window by compacting old turns into a summary.

Just type 'maxagent run "your task"' to get started.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Goose migration chatter is noise everywhere except verbose mode
			migrations.QuietMode = !verbose
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.maxagent/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&sessionKey, "session", "s", "default", "session key for conversation history")
	rootCmd.PersistentFlags().StringVarP(&providerArg, "provider", "p", "", "model provider: anthropic, openai, or ollama (default: from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (tool calls, context stats)")

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(SessionCmd())
	rootCmd.AddCommand(MemoryCmd())
	rootCmd.AddCommand(ProvidersCmd())

	return rootCmd
}

// loadConfig loads the agent config, honoring --config
func loadConfig() *config.Config {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
