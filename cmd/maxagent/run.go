package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxlabs/maxagent/internal/agent/ai"
	"github.com/maxlabs/maxagent/internal/agent/contextwin"
	"github.com/maxlabs/maxagent/internal/agent/dispatch"
	"github.com/maxlabs/maxagent/internal/agent/runner"
	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/agent/tools"
	"github.com/maxlabs/maxagent/internal/config"
	"github.com/maxlabs/maxagent/internal/db"
	"github.com/maxlabs/maxagent/internal/logging"
)

// RunCmd creates the run command
func RunCmd() *cobra.Command {
	var (
		modelArg      string
		maxIterations int
		noTools       bool
		planner       bool
		projectDir    string
		quiet         bool
		noSession     bool
	)

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run the agent on a task",
		Long: `Run the agent on a task in the project directory.
With a task argument the agent works until it has a final answer, then exits.
Without one it starts an interactive loop where each line is a new task in
the same conversation.

Examples:
  maxagent run "add a --json flag to the list command"
  maxagent run "why does TestStore fail?" --project ~/src/widget
  maxagent run --provider ollama --model qwen3:4b "explain internal/db"
  maxagent run`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if maxIterations > 0 {
				cfg.Agent.MaxIterations = maxIterations
			}
			if noTools {
				cfg.Agent.DisableTools = true
			}
			if planner {
				cfg.Dispatch.Planner = true
			}
			runAgent(cfg, args, modelArg, projectDir, quiet, noSession)
		},
	}

	cmd.Flags().StringVarP(&modelArg, "model", "m", "", "model override for the chosen provider")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "cap on model round trips per task (default: from config)")
	cmd.Flags().BoolVar(&noTools, "no-tools", false, "answer from the model alone, without tool access")
	cmd.Flags().BoolVar(&planner, "planner", false, "batch read-only tool calls concurrently")
	cmd.Flags().StringVar(&projectDir, "project", "", "project directory (default: current directory)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress lines, print only the final answer")
	cmd.Flags().BoolVar(&noSession, "no-session", false, "do not persist this conversation")

	return cmd
}

// runAgent wires the provider, tools, session store, and watcher together and
// hands control to the runner.
func runAgent(cfg *config.Config, args []string, modelArg, projectDir string, quiet, noSession bool) {
	if quiet {
		logging.Disable()
	}
	logging.SetVerbose(verbose)

	workDir := projectDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: project directory %s does not exist\n", workDir)
		os.Exit(1)
	}

	provider, model, err := resolveProvider(cfg, providerArg, modelArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	registry := tools.NewCodingRegistry(workDir)
	r := runner.New(cfg, provider, model, registry, workDir)
	r.SetQuiet(quiet)
	if verbose {
		r.SetCallbacks(consoleCallbacks{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\033[33mInterrupted\033[0m")
		cancel()
	}()

	var sessions *session.Manager
	if !noSession {
		sqlDB, err := db.NewSQLite(cfg.DBPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer sqlDB.Close()

		sessions, err = session.New(sqlDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing sessions: %v\n", err)
			os.Exit(1)
		}
		if err := r.AttachSession(sessions, sessionKey); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if cfg.Dispatch.WatchProject {
		watcher := dispatch.NewWatcher(r.Dispatcher(), workDir)
		if err := watcher.Watch(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not watch project: %v\n", err)
		} else {
			defer watcher.Stop()
		}
	}

	if len(args) == 0 {
		runInteractive(ctx, r, sessions)
		return
	}
	runOnce(ctx, r, strings.Join(args, " "))
}

// runOnce runs a single task and prints the final answer
func runOnce(ctx context.Context, r *runner.Runner, task string) {
	answer, err := r.Run(ctx, task)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Println(answer)
}

// runInteractive reads tasks line by line, keeping the conversation window
// across turns
func runInteractive(ctx context.Context, r *runner.Runner, sessions *session.Manager) {
	fmt.Println("\033[1mmaxagent interactive mode\033[0m")
	fmt.Println("Type a task and press Enter. Use /help for commands, Ctrl+C to exit.")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Print("\033[36m> \033[0m")

		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if handleCommand(line, r, sessions) {
				continue
			}
		}

		answer, err := r.Run(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\033[31mError: %v\033[0m\n", err)
			continue
		}

		fmt.Printf("\033[32m%s\033[0m\n\n", answer)
	}
}

// handleCommand handles interactive slash commands
func handleCommand(cmd string, r *runner.Runner, sessions *session.Manager) bool {
	switch cmd {
	case "/help":
		fmt.Println(`Commands:
  /help     - Show this help
  /clear    - Clear the stored session history
  /memories - Show the project memory cards
  /quit     - Exit`)
		return true

	case "/clear":
		if sessions == nil {
			fmt.Println("No session attached (--no-session).")
			return true
		}
		sess, err := sessions.GetOrCreate(sessionKey)
		if err == nil {
			sessions.Reset(sess.ID)
			fmt.Println("Session cleared. Restart to begin from the empty history.")
		}
		return true

	case "/memories":
		cards := r.Memories().All()
		if len(cards) == 0 {
			fmt.Println("No memories stored for this project.")
			return true
		}
		for _, c := range cards {
			fmt.Printf("  [%s] %s\n", c.Type, c.Content)
		}
		return true

	case "/quit", "/exit":
		os.Exit(0)
		return true
	}

	return false
}

// consoleCallbacks narrates tool activity when --verbose is set. Context
// stats already print from the runner's own progress lines.
type consoleCallbacks struct{}

func (consoleCallbacks) OnToolCall(name string, args json.RawMessage, result *tools.Execution, _ string) {
	preview := string(args)
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	status := "\033[32mok\033[0m"
	if result == nil || !result.Success {
		status = "\033[31mfailed\033[0m"
	}
	fmt.Printf("\033[33m[tool] %s\033[0m %s %s\n", name, preview, status)
}

func (consoleCallbacks) OnRequestEnd(string, contextwin.ContextStats, *ai.ChatResponse) {}
