package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxlabs/maxagent/internal/agent/session"
	"github.com/maxlabs/maxagent/internal/db"
)

// SessionCmd creates the sessions command
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Run: func(cmd *cobra.Command, args []string) {
			withSessions(func(sessions *session.Manager) {
				listSessions(sessions)
			})
		},
	})

	var showLimit int
	show := &cobra.Command{
		Use:   "show [session-key]",
		Short: "Print a session's transcript",
		Run: func(cmd *cobra.Command, args []string) {
			key := sessionKey
			if len(args) > 0 {
				key = args[0]
			}
			withSessions(func(sessions *session.Manager) {
				showSession(sessions, key, showLimit)
			})
		},
	}
	show.Flags().IntVarP(&showLimit, "limit", "n", 20, "most recent messages to show (0 = all)")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "reset [session-key]",
		Short: "Clear a session's history and summary",
		Run: func(cmd *cobra.Command, args []string) {
			key := sessionKey
			if len(args) > 0 {
				key = args[0]
			}
			withSessions(func(sessions *session.Manager) {
				resetSession(sessions, key)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-key>",
		Short: "Delete a session entirely",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withSessions(func(sessions *session.Manager) {
				deleteSession(sessions, args[0])
			})
		},
	})

	return cmd
}

// withSessions opens the database, builds the session manager, and runs fn
func withSessions(fn func(*session.Manager)) {
	cfg := loadConfig()
	sqlDB, err := db.NewSQLite(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	sessions, err := session.New(sqlDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fn(sessions)
}

// listSessions lists all sessions
func listSessions(sessions *session.Manager) {
	list, err := sessions.ListSessions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	fmt.Println("Sessions:")
	for _, s := range list {
		marker := " "
		if s.SessionKey == sessionKey {
			marker = "*"
		}
		fmt.Printf("  %s %-24s %4d messages  (updated: %s)\n",
			marker, s.SessionKey, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

// showSession prints a session's summary and recent transcript
func showSession(sessions *session.Manager, key string, limit int) {
	sess := findSession(sessions, key)

	if summary, err := sessions.GetSummary(sess.ID); err == nil && summary != "" {
		fmt.Println("\033[1mSummary\033[0m")
		fmt.Println(indent(summary, "  "))
		fmt.Println()
	}

	msgs, err := sessions.GetMessages(sess.ID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}

	for _, msg := range msgs {
		fmt.Printf("\033[1m[%s]\033[0m %s\n", msg.Role, msg.CreatedAt.Format("2006-01-02 15:04:05"))
		if msg.Content != "" {
			fmt.Println(indent(preview(msg.Content, 500), "  "))
		}
		for _, name := range toolCallNames(msg.ToolCalls) {
			fmt.Printf("  \033[33m[tool call] %s\033[0m\n", name)
		}
		fmt.Println()
	}
}

// resetSession clears a session's history
func resetSession(sessions *session.Manager, key string) {
	sess, err := sessions.GetOrCreate(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := sessions.Reset(sess.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cleared session: %s\n", key)
}

// deleteSession removes a session and its messages
func deleteSession(sessions *session.Manager, key string) {
	sess := findSession(sessions, key)
	if err := sessions.DeleteSession(sess.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted session: %s\n", key)
}

// findSession looks up a session by key without creating one
func findSession(sessions *session.Manager, key string) *session.Session {
	sess, err := sessions.GetByKey(key)
	if errors.Is(err, db.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Session %q not found. Run 'maxagent sessions list'.\n", key)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return sess
}

// toolCallNames extracts the tool names from a stored tool_calls payload
func toolCallNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var calls []session.ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil
	}
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return names
}

func preview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
