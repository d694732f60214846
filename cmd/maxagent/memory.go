package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maxlabs/maxagent/internal/agent/memory"
)

// MemoryCmd creates the memory command
func MemoryCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit the project memory",
		Long: `The agent keeps small memory cards per project in .maxagent/memory.json,
extracted from compacted history or added by hand. Matching cards are
injected into the context at the start of each task.`,
	}
	cmd.PersistentFlags().StringVar(&projectDir, "project", "", "project directory (default: current directory)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all memory cards",
		Run: func(cmd *cobra.Command, args []string) {
			store := openStore(projectDir)
			cards := store.All()
			if len(cards) == 0 {
				fmt.Printf("No memories stored (%s).\n", store.Path())
				return
			}
			fmt.Printf("Memories (%s):\n", store.Path())
			printCards(cards)
		},
	})

	var topK int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memory cards the way the agent does",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openStore(projectDir)
			cards := store.Search(strings.Join(args, " "), topK)
			if len(cards) == 0 {
				fmt.Println("No matches.")
				return
			}
			printCards(cards)
		},
	}
	search.Flags().IntVarP(&topK, "top", "k", 5, "maximum cards to return")
	cmd.AddCommand(search)

	var cardType string
	var tags string
	add := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a memory card by hand",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := openStore(projectDir)
			card := memory.Card{
				Content: strings.Join(args, " "),
				Type:    cardType,
				Source:  "manual",
			}
			if tags != "" {
				for _, t := range strings.Split(tags, ",") {
					if t = strings.TrimSpace(t); t != "" {
						card.Tags = append(card.Tags, t)
					}
				}
			}
			stored, err := store.Append(card)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !stored {
				fmt.Println("Already stored, skipped.")
				return
			}
			fmt.Printf("Stored in %s\n", store.Path())
		},
	}
	add.Flags().StringVarP(&cardType, "type", "t", memory.TypeFact, "card type: goal, decision, constraint, todo, code, or fact")
	add.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	cmd.AddCommand(add)

	return cmd
}

// openStore opens the memory store for the project directory
func openStore(projectDir string) *memory.Store {
	dir := projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return memory.NewStore(abs)
}

func printCards(cards []memory.Card) {
	for _, c := range cards {
		line := fmt.Sprintf("  [%s] %s", c.Type, c.Content)
		if len(c.Tags) > 0 {
			line += fmt.Sprintf("  (tags: %s)", strings.Join(c.Tags, ", "))
		}
		fmt.Println(line)
	}
}
