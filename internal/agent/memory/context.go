package memory

import (
	"fmt"
	"strings"

	"github.com/maxlabs/maxagent/internal/agent/contextwin"
)

// ContextHeader opens every injected memory block. The runner also uses it
// to find and remove stale blocks before re-inserting fresh ones.
const ContextHeader = "Relevant memories from previous sessions:"

// BuildContextBlock formats cards for injection into the conversation.
// Cards are added in rank order until the token budget is reached; returns
// an empty string when nothing fits.
func BuildContextBlock(cards []Card, budgetTokens int) string {
	if len(cards) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(ContextHeader)
	used := contextwin.EstimateText(ContextHeader)

	wrote := 0
	for _, card := range cards {
		line := formatCardLine(card)
		cost := contextwin.EstimateText(line)
		if budgetTokens > 0 && used+cost > budgetTokens {
			break
		}
		b.WriteString("\n")
		b.WriteString(line)
		used += cost
		wrote++
	}

	if wrote == 0 {
		return ""
	}
	return b.String()
}

func formatCardLine(card Card) string {
	line := fmt.Sprintf("- [%s] %s", card.Type, card.Content)
	if len(card.Tags) > 0 {
		line += fmt.Sprintf(" (tags: %s)", strings.Join(card.Tags, ", "))
	}
	return line
}

// IsContextBlock reports whether a message body is an injected memory block
func IsContextBlock(content string) bool {
	return strings.HasPrefix(content, ContextHeader)
}
