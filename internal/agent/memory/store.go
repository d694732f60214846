// Package memory provides the agent's persistent project memory: a JSON file
// of small cards extracted from past sessions, searched lexically when
// assembling context for a new turn.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Card types
const (
	TypeGoal       = "goal"
	TypeDecision   = "decision"
	TypeConstraint = "constraint"
	TypeTodo       = "todo"
	TypeCode       = "code"
	TypeFact       = "fact"
)

// Card is one remembered item
type Card struct {
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source,omitempty"` // session key the card came from
}

// Store is a JSON-file backed collection of memory cards.
// The file lives at <project>/.maxagent/memory.json.
type Store struct {
	mu     sync.Mutex
	path   string
	cards  []Card
	loaded bool
}

// NewStore creates a store rooted in the given project directory.
// The backing file is loaded lazily; a missing or corrupt file yields an
// empty store rather than an error.
func NewStore(projectDir string) *Store {
	return &Store{
		path: filepath.Join(projectDir, ".maxagent", "memory.json"),
	}
}

// Path returns the backing file location
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var cards []Card
	if err := json.Unmarshal(data, &cards); err != nil {
		return
	}
	s.cards = cards
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}
	data, err := json.MarshalIndent(s.cards, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// Append stores a card unless an existing card has the same trimmed content.
// Returns true if the card was stored.
func (s *Store) Append(card Card) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	content := strings.TrimSpace(card.Content)
	if content == "" {
		return false, nil
	}
	for _, existing := range s.cards {
		if strings.TrimSpace(existing.Content) == content {
			return false, nil
		}
	}

	card.Content = content
	if card.Type == "" {
		card.Type = TypeFact
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	s.cards = append(s.cards, card)
	return true, s.save()
}

// AppendAll stores each card, skipping duplicates. Returns how many were stored.
func (s *Store) AppendAll(cards []Card) (int, error) {
	stored := 0
	for _, card := range cards {
		ok, err := s.Append(card)
		if err != nil {
			return stored, err
		}
		if ok {
			stored++
		}
	}
	return stored, nil
}

// All returns every stored card, oldest first
func (s *Store) All() []Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	out := make([]Card, len(s.cards))
	copy(out, s.cards)
	return out
}

// Search returns up to topK cards ranked by lexical overlap with the query.
// Each query token found among a card's content or tag tokens scores +3;
// ties break toward newer cards. Cards that match nothing are omitted.
func (s *Store) Search(query string, topK int) []Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || topK <= 0 {
		return nil
	}

	type scored struct {
		card  Card
		score int
	}

	var matches []scored
	for _, card := range s.cards {
		cardTokens := make(map[string]bool)
		for _, t := range tokenize(card.Content) {
			cardTokens[t] = true
		}
		for _, tag := range card.Tags {
			for _, t := range tokenize(tag) {
				cardTokens[t] = true
			}
		}

		score := 0
		seen := make(map[string]bool)
		for _, t := range queryTokens {
			if seen[t] {
				continue
			}
			seen[t] = true
			if cardTokens[t] {
				score += 3
			}
		}
		if score > 0 {
			matches = append(matches, scored{card: card, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].card.CreatedAt.After(matches[j].card.CreatedAt)
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	out := make([]Card, len(matches))
	for i, m := range matches {
		out[i] = m.card
	}
	return out
}

// tokenize splits text into lowercase ASCII word/number tokens plus CJK
// n-grams. CJK scripts have no word boundaries, so runs are decomposed into
// 2-, 3-, and 4-grams; runs of one or two characters are emitted whole.
func tokenize(text string) []string {
	var tokens []string
	var word []rune
	var cjkRun []rune

	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	flushCJK := func() {
		if len(cjkRun) == 0 {
			return
		}
		if len(cjkRun) <= 2 {
			tokens = append(tokens, string(cjkRun))
		} else {
			for n := 2; n <= 4; n++ {
				for i := 0; i+n <= len(cjkRun); i++ {
					tokens = append(tokens, string(cjkRun[i:i+n]))
				}
			}
		}
		cjkRun = cjkRun[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjkRun = append(cjkRun, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()

	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
