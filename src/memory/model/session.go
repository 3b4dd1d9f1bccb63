package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn is one user/assistant exchange inside a session.
type Turn struct {
	User      string            `json:"user"`
	Assistant string            `json:"assistant"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// NewTurn creates a timestamped exchange.
func NewTurn(user, assistant string) Turn {
	return Turn{
		User:      user,
		Assistant: assistant,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
}

// CombinedText renders the exchange as a single block for vectorization.
func (t Turn) CombinedText() string {
	return fmt.Sprintf("User: %s\nAssistant: %s", t.User, t.Assistant)
}

// WithMetadata attaches a metadata pair and returns the turn for chaining.
func (t Turn) WithMetadata(key, value string) Turn {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[key] = value
	return t
}

// Session is an append-only dialogue owned by one persona.
type Session struct {
	ID          uuid.UUID         `json:"id"`
	PersonaName string            `json:"persona_name"`
	Turns       []Turn            `json:"turns"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Metadata    map[string]string `json:"metadata"`
}

// NewSession creates an empty session for the given persona.
func NewSession(personaName string) Session {
	now := time.Now().UTC()
	return Session{
		ID:          uuid.New(),
		PersonaName: personaName,
		Turns:       nil,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    make(map[string]string),
	}
}

// AddTurn appends an exchange and bumps the update timestamp.
func (s *Session) AddTurn(turn Turn) {
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now().UTC()
}

// TurnCount returns the number of exchanges.
func (s Session) TurnCount() int { return len(s.Turns) }

// LastTurn returns the most recent exchange, or false when the session is empty.
func (s Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// LastTurns returns up to n of the most recent exchanges, oldest first.
func (s Session) LastTurns(n int) []Turn {
	if n <= 0 {
		return nil
	}
	start := 0
	if len(s.Turns) > n {
		start = len(s.Turns) - n
	}
	return s.Turns[start:]
}

// FormatContext renders the last maxTurns exchanges, capping each side of an
// exchange at maxChars/4 runes and the whole block at maxChars runes. The
// whole-block cut lands on the last newline inside the budget so the output
// never ends mid-turn.
func (s Session) FormatContext(maxTurns, maxChars int) string {
	var b strings.Builder
	for _, turn := range s.LastTurns(maxTurns) {
		user := truncateRunes(turn.User, maxChars/4)
		assistant := truncateRunes(turn.Assistant, maxChars/4)
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n\n", user, assistant)

		if context := b.String(); len([]rune(context)) > maxChars {
			return truncateAtNewline(context, maxChars)
		}
	}
	return strings.TrimRight(b.String(), " \n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncateAtNewline cuts s to at most n runes, pulling the cut back to the
// last newline inside the budget when one exists.
func truncateAtNewline(s string, n int) string {
	cut := truncateRunes(s, n)
	if cut == s {
		return s
	}
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n")
}
