package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the partitions of the vector store.
type Kind int

const (
	// KindEpisodic tags entries derived from conversational turns.
	KindEpisodic Kind = iota
	// KindSemantic tags entries derived from extracted concepts.
	KindSemantic
	// KindShortTerm tags transient working-context entries.
	KindShortTerm
)

func (k Kind) String() string {
	switch k {
	case KindEpisodic:
		return "episodic"
	case KindSemantic:
		return "semantic"
	case KindShortTerm:
		return "short_term"
	}
	return "unknown"
}

// MemoryKind is the tagged variant attached to every entry. Only the fields
// matching the Kind are meaningful: SessionID/Turn for episodic entries,
// Category for semantic ones.
type MemoryKind struct {
	Kind      Kind      `json:"kind"`
	SessionID uuid.UUID `json:"session_id,omitempty"`
	Turn      int       `json:"turn,omitempty"`
	Category  string    `json:"category,omitempty"`
}

// Episodic builds the variant for a (session, turn) pair.
func Episodic(sessionID uuid.UUID, turn int) MemoryKind {
	return MemoryKind{Kind: KindEpisodic, SessionID: sessionID, Turn: turn}
}

// Semantic builds the variant for a concept category.
func Semantic(category string) MemoryKind {
	return MemoryKind{Kind: KindSemantic, Category: category}
}

// ShortTerm builds the payload-free short-term variant.
func ShortTerm() MemoryKind {
	return MemoryKind{Kind: KindShortTerm}
}

// SameKind reports variant equality, ignoring payload fields: any episodic
// entry matches any other episodic entry regardless of session or turn.
func (m MemoryKind) SameKind(other MemoryKind) bool {
	return m.Kind == other.Kind
}

// MemoryEntry is one embedded record in a vector store. Entries are immutable
// after insertion; they leave the store only through eviction or cleanup.
type MemoryEntry struct {
	ID        uuid.UUID         `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	Kind      MemoryKind        `json:"memory_kind"`
}

// NewMemoryEntry creates an entry with a fresh id and timestamp.
func NewMemoryEntry(text string, embedding []float32, kind MemoryKind) MemoryEntry {
	return MemoryEntry{
		ID:        uuid.New(),
		Text:      text,
		Embedding: embedding,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
	}
}

// WithMetadata attaches a metadata pair and returns the entry for chaining.
func (e MemoryEntry) WithMetadata(key, value string) MemoryEntry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
