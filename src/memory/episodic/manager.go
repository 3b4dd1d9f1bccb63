// Package episodic manages dialogue sessions: the current conversation,
// a bounded history of past sessions, and hybrid vector+keyword recall
// over everything said so far.
package episodic

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/memory/store"
	"github.com/google/uuid"
)

const (
	// DefaultMaxSessions bounds how many sessions (current included) are
	// kept before the oldest is evicted.
	DefaultMaxSessions = 100

	// sessionRetention is how long archived episodic entries survive in
	// the vector store after a session rollover.
	sessionRetention = 7 * 24 * time.Hour

	// noiseFloor drops weak recall candidates.
	noiseFloor = 0.30

	// quoteBudget caps the formatted length of a recalled utterance.
	quoteBudget = 200
)

// Manager owns the current session, the session history, and the episodic
// partition of the vector store. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	current  model.Session
	history  map[uuid.UUID]model.Session
	vectors  *store.VectorStore
	embedder embed.Embedder

	maxSessions int
	archive     store.EntryArchive
	logger      *log.Logger
}

// NewManager creates a manager sized to the embedder's dimension.
func NewManager(embedder embed.Embedder, personaName string) *Manager {
	return &Manager{
		current:     model.NewSession(personaName),
		history:     make(map[uuid.UUID]model.Session),
		vectors:     store.NewVectorStore(embedder.Dim()),
		embedder:    embedder,
		maxSessions: DefaultMaxSessions,
		logger:      log.New(os.Stderr, "[episodic] ", log.LstdFlags),
	}
}

// WithMaxSessions overrides the session history bound.
func (m *Manager) WithMaxSessions(n int) *Manager {
	if n > 0 {
		m.maxSessions = n
	}
	return m
}

// WithLogger overrides the manager's logger.
func (m *Manager) WithLogger(logger *log.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithArchive mirrors every stored entry into a durable backend.
func (m *Manager) WithArchive(archive store.EntryArchive) *Manager {
	m.archive = archive
	return m
}

// Store exposes the episodic vector store to the persistence layer.
func (m *Manager) Store() *store.VectorStore { return m.vectors }

// Embedder returns the embedding provider this manager was built with.
func (m *Manager) Embedder() embed.Embedder { return m.embedder }

// AddExchange appends a user/assistant turn to the current session and
// vectorizes the user side for later recall.
func (m *Manager) AddExchange(ctx context.Context, user, assistant string) error {
	embedding, err := m.embedder.Embed(ctx, "User query: "+user)
	if err != nil {
		return fmt.Errorf("embed exchange: %w", err)
	}

	m.mu.Lock()
	turnID := m.current.TurnCount()
	m.current.AddTurn(model.NewTurn(user, assistant))
	sessionID := m.current.ID
	persona := m.current.PersonaName
	m.mu.Unlock()

	entry := model.NewMemoryEntry(user, embedding, model.Episodic(sessionID, turnID)).
		WithMetadata("session_id", sessionID.String()).
		WithMetadata("turn", strconv.Itoa(turnID)).
		WithMetadata("persona", persona).
		WithMetadata("user_query", user).
		WithMetadata("assistant_response", assistant)

	if err := m.vectors.Add(entry); err != nil {
		return fmt.Errorf("store exchange: %w", err)
	}
	if m.archive != nil {
		if err := m.archive.ArchiveEntry(ctx, entry); err != nil {
			m.logger.Printf("archive entry %s: %v", entry.ID, err)
		}
	}

	m.evictIfNeeded(ctx)
	return nil
}

// evictIfNeeded drops the oldest sessions (by updated_at) until the
// history plus the current session fits the bound.
func (m *Manager) evictIfNeeded(ctx context.Context) {
	m.mu.Lock()
	var evicted []uuid.UUID
	for len(m.history)+1 > m.maxSessions {
		oldest := uuid.Nil
		var oldestAt time.Time
		for id, session := range m.history {
			if oldest == uuid.Nil || session.UpdatedAt.Before(oldestAt) {
				oldest = id
				oldestAt = session.UpdatedAt
			}
		}
		if oldest == uuid.Nil {
			break
		}
		delete(m.history, oldest)
		evicted = append(evicted, oldest)
	}
	m.mu.Unlock()

	for _, id := range evicted {
		removed := m.vectors.ClearSession(id)
		m.logger.Printf("evicted session %s (%d entries)", id, removed)
		if m.archive != nil {
			if err := m.archive.DeleteSessionEntries(ctx, id); err != nil {
				m.logger.Printf("archive delete session %s: %v", id, err)
			}
		}
	}
}

// FindSimilarDialogues recalls past exchanges relevant to the query using
// hybrid retrieval: exact vector search plus keyword matching. Results are
// formatted quotations annotated with a relevance percentage.
func (m *Manager) FindSimilarDialogues(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryEmbedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates := m.vectors.SearchByType(queryEmbedding, topK*3, model.Episodic(uuid.Nil, 0))

	// Keyword hits carry a fixed bonus so exact lexical matches beat weak
	// semantic matches at equal rank.
	for _, kw := range m.keywordSearch(query, topK) {
		kw.Score += 0.1
		candidates = append(candidates, kw)
	}

	// Deduplicate by (session, turn), keeping the best score.
	best := make(map[string]store.SearchResult)
	var order []string
	for _, cand := range candidates {
		key := cand.Entry.Metadata["session_id"] + "-" + cand.Entry.Metadata["turn"]
		if prev, ok := best[key]; !ok {
			best[key] = cand
			order = append(order, key)
		} else if cand.Score > prev.Score {
			best[key] = cand
		}
	}

	kept := make([]store.SearchResult, 0, len(best))
	for _, key := range order {
		cand := best[key]
		if cand.Score < noiseFloor {
			continue
		}
		userQuery := cand.Entry.Metadata["user_query"]
		if userQuery == "" {
			userQuery = cand.Entry.Text
		}
		if isPlaceholder(userQuery) {
			continue
		}
		kept = append(kept, cand)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > topK {
		kept = kept[:topK]
	}

	dialogues := make([]string, 0, len(kept))
	for _, cand := range kept {
		userQuery := cand.Entry.Metadata["user_query"]
		if userQuery == "" {
			userQuery = cand.Entry.Text
		}
		dialogues = append(dialogues, formatRecall(cand.Score, userQuery))
	}
	return dialogues, nil
}

func isPlaceholder(text string) bool {
	return text == "" || strings.Contains(text, "# Test") || strings.Contains(text, "TEST")
}

// formatRecall renders one recalled utterance with its relevance score.
// Long quotations are cut at the closing quote, else the last space, else
// hard at the budget, with an ellipsis appended.
func formatRecall(score float64, userQuery string) string {
	context := fmt.Sprintf("FROM PAST: User said \"%s\"", userQuery)
	runes := []rune(context)
	if len(runes) > quoteBudget {
		trunc := string(runes[:quoteBudget])
		if pos := strings.LastIndex(trunc, `"`); pos >= 0 {
			context = trunc[:pos+1]
		} else if pos := strings.LastIndex(trunc, " "); pos >= 0 {
			context = trunc[:pos]
		} else {
			context = trunc
		}
		context += `"...`
	}
	return fmt.Sprintf("[Relevance: %d%%] %s", int(score*100), context)
}

// keywordSearch scores stored exchanges by the fraction of query keywords
// (words longer than 3 characters) they contain.
func (m *Manager) keywordSearch(query string, topK int) []store.SearchResult {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) > 3 {
			keywords = append(keywords, word)
		}
	}
	if len(keywords) == 0 {
		return nil
	}

	var matches []store.SearchResult
	for _, entry := range m.vectors.GetByType(model.Episodic(uuid.Nil, 0)) {
		userText := entry.Metadata["user_query"]
		if userText == "" {
			userText = entry.Text
		}
		fullText := strings.ToLower(userText + " " + entry.Metadata["assistant_response"])

		matched := 0
		for _, kw := range keywords {
			if strings.Contains(fullText, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(keywords))
		if score > 1 {
			score = 1
		}
		matches = append(matches, store.SearchResult{Entry: entry, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// FindSessionDialogues lists up to topK stored exchanges of one session.
func (m *Manager) FindSessionDialogues(sessionID uuid.UUID, topK int) []string {
	var dialogues []string
	for _, entry := range m.vectors.GetByType(model.Episodic(uuid.Nil, 0)) {
		if entry.Kind.SessionID != sessionID {
			continue
		}
		if len(dialogues) >= topK {
			break
		}
		turn := entry.Metadata["turn"]
		if turn == "" {
			turn = "?"
		}
		dialogues = append(dialogues, fmt.Sprintf("Turn %s: %s", turn, entry.Text))
	}
	return dialogues
}

// GetCurrentContext renders the last maxTurns exchanges of the current
// session for prompt injection.
func (m *Manager) GetCurrentContext(maxTurns int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.FormatContext(maxTurns, 512)
}

// StartNewSession archives the current session, drops episodic entries
// older than the retention window, and begins a fresh session. Returns the
// new session id.
func (m *Manager) StartNewSession(personaName string) uuid.UUID {
	m.mu.Lock()
	m.history[m.current.ID] = m.current
	m.current = model.NewSession(personaName)
	newID := m.current.ID
	m.mu.Unlock()

	if removed := m.vectors.CleanupOld(time.Now().UTC().Add(-sessionRetention)); removed > 0 {
		m.logger.Printf("retention sweep removed %d entries", removed)
	}
	m.evictIfNeeded(context.Background())
	return newID
}

// LoadSession swaps a session from the history into the current slot. The
// previous current session moves to the history. Returns false when the id
// is unknown.
func (m *Manager) LoadSession(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.history[sessionID]
	if !ok {
		return false
	}
	delete(m.history, sessionID)
	m.history[m.current.ID] = m.current
	m.current = session
	return true
}

// DeleteSession removes a session from the history and purges its vector
// entries. The current session cannot be deleted.
func (m *Manager) DeleteSession(ctx context.Context, sessionID uuid.UUID) bool {
	m.mu.Lock()
	_, existed := m.history[sessionID]
	delete(m.history, sessionID)
	m.mu.Unlock()

	if !existed {
		return false
	}
	m.vectors.ClearSession(sessionID)
	if m.archive != nil {
		if err := m.archive.DeleteSessionEntries(ctx, sessionID); err != nil {
			m.logger.Printf("archive delete session %s: %v", sessionID, err)
		}
	}
	return true
}

// CurrentSession returns a copy of the active session.
func (m *Manager) CurrentSession() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SessionHistory returns a snapshot of archived sessions keyed by id.
func (m *Manager) SessionHistory() map[uuid.UUID]model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]model.Session, len(m.history))
	for id, session := range m.history {
		out[id] = session
	}
	return out
}

// Stats summarizes manager state.
type Stats struct {
	CurrentSessionID    uuid.UUID `json:"current_session_id"`
	CurrentSessionTurns int       `json:"current_session_turns"`
	TotalSessions       int       `json:"total_sessions"`
	TotalTurns          int       `json:"total_turns"`
	LastActivity        time.Time `json:"last_activity"`
}

// Stats reports session counts and stored turn totals.
func (m *Manager) Stats() Stats {
	storeStats := m.vectors.Stats()
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		CurrentSessionID:    m.current.ID,
		CurrentSessionTurns: m.current.TurnCount(),
		TotalSessions:       len(m.history) + 1,
		TotalTurns:          storeStats.EntriesByKind[model.KindEpisodic.String()],
		LastActivity:        m.current.UpdatedAt,
	}
}
