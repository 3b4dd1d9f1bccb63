package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
	"github.com/anamnesis-ai/anamnesis/src/memory/episodic"
	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/memory/persist"
	"github.com/anamnesis-ai/anamnesis/src/memory/semantic"
	"github.com/anamnesis-ai/anamnesis/src/memory/store"
	json "github.com/alpkeskin/gotoon"
)

// episodicRetention is how long episodic vector entries survive cleanup.
const episodicRetention = 7 * 24 * time.Hour

// MemoryContext is everything the substrate can contribute to a prompt
// for one query.
type MemoryContext struct {
	CurrentContext string
	Episodes       []string
	Concepts       []semantic.ScoredConcept
}

// UnifiedManager composes the episodic and semantic managers behind one
// surface. Both share a single embedder; persistence and auto-save are
// optional.
type UnifiedManager struct {
	episodic *episodic.Manager
	semantic *semantic.Manager
	embedder embed.Embedder

	episodicStore *episodic.Persistence
	semanticStore *semantic.Persistence
	saver         *persist.AutoSaver
	logger        *log.Logger
}

// NewUnifiedManager creates an in-memory substrate with no persistence.
func NewUnifiedManager(embedder embed.Embedder, personaName string) *UnifiedManager {
	return &UnifiedManager{
		episodic: episodic.NewManager(embedder, personaName),
		semantic: semantic.NewManager(embedder),
		embedder: embedder,
		saver:    persist.NewAutoSaver(persist.DefaultAutoSaveInterval),
		logger:   log.New(os.Stderr, "[memory] ", log.LstdFlags),
	}
}

// Open loads a substrate from dir, creating an empty one when the
// directory holds no archive. Episodic and semantic archives live in
// sibling subdirectories.
func Open(ctx context.Context, dir string, embedder embed.Embedder, personaName string) (*UnifiedManager, error) {
	episodicStore, err := episodic.NewPersistence(filepath.Join(dir, "episodic"))
	if err != nil {
		return nil, err
	}
	semanticStore, err := semantic.NewPersistence(filepath.Join(dir, "semantic"))
	if err != nil {
		return nil, err
	}

	em, err := episodicStore.Load(embedder, personaName)
	if err != nil {
		return nil, fmt.Errorf("load episodic memory: %w", err)
	}
	sm, err := semanticStore.Load(ctx, embedder)
	if err != nil {
		return nil, fmt.Errorf("load semantic memory: %w", err)
	}

	return &UnifiedManager{
		episodic:      em,
		semantic:      sm,
		embedder:      embedder,
		episodicStore: episodicStore,
		semanticStore: semanticStore,
		saver:         persist.NewAutoSaver(persist.DefaultAutoSaveInterval),
		logger:        log.New(os.Stderr, "[memory] ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the facade logger.
func (u *UnifiedManager) WithLogger(logger *log.Logger) *UnifiedManager {
	if logger != nil {
		u.logger = logger
	}
	return u
}

// WithAutoSaveInterval overrides how many exchanges pass between automatic
// saves. Only effective when the manager was opened with persistence.
func (u *UnifiedManager) WithAutoSaveInterval(n int) *UnifiedManager {
	u.saver = persist.NewAutoSaver(n)
	return u
}

// WithExtractor enables semantic concept extraction on exchanges.
func (u *UnifiedManager) WithExtractor(extractor semantic.ConceptExtractor) *UnifiedManager {
	u.semantic.WithExtractor(extractor)
	return u
}

// Episodic exposes the episodic manager.
func (u *UnifiedManager) Episodic() *episodic.Manager { return u.episodic }

// Semantic exposes the semantic manager.
func (u *UnifiedManager) Semantic() *semantic.Manager { return u.semantic }

// selfDisclosureMarkers gate concept extraction: only first-person
// statements are worth mining for durable knowledge. English plus Russian.
var selfDisclosureMarkers = []string{
	"i ", "i'm", "i am", "my ",
	"я ", "мой ", "моя ", "моё ", "мои ",
	"люблю", "предпочитаю", "нравится", "не люблю",
}

func hasSelfDisclosure(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range selfDisclosureMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// AddExchange records one user/assistant exchange. Self-disclosing user
// input additionally feeds the semantic extractor. With persistence
// configured, every Nth exchange triggers a save.
func (u *UnifiedManager) AddExchange(ctx context.Context, user, assistant string) error {
	if err := u.episodic.AddExchange(ctx, user, assistant); err != nil {
		return err
	}

	if hasSelfDisclosure(user) {
		sessionID := u.episodic.CurrentSession().ID.String()
		if _, err := u.semantic.ExtractFromDialogue(ctx, user, assistant, sessionID); err != nil {
			u.logger.Printf("concept extraction: %v", err)
		}
	}

	if u.saver.ShouldSave() && u.episodicStore != nil {
		if err := u.SaveAll(); err != nil {
			u.logger.Printf("auto-save: %v", err)
		}
	}
	return nil
}

// Recall gathers the current dialogue context, similar past episodes, and
// relevant concepts for one query.
func (u *UnifiedManager) Recall(ctx context.Context, query string, episodeK, conceptK int) (MemoryContext, error) {
	mc := MemoryContext{CurrentContext: u.episodic.GetCurrentContext(5)}

	episodes, err := u.episodic.FindSimilarDialogues(ctx, query, episodeK)
	if err != nil {
		return mc, fmt.Errorf("recall episodes: %w", err)
	}
	mc.Episodes = episodes

	concepts, err := u.semantic.Search(ctx, query, conceptK, "")
	if err != nil {
		return mc, fmt.Errorf("recall concepts: %w", err)
	}
	mc.Concepts = concepts
	return mc, nil
}

// FormatContextForPrompt renders a recalled MemoryContext as prompt
// sections. Empty sections are omitted; an empty context renders as "".
func FormatContextForPrompt(mc MemoryContext) string {
	var parts []string
	if mc.CurrentContext != "" {
		parts = append(parts, "CURRENT CONVERSATION:\n"+mc.CurrentContext)
	}
	if len(mc.Episodes) > 0 {
		parts = append(parts, "RELEVANT PAST:\n- "+strings.Join(mc.Episodes, "\n- "))
	}
	if len(mc.Concepts) > 0 {
		lines := make([]string, len(mc.Concepts))
		for i, sc := range mc.Concepts {
			lines[i] = fmt.Sprintf("%s (confidence: %.2f)", sc.Concept.Text, sc.Concept.Confidence)
		}
		parts = append(parts, "KNOWN FACTS ABOUT USER:\n- "+strings.Join(lines, "\n- "))
	}
	return strings.Join(parts, "\n\n")
}

// CleanupOldMemories drops episodic vectors past the retention window and
// applies temporal decay to the concept store. Returns (episodic entries
// removed, concepts removed).
func (u *UnifiedManager) CleanupOldMemories(ctx context.Context) (int, int) {
	entries := u.episodic.Store().CleanupOld(time.Now().UTC().Add(-episodicRetention))
	concepts := u.semantic.ApplyTemporalDecay(ctx)
	return entries, concepts
}

// SaveAll writes both archives. A no-op without persistence.
func (u *UnifiedManager) SaveAll() error {
	if u.episodicStore == nil || u.semanticStore == nil {
		return nil
	}
	if err := u.episodicStore.Save(u.episodic); err != nil {
		return fmt.Errorf("save episodic memory: %w", err)
	}
	if err := u.semanticStore.Save(u.semantic); err != nil {
		return fmt.Errorf("save semantic memory: %w", err)
	}
	u.saver.Reset()
	return nil
}

// exportDocument is the portable JSON shape produced by Export.
type exportDocument struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []exportSession `json:"sessions"`
	Concepts   []exportConcept `json:"concepts"`
	Stats      map[string]int  `json:"stats"`
}

type exportSession struct {
	ID        string `json:"id"`
	Persona   string `json:"persona"`
	TurnCount int    `json:"turn_count"`
}

type exportConcept struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Export serializes a portable snapshot of the substrate: session
// skeletons and concept texts, without embeddings or raw turns.
func (u *UnifiedManager) Export() ([]byte, error) {
	doc := exportDocument{ExportedAt: time.Now().UTC()}

	current := u.episodic.CurrentSession()
	doc.Sessions = append(doc.Sessions, exportSession{
		ID:        current.ID.String(),
		Persona:   current.PersonaName,
		TurnCount: current.TurnCount(),
	})
	for id, session := range u.episodic.SessionHistory() {
		doc.Sessions = append(doc.Sessions, exportSession{
			ID:        id.String(),
			Persona:   session.PersonaName,
			TurnCount: session.TurnCount(),
		})
	}

	for _, concept := range u.semantic.Concepts() {
		doc.Concepts = append(doc.Concepts, exportConcept{
			Text:       concept.Text,
			Category:   concept.Category.String(),
			Confidence: concept.Confidence,
			Source:     concept.Source,
		})
	}

	stats := u.Stats()
	doc.Stats = map[string]int{
		"sessions": stats.Episodic.TotalSessions,
		"turns":    stats.Episodic.TotalTurns,
		"concepts": stats.Concepts,
		"triples":  stats.Graph.Triples,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import replays exported concepts into the semantic store through the
// normal dedup pipeline. Sessions are not importable, raw turns are not
// part of the export. Returns the number of concepts stored.
func (u *UnifiedManager) Import(ctx context.Context, data []byte) (int, error) {
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("deserialize export: %w", err)
	}

	stored := 0
	for _, c := range doc.Concepts {
		category, err := model.ParseCategory(c.Category)
		if err != nil {
			category = model.CategoryGeneral
		}
		if _, err := u.semantic.AddConcept(ctx, c.Text, category, c.Source, c.Confidence); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// UnifiedStats aggregates figures across the substrate.
type UnifiedStats struct {
	Episodic episodic.Stats      `json:"episodic"`
	Concepts int                 `json:"concepts"`
	Graph    semantic.GraphStats `json:"graph"`
	Vectors  store.Stats         `json:"vectors"`
}

// Stats reports the substrate's size and activity.
func (u *UnifiedManager) Stats() UnifiedStats {
	return UnifiedStats{
		Episodic: u.episodic.Stats(),
		Concepts: u.semantic.Count(),
		Graph:    u.semantic.GraphStats(),
		Vectors:  u.episodic.Store().Stats(),
	}
}
