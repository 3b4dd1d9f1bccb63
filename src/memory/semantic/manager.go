package semantic

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/memory/store"
)

const (
	// DefaultConfidence is assigned to concepts added without an explicit
	// confidence value.
	DefaultConfidence = 0.5

	// duplicateThreshold is the cosine similarity above which two concept
	// texts are treated as the same concept.
	duplicateThreshold = 0.95
)

// ScoredConcept pairs a concept with its query similarity.
type ScoredConcept struct {
	Score   float64
	Concept model.Concept
}

// Manager owns the concept map, the category index, and the knowledge
// graph. Safe for concurrent use.
type Manager struct {
	mu            sync.Mutex
	concepts      map[uuid.UUID]model.Concept
	categoryIndex map[model.Category][]uuid.UUID
	graph         *Graph
	embedder      embed.Embedder

	extractor ConceptExtractor
	archive   store.GraphArchive
	logger    *log.Logger
}

// NewManager creates an empty semantic memory bound to an embedder.
func NewManager(embedder embed.Embedder) *Manager {
	return &Manager{
		concepts:      make(map[uuid.UUID]model.Concept),
		categoryIndex: make(map[model.Category][]uuid.UUID),
		graph:         NewGraph(),
		embedder:      embedder,
		logger:        log.New(os.Stderr, "[semantic] ", log.LstdFlags),
	}
}

// WithLogger overrides the manager's logger.
func (m *Manager) WithLogger(logger *log.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithExtractor attaches an LLM-backed concept extractor used by
// ExtractFromDialogue.
func (m *Manager) WithExtractor(extractor ConceptExtractor) *Manager {
	m.extractor = extractor
	return m
}

// WithArchive mirrors concepts and relations into a durable graph backend.
func (m *Manager) WithArchive(archive store.GraphArchive) *Manager {
	m.archive = archive
	return m
}

// Embedder returns the embedding provider this manager was built with.
func (m *Manager) Embedder() embed.Embedder { return m.embedder }

// Graph exposes the knowledge graph to the persistence layer.
func (m *Manager) Graph() *Graph { return m.graph }

// normalizeConceptText collapses doubled spaces and detaches punctuation
// glued to a preceding space.
func normalizeConceptText(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	cleaned = strings.ReplaceAll(cleaned, " .", ".")
	cleaned = strings.ReplaceAll(cleaned, " ,", ",")
	return cleaned
}

// AddConcept adds one unit of knowledge, resolving contradictions and
// near-duplicates against the existing store. A non-positive confidence
// selects the default. The returned concept is the new record, the
// surviving contradictory record, or the merged duplicate; the call never
// fails on a conflict.
func (m *Manager) AddConcept(ctx context.Context, text string, category model.Category, source string, confidence float64) (model.Concept, error) {
	cleaned := normalizeConceptText(text)
	if cleaned == "" {
		return model.Concept{}, fmt.Errorf("empty concept text")
	}
	if confidence <= 0 {
		confidence = DefaultConfidence
	}

	embedding, err := m.embedder.Embed(ctx, cleaned)
	if err != nil {
		return model.Concept{}, fmt.Errorf("embed concept: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := strings.ToLower(cleaned)
	for id, existing := range m.concepts {
		if !isContradiction(normalized, strings.ToLower(existing.Text)) {
			continue
		}
		if confidence > existing.Confidence {
			// The new statement wins; the contradicted record goes away
			// along with its relations.
			m.removeLocked(ctx, id)
			break
		}
		return existing, nil
	}

	for id, existing := range m.concepts {
		if model.CosineSimilarity(embedding, existing.Embedding) > duplicateThreshold {
			if confidence > existing.Confidence {
				existing.SetConfidence(confidence)
				m.concepts[id] = existing
			}
			return m.concepts[id], nil
		}
	}

	concept := model.NewConcept(cleaned, category, source, confidence)
	concept.Embedding = embedding
	m.insertLocked(ctx, concept)
	return concept, nil
}

// insertLocked stores a concept and indexes it. Caller holds the lock.
func (m *Manager) insertLocked(ctx context.Context, concept model.Concept) {
	m.concepts[concept.ID] = concept
	m.categoryIndex[concept.Category] = append(m.categoryIndex[concept.Category], concept.ID)
	if m.archive != nil {
		if err := m.archive.ArchiveConcept(ctx, concept); err != nil {
			m.logger.Printf("archive concept %s: %v", concept.ID, err)
		}
	}
}

// removeLocked deletes a concept, its index entry, and every triple that
// references it. Caller holds the lock.
func (m *Manager) removeLocked(ctx context.Context, id uuid.UUID) {
	concept, ok := m.concepts[id]
	if !ok {
		return
	}
	delete(m.concepts, id)

	ids := m.categoryIndex[concept.Category]
	for i, indexed := range ids {
		if indexed == id {
			m.categoryIndex[concept.Category] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	if removed := m.graph.RemoveConceptTriples(id); removed > 0 {
		m.logger.Printf("removed %d relations of concept %s", removed, id)
	}
	for otherID, other := range m.concepts {
		trimmed := other.RelatedConcepts[:0]
		for _, rel := range other.RelatedConcepts {
			if rel != id {
				trimmed = append(trimmed, rel)
			}
		}
		if len(trimmed) != len(other.RelatedConcepts) {
			other.RelatedConcepts = trimmed
			m.concepts[otherID] = other
		}
	}

	if m.archive != nil {
		if err := m.archive.RemoveConcept(ctx, id); err != nil {
			m.logger.Printf("archive remove concept %s: %v", id, err)
		}
	}
}

// RemoveConcept deletes a concept by id, cascading into its relations.
// Returns false when the id is unknown.
func (m *Manager) RemoveConcept(ctx context.Context, id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.concepts[id]; !ok {
		return false
	}
	m.removeLocked(ctx, id)
	return true
}

// Get returns a concept by id.
func (m *Manager) Get(id uuid.UUID) (model.Concept, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	concept, ok := m.concepts[id]
	return concept, ok
}

// Count reports the number of stored concepts.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.concepts)
}

// ConceptsByCategory returns the concepts of one category in insertion
// order.
func (m *Manager) ConceptsByCategory(category model.Category) []model.Concept {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.categoryIndex[category]
	out := make([]model.Concept, 0, len(ids))
	for _, id := range ids {
		if concept, ok := m.concepts[id]; ok {
			out = append(out, concept)
		}
	}
	return out
}

// Concepts returns a snapshot of every stored concept.
func (m *Manager) Concepts() []model.Concept {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Concept, 0, len(m.concepts))
	for _, concept := range m.concepts {
		out = append(out, concept)
	}
	return out
}

// Search ranks concepts by cosine similarity to the query, optionally
// restricted to one category via the index. Pass an empty category for an
// unrestricted search.
func (m *Manager) Search(ctx context.Context, query string, topK int, category model.Category) ([]ScoredConcept, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryEmbedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.Lock()
	var candidates []model.Concept
	if category != "" {
		for _, id := range m.categoryIndex[category] {
			if concept, ok := m.concepts[id]; ok {
				candidates = append(candidates, concept)
			}
		}
	} else {
		for _, concept := range m.concepts {
			candidates = append(candidates, concept)
		}
	}
	m.mu.Unlock()

	scored := make([]ScoredConcept, 0, len(candidates))
	for _, concept := range candidates {
		scored = append(scored, ScoredConcept{
			Score:   model.CosineSimilarity(queryEmbedding, concept.Embedding),
			Concept: concept,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// UseConcept bumps a concept's usage counter. Returns false when the id is
// unknown.
func (m *Manager) UseConcept(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	concept, ok := m.concepts[id]
	if !ok {
		return false
	}
	concept.Use()
	m.concepts[id] = concept
	return true
}

// VoteConfidence shifts a concept's confidence by delta, clamped to [0,1].
// Returns false when the id is unknown.
func (m *Manager) VoteConfidence(id uuid.UUID, delta float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	concept, ok := m.concepts[id]
	if !ok {
		return false
	}
	concept.SetConfidence(concept.Confidence + delta)
	m.concepts[id] = concept
	return true
}

// ApplyTemporalDecay erodes every concept's confidence per its category
// schedule and deletes concepts that fall below their floor. Returns the
// number of concepts removed.
func (m *Manager) ApplyTemporalDecay(ctx context.Context) int {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []uuid.UUID
	for id, concept := range m.concepts {
		if concept.ApplyDecay(now) {
			expired = append(expired, id)
			continue
		}
		m.concepts[id] = concept
	}
	for _, id := range expired {
		m.removeLocked(ctx, id)
	}
	if len(expired) > 0 {
		m.logger.Printf("decay expired %d concepts", len(expired))
	}
	return len(expired)
}

// GetConceptsWithDecay ranks concepts by decayed confidence without
// mutating anything. Concepts at or below 0.01 effective confidence are
// omitted.
func (m *Manager) GetConceptsWithDecay(topK int) []ScoredConcept {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var scored []ScoredConcept
	for _, concept := range m.concepts {
		effective := concept.EffectiveConfidence(now)
		if effective <= 0.01 {
			continue
		}
		scored = append(scored, ScoredConcept{Score: effective, Concept: concept})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// CategoryDecayStats aggregates decay figures for one category.
type CategoryDecayStats struct {
	Total         int     `json:"total"`
	LowConfidence int     `json:"low_confidence"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// DecayStats summarizes how far the store has decayed.
type DecayStats struct {
	TotalConcepts         int                                   `json:"total_concepts"`
	DecayedConcepts       int                                   `json:"decayed_concepts"`
	LowConfidenceConcepts int                                   `json:"low_confidence_concepts"`
	PerCategory           map[model.Category]CategoryDecayStats `json:"per_category"`
}

// GetDecayStats reports decay figures across the whole store, read-only.
func (m *Manager) GetDecayStats() DecayStats {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := DecayStats{PerCategory: make(map[model.Category]CategoryDecayStats)}
	for _, concept := range m.concepts {
		stats.TotalConcepts++
		effective := concept.EffectiveConfidence(now)

		if effective < concept.Confidence*0.9 {
			stats.DecayedConcepts++
		}
		if effective < 0.3 {
			stats.LowConfidenceConcepts++
		}

		cat := stats.PerCategory[concept.Category]
		cat.Total++
		cat.AvgConfidence += effective
		if effective < 0.3 {
			cat.LowConfidence++
		}
		stats.PerCategory[concept.Category] = cat
	}
	for category, cat := range stats.PerCategory {
		if cat.Total > 0 {
			cat.AvgConfidence /= float64(cat.Total)
			stats.PerCategory[category] = cat
		}
	}
	return stats
}

// MergeSimilar collapses concepts whose text is identical after
// lowercasing, keeping the higher-confidence record and summing usage
// counts. Returns the number of records removed. The threshold parameter
// is kept for interface stability but the match is exact text equality.
func (m *Manager) MergeSimilar(ctx context.Context, _ float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	byText := make(map[string]uuid.UUID)
	var losers []uuid.UUID
	for id, concept := range m.concepts {
		key := strings.ToLower(concept.Text)
		winnerID, seen := byText[key]
		if !seen {
			byText[key] = id
			continue
		}
		winner := m.concepts[winnerID]
		if concept.Confidence > winner.Confidence {
			// The later record wins; fold the old one into it.
			concept.UsageCount += winner.UsageCount
			m.concepts[id] = concept
			byText[key] = id
			losers = append(losers, winnerID)
		} else {
			winner.UsageCount += concept.UsageCount
			m.concepts[winnerID] = winner
			losers = append(losers, id)
		}
	}
	for _, id := range losers {
		m.removeLocked(ctx, id)
	}
	return len(losers)
}

// AddRelation links two known concepts with a predicate. Fails hard when
// either endpoint is missing. A non-positive confidence selects the
// default.
func (m *Manager) AddRelation(ctx context.Context, subjectID uuid.UUID, predicate string, objectID uuid.UUID, confidence float64) (uuid.UUID, error) {
	if confidence <= 0 {
		confidence = DefaultConfidence
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	subject, ok := m.concepts[subjectID]
	if !ok {
		return uuid.Nil, fmt.Errorf("subject concept %s: %w", subjectID, ErrConceptNotFound)
	}
	object, ok := m.concepts[objectID]
	if !ok {
		return uuid.Nil, fmt.Errorf("object concept %s: %w", objectID, ErrConceptNotFound)
	}

	triple := model.NewTriple(subjectID, predicate, objectID, confidence)
	m.graph.AddTriple(triple)

	if !containsID(subject.RelatedConcepts, objectID) {
		subject.RelatedConcepts = append(subject.RelatedConcepts, objectID)
		m.concepts[subjectID] = subject
	}
	if !containsID(object.RelatedConcepts, subjectID) {
		object.RelatedConcepts = append(object.RelatedConcepts, subjectID)
		m.concepts[objectID] = object
	}

	if m.archive != nil {
		if err := m.archive.ArchiveTriple(ctx, triple); err != nil {
			m.logger.Printf("archive triple %s: %v", triple.ID, err)
		}
	}
	return triple.ID, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// FindRelatedConcepts returns every concept linked to the given one in
// either direction, with the triple's decayed confidence.
func (m *Manager) FindRelatedConcepts(id uuid.UUID) []Relation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Related(id)
}

// FindOutgoingRelations lists triples where the concept is the subject.
func (m *Manager) FindOutgoingRelations(id uuid.UUID) []model.Triple {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.FindBySubject(id)
}

// FindIncomingRelations lists triples where the concept is the object.
func (m *Manager) FindIncomingRelations(id uuid.UUID) []model.Triple {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.FindByObject(id)
}

// FindPaths returns every simple path between two concepts up to maxDepth
// hops, treating relations as undirected.
func (m *Manager) FindPaths(from, to uuid.UUID, maxDepth int) [][]uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Paths(from, to, maxDepth)
}

// GraphStats reports the size of the knowledge graph.
func (m *Manager) GraphStats() GraphStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph.Stats()
}

// negationMarkers flag a statement as negated. English plus Russian.
var negationMarkers = []string{
	"n't",
	"not ",
	"не ",
	"нельзя",
	"не люблю",
	"не нравится",
}

// strippablePrefixes are removed before comparing the lexical base of two
// statements with opposite polarity.
var strippablePrefixes = []string{
	"don't ",
	"doesn't ",
	"didn't ",
	"not ",
	"n't ",
	"не ",
	"нельзя ",
	"не люблю ",
	"не нравится ",
}

// sentimentRoots are the verb roots whose presence on both sides of a
// polarity flip marks the pair as a contradiction.
var sentimentRoots = []string{
	"love", "loves", "loved", "люблю", "любит", "любил",
	"like", "likes", "liked", "нравится", "нравилось", "понравилось",
	"prefer", "prefers", "preferred", "предпочитаю", "предпочитает", "предпочитал",
	"hate", "hates", "hated", "ненавижу", "ненавидит", "ненавидел",
	"enjoy", "enjoys", "enjoyed",
}

func hasNegation(text string) bool {
	for _, marker := range negationMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func removeNegation(text string) string {
	result := text
	for _, prefix := range strippablePrefixes {
		result = strings.ReplaceAll(result, prefix, "")
	}
	return strings.TrimSpace(result)
}

// isContradiction reports whether two lowercase statements assert opposite
// polarity over the same sentiment root.
func isContradiction(a, b string) bool {
	if hasNegation(a) == hasNegation(b) {
		return false
	}
	baseA := removeNegation(a)
	baseB := removeNegation(b)

	matchA, matchB := false, false
	for _, root := range sentimentRoots {
		if strings.Contains(baseA, root) {
			matchA = true
		}
		if strings.Contains(baseB, root) {
			matchB = true
		}
	}
	return matchA && matchB
}
