package semantic

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/models"
	json "github.com/alpkeskin/gotoon"
)

// ExtractedConcept is one candidate fact produced by a concept extractor.
type ExtractedConcept struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ConceptExtractor turns a dialogue exchange into candidate concepts.
type ConceptExtractor interface {
	Extract(ctx context.Context, userQuery, assistantResponse, sessionID string) ([]ExtractedConcept, error)
}

// relationConfidence is assigned to pattern-extracted triples.
const relationConfidence = 0.7

// relationPatterns map surface forms to predicates. English plus Russian.
var relationPatterns = []struct {
	re        *regexp.Regexp
	predicate string
}{
	{regexp.MustCompile(`(.+)\s+is\s+a\s+([a-z]+)`), "is_a"},
	{regexp.MustCompile(`(.+)\s+likes\s+(.+)`), "likes"},
	{regexp.MustCompile(`(.+)\s+wants\s+(.+)`), "wants"},
	{regexp.MustCompile(`(.+)\s+has\s+(.+)`), "has"},
	{regexp.MustCompile(`(.+)\s+—\s+это\s+(.+)`), "is_a"},
	{regexp.MustCompile(`(.+)\s+любит\s+(.+)`), "likes"},
	{regexp.MustCompile(`(.+)\s+хочет\s+(.+)`), "wants"},
}

// ExtractRelationsFromText matches fixed surface patterns against free
// text and links the captured pairs in the knowledge graph. Endpoints are
// resolved to existing concepts by exact lowercase text and source, or
// created as new General concepts. Returns the number of relations added.
func (m *Manager) ExtractRelationsFromText(ctx context.Context, text, source string) (int, error) {
	added := 0
	for _, pattern := range relationPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			subjectText := strings.ToLower(strings.TrimSpace(match[1]))
			objectText := strings.ToLower(strings.TrimSpace(match[2]))
			if subjectText == "" || objectText == "" {
				continue
			}

			subjectID, err := m.findOrCreateConcept(ctx, subjectText, source)
			if err != nil {
				return added, err
			}
			objectID, err := m.findOrCreateConcept(ctx, objectText, source)
			if err != nil {
				return added, err
			}
			if _, err := m.AddRelation(ctx, subjectID, pattern.predicate, objectID, relationConfidence); err == nil {
				added++
			}
		}
	}
	return added, nil
}

// findOrCreateConcept resolves text to an existing concept by exact
// lowercase text and source, or inserts it as a General concept. Skips the
// contradiction and duplicate pipeline: pattern endpoints are short noun
// phrases, not full statements.
func (m *Manager) findOrCreateConcept(ctx context.Context, text, source string) (uuid.UUID, error) {
	m.mu.Lock()
	for id, concept := range m.concepts {
		if strings.ToLower(concept.Text) == text && concept.Source == source {
			m.mu.Unlock()
			return id, nil
		}
	}
	m.mu.Unlock()

	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("embed concept: %w", err)
	}
	concept := model.NewConcept(text, model.CategoryGeneral, source, DefaultConfidence)
	concept.Embedding = embedding

	m.mu.Lock()
	m.insertLocked(ctx, concept)
	m.mu.Unlock()
	return concept.ID, nil
}

// ExtractFromDialogue runs the configured extractor over one exchange,
// stores the resulting concepts, and mines the dialogue for relations.
// Without an extractor only relation mining runs. Returns the number of
// concepts stored.
func (m *Manager) ExtractFromDialogue(ctx context.Context, userQuery, assistantResponse, sessionID string) (int, error) {
	stored := 0
	if m.extractor != nil {
		extracted, err := m.extractor.Extract(ctx, userQuery, assistantResponse, sessionID)
		if err != nil {
			return 0, fmt.Errorf("extract concepts: %w", err)
		}
		for _, candidate := range extracted {
			text := strings.TrimSpace(candidate.Text)
			if text == "" {
				continue
			}
			category, err := model.ParseCategory(candidate.Category)
			if err != nil {
				category = model.CategoryGeneral
			}
			if _, err := m.AddConcept(ctx, text, category, sessionID, candidate.Confidence); err != nil {
				m.logger.Printf("store extracted concept: %v", err)
				continue
			}
			stored++
		}
	}

	dialogue := userQuery + " " + assistantResponse
	if _, err := m.ExtractRelationsFromText(ctx, dialogue, sessionID); err != nil {
		m.logger.Printf("extract relations: %v", err)
	}
	return stored, nil
}

// LLMExtractor asks a generator to pull stable facts out of an exchange.
type LLMExtractor struct {
	gen models.Generator
}

// NewLLMExtractor wraps a generator as a ConceptExtractor.
func NewLLMExtractor(gen models.Generator) *LLMExtractor {
	return &LLMExtractor{gen: gen}
}

// Extract prompts the generator for durable knowledge in the exchange and
// parses its JSON answer. An empty array is a valid result.
func (e *LLMExtractor) Extract(ctx context.Context, userQuery, assistantResponse, _ string) ([]ExtractedConcept, error) {
	prompt := fmt.Sprintf(
		"Extract durable knowledge about the user from this exchange: stable facts, "+
			"preferences, rules, skills, or goals. Ignore small talk. Return only a JSON array "+
			"of objects like [{\"text\": \"...\", \"category\": \"facts|rules|preferences|skills|goals|general\", "+
			"\"confidence\": 0.0-1.0}]. Return [] if nothing qualifies.\n\nUser: %s\nAssistant: %s\n\nJSON:",
		userQuery, assistantResponse)
	out, err := e.gen.Generate(ctx, prompt, 400)
	if err != nil {
		return nil, err
	}
	return parseExtraction(out)
}

// parseExtraction tolerates code fences around the JSON array.
func parseExtraction(response string) ([]ExtractedConcept, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var concepts []ExtractedConcept
	if err := json.Unmarshal([]byte(cleaned), &concepts); err != nil {
		return nil, fmt.Errorf("parse extraction %q: %w", response, err)
	}
	return concepts, nil
}
