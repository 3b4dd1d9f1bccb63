package model

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownCategory is returned when parsing an unrecognized category name.
var ErrUnknownCategory = errors.New("unknown concept category")

// Category classifies a concept by the kind of knowledge it carries.
type Category string

const (
	CategoryFacts       Category = "facts"
	CategoryRules       Category = "rules"
	CategoryPreferences Category = "preferences"
	CategorySkills      Category = "skills"
	CategoryGoals       Category = "goals"
	CategoryGeneral     Category = "general"
)

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryFacts,
		CategoryRules,
		CategoryPreferences,
		CategorySkills,
		CategoryGoals,
		CategoryGeneral,
	}
}

func (c Category) String() string { return string(c) }

// ParseCategory maps a category name to its value. Matching is
// case-insensitive and accepts singular forms.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "facts", "fact":
		return CategoryFacts, nil
	case "rules", "rule":
		return CategoryRules, nil
	case "preferences", "preference":
		return CategoryPreferences, nil
	case "skills", "skill":
		return CategorySkills, nil
	case "goals", "goal":
		return CategoryGoals, nil
	case "general":
		return CategoryGeneral, nil
	}
	return CategoryGeneral, ErrUnknownCategory
}

// DecayParams controls how confidence for a category erodes over time.
// Confidence decays only once an update is older than PeriodDays, by
// Rate per elapsed period; a concept below Floor is eligible for deletion.
type DecayParams struct {
	PeriodDays int
	Rate       float64
	Floor      float64
}

// DecayParamsFor returns the decay schedule for a category. Durable
// knowledge (rules, skills) decays slowly; volatile knowledge (goals,
// preferences) decays fast.
func DecayParamsFor(c Category) DecayParams {
	switch c {
	case CategoryFacts:
		return DecayParams{PeriodDays: 30, Rate: 0.95, Floor: 0.05}
	case CategoryRules:
		return DecayParams{PeriodDays: 60, Rate: 0.98, Floor: 0.05}
	case CategoryPreferences:
		return DecayParams{PeriodDays: 20, Rate: 0.90, Floor: 0.10}
	case CategorySkills:
		return DecayParams{PeriodDays: 90, Rate: 0.98, Floor: 0.05}
	case CategoryGoals:
		return DecayParams{PeriodDays: 15, Rate: 0.85, Floor: 0.10}
	}
	return DecayParams{PeriodDays: 25, Rate: 0.92, Floor: 0.05}
}

// Concept is one unit of semantic knowledge. Confidence stays clamped to
// [0,1]; Embedding is rebuilt on load and never serialized.
type Concept struct {
	ID              uuid.UUID         `json:"id"`
	Text            string            `json:"text"`
	Category        Category          `json:"category"`
	Confidence      float64           `json:"confidence"`
	Source          string            `json:"source"`
	Embedding       []float32         `json:"-"`
	Metadata        map[string]string `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	UsageCount      int               `json:"usage_count"`
	RelatedConcepts []uuid.UUID       `json:"related_concepts"`
}

// NewConcept creates a concept with a fresh id and clamped confidence.
func NewConcept(text string, category Category, source string, confidence float64) Concept {
	now := time.Now().UTC()
	return Concept{
		ID:         uuid.New(),
		Text:       text,
		Category:   category,
		Confidence: ClampConfidence(confidence),
		Source:     source,
		Metadata:   make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ClampConfidence forces a confidence value into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// SetConfidence clamps and stores a new confidence, bumping updated_at.
func (c *Concept) SetConfidence(conf float64) {
	c.Confidence = ClampConfidence(conf)
	c.UpdatedAt = time.Now().UTC()
}

// Use records one retrieval hit against the concept.
func (c *Concept) Use() {
	c.UsageCount++
}

// decayFactor returns the multiplier the schedule applies at the given
// moment, 1.0 while the concept is still inside its decay period.
func (c *Concept) decayFactor(now time.Time) float64 {
	params := DecayParamsFor(c.Category)
	days := now.Sub(c.UpdatedAt).Hours() / 24
	if days < float64(params.PeriodDays) {
		return 1
	}
	periods := math.Floor(days / float64(params.PeriodDays))
	return math.Pow(params.Rate, periods)
}

// EffectiveConfidence computes decayed confidence read-only, for ranking.
// The result never falls below the category floor.
func (c *Concept) EffectiveConfidence(now time.Time) float64 {
	decayed := c.Confidence * c.decayFactor(now)
	if floor := DecayParamsFor(c.Category).Floor; decayed < floor {
		return floor
	}
	return decayed
}

// ApplyDecay mutates confidence per the category schedule and reports
// whether the concept dropped below its floor and should be deleted.
func (c *Concept) ApplyDecay(now time.Time) (expired bool) {
	factor := c.decayFactor(now)
	if factor == 1 {
		return false
	}
	c.Confidence *= factor
	return c.Confidence < DecayParamsFor(c.Category).Floor
}
