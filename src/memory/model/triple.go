package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Triple is a directed, typed relationship between two concepts. Endpoints
// are validated against the concept set at creation time only; a later
// concept deletion cascades into triple removal at the graph level.
type Triple struct {
	ID         uuid.UUID         `json:"id"`
	Subject    uuid.UUID         `json:"subject"`
	Predicate  string            `json:"predicate"`
	Object     uuid.UUID         `json:"object"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewTriple creates a relationship with a fresh id and clamped confidence.
func NewTriple(subject uuid.UUID, predicate string, object uuid.UUID, confidence float64) Triple {
	now := time.Now().UTC()
	return Triple{
		ID:         uuid.New(),
		Subject:    subject,
		Predicate:  predicate,
		Object:     object,
		Confidence: ClampConfidence(confidence),
		Metadata:   make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// tripleHalfLifeDays is the decay half-life applied to relationship
// confidence, independent of the endpoints' category decay.
const tripleHalfLifeDays = 90.0

// EffectiveConfidence applies an exponential 90-day half-life to the
// stored confidence, read-only.
func (t *Triple) EffectiveConfidence(now time.Time) float64 {
	days := now.Sub(t.CreatedAt).Hours() / 24
	if days <= 0 {
		return t.Confidence
	}
	return t.Confidence * math.Exp2(-days/tripleHalfLifeDays)
}
