package model

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryKindSameKind(t *testing.T) {
	a := Episodic(uuid.New(), 3)
	b := Episodic(uuid.New(), 99)
	if !a.SameKind(b) {
		t.Fatalf("episodic variants with different payloads should match")
	}
	if a.SameKind(Semantic("facts")) {
		t.Fatalf("episodic should not match semantic")
	}
	if !Semantic("facts").SameKind(Semantic("rules")) {
		t.Fatalf("semantic variants with different categories should match")
	}
	if !ShortTerm().SameKind(ShortTerm()) {
		t.Fatalf("short-term should match itself")
	}
}

func TestSessionLastTurns(t *testing.T) {
	s := NewSession("tester")
	for i := 0; i < 5; i++ {
		s.AddTurn(NewTurn("q", "a"))
	}
	if got := len(s.LastTurns(3)); got != 3 {
		t.Fatalf("LastTurns(3) returned %d turns", got)
	}
	if got := len(s.LastTurns(10)); got != 5 {
		t.Fatalf("LastTurns(10) returned %d turns, want all 5", got)
	}
	if s.TurnCount() != 5 {
		t.Fatalf("TurnCount = %d", s.TurnCount())
	}
}

func TestSessionFormatContextTruncates(t *testing.T) {
	s := NewSession("tester")
	long := strings.Repeat("x", 1000)
	s.AddTurn(NewTurn(long, long))

	ctx := s.FormatContext(5, 200)
	if n := len([]rune(ctx)); n > 200 {
		t.Fatalf("context length %d exceeds cap", n)
	}
	if !strings.HasPrefix(ctx, "User: ") {
		t.Fatalf("unexpected context prefix: %q", ctx[:20])
	}
}

func TestSessionFormatContextCutsAtTurnBoundary(t *testing.T) {
	s := NewSession("tester")
	long := strings.Repeat("w ", 100)
	for i := 0; i < 6; i++ {
		s.AddTurn(NewTurn("q", long))
	}

	ctx := s.FormatContext(6, 300)
	if n := len([]rune(ctx)); n > 300 {
		t.Fatalf("context length %d exceeds cap", n)
	}
	if got := strings.Count(ctx, "User: "); got >= 6 {
		t.Fatalf("expected truncation to drop turns, kept %d", got)
	}
	capped := string([]rune(long)[:75])
	for _, line := range strings.Split(ctx, "\n") {
		switch line {
		case "", "User: q", "Assistant: " + capped:
		default:
			t.Fatalf("truncation left a partial line: %q", line)
		}
	}
}

func TestSessionAccessorsOnReturnedValue(t *testing.T) {
	if n := NewSession("tester").TurnCount(); n != 0 {
		t.Fatalf("fresh session has %d turns", n)
	}
	if got := NewSession("tester").FormatContext(5, 100); got != "" {
		t.Fatalf("fresh session context = %q", got)
	}
}

func TestSessionFormatContextShort(t *testing.T) {
	s := NewSession("tester")
	s.AddTurn(NewTurn("hi", "hello"))
	want := "User: hi\nAssistant: hello"
	if got := s.FormatContext(10, 512); got != want {
		t.Fatalf("FormatContext = %q, want %q", got, want)
	}
}

func TestConceptConfidenceClamped(t *testing.T) {
	c := NewConcept("water is wet", CategoryFacts, "manual", 1.7)
	if c.Confidence != 1 {
		t.Fatalf("confidence %v, want clamped to 1", c.Confidence)
	}
	c.SetConfidence(-0.2)
	if c.Confidence != 0 {
		t.Fatalf("confidence %v, want clamped to 0", c.Confidence)
	}
}

func TestParseCategoryTotal(t *testing.T) {
	for _, cat := range Categories() {
		got, err := ParseCategory(cat.String())
		if err != nil {
			t.Fatalf("ParseCategory(%q) error: %v", cat, err)
		}
		if got != cat {
			t.Fatalf("ParseCategory(%q) = %q", cat, got)
		}
	}
	if _, err := ParseCategory("nonsense"); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestEffectiveConfidenceMonotonic(t *testing.T) {
	c := NewConcept("likes tea", CategoryPreferences, "manual", 0.9)
	c.UpdatedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)

	now := time.Now().UTC()
	prev := c.EffectiveConfidence(now)
	if prev >= 0.9 {
		t.Fatalf("expected decay after 40 days, got %v", prev)
	}
	for i := 1; i <= 12; i++ {
		cur := c.EffectiveConfidence(now.Add(time.Duration(i) * 30 * 24 * time.Hour))
		if cur > prev {
			t.Fatalf("effective confidence increased: %v -> %v", prev, cur)
		}
		prev = cur
	}
	floor := DecayParamsFor(CategoryPreferences).Floor
	if far := c.EffectiveConfidence(now.Add(20 * 365 * 24 * time.Hour)); far < floor {
		t.Fatalf("effective confidence %v dropped below floor %v", far, floor)
	}
}

func TestEffectiveConfidenceInsidePeriod(t *testing.T) {
	c := NewConcept("goroutines are cheap", CategoryFacts, "manual", 0.8)
	if got := c.EffectiveConfidence(time.Now().UTC()); got != 0.8 {
		t.Fatalf("fresh concept decayed: %v", got)
	}
}

func TestApplyDecayExpires(t *testing.T) {
	c := NewConcept("ship by friday", CategoryGoals, "manual", 0.2)
	c.UpdatedAt = time.Now().UTC().Add(-300 * 24 * time.Hour)
	if expired := c.ApplyDecay(time.Now().UTC()); !expired {
		t.Fatalf("goal decayed to %v but not reported expired", c.Confidence)
	}
}

func TestTripleEffectiveConfidenceHalfLife(t *testing.T) {
	tr := NewTriple(uuid.New(), "likes", uuid.New(), 0.8)
	tr.CreatedAt = time.Now().UTC().Add(-90 * 24 * time.Hour)
	got := tr.EffectiveConfidence(time.Now().UTC())
	if got < 0.39 || got > 0.41 {
		t.Fatalf("after one half-life, confidence = %v, want ~0.4", got)
	}
}
