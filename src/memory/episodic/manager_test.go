package episodic

import (
	"context"
	"strings"
	"testing"

	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
)

// stubEmbedder returns fixed vectors for known texts and a far-off default
// otherwise, so similarity in tests is fully deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{vectors: make(map[string][]float32), dim: dim}
}

func (s *stubEmbedder) set(text string, vec []float32) { s.vectors[text] = vec }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	vec := make([]float32, s.dim)
	vec[s.dim-1] = 1
	return vec, nil
}

func (s *stubEmbedder) Dim() int { return s.dim }

func TestAddExchangeStoresTurnAndVector(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(64), "assistant")
	if err := m.AddExchange(context.Background(), "hello there", "hi!"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	session := m.CurrentSession()
	if session.TurnCount() != 1 {
		t.Fatalf("turn count = %d", session.TurnCount())
	}
	if m.Store().Len() != 1 {
		t.Fatalf("vector store has %d entries", m.Store().Len())
	}
	entry := m.Store().All()[0]
	if entry.Metadata["user_query"] != "hello there" {
		t.Fatalf("user_query metadata = %q", entry.Metadata["user_query"])
	}
	if entry.Metadata["assistant_response"] != "hi!" {
		t.Fatalf("assistant_response metadata = %q", entry.Metadata["assistant_response"])
	}
	if entry.Metadata["persona"] != "assistant" {
		t.Fatalf("persona metadata = %q", entry.Metadata["persona"])
	}
	if entry.Kind.SessionID != session.ID || entry.Kind.Turn != 0 {
		t.Fatalf("entry kind = %+v", entry.Kind)
	}
}

func TestFindSimilarDialoguesHybrid(t *testing.T) {
	stub := newStubEmbedder(4)
	stub.set("User query: I love programming in Go", []float32{1, 0, 0, 0})
	stub.set("User query: the weather is nice today", []float32{0, 1, 0, 0})
	stub.set("what do you know about programming?", []float32{1, 0, 0, 0})

	m := NewManager(stub, "assistant")
	ctx := context.Background()
	if err := m.AddExchange(ctx, "I love programming in Go", "Nice!"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	if err := m.AddExchange(ctx, "the weather is nice today", "Sunny."); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	dialogues, err := m.FindSimilarDialogues(ctx, "what do you know about programming?", 3)
	if err != nil {
		t.Fatalf("FindSimilarDialogues: %v", err)
	}
	if len(dialogues) != 1 {
		t.Fatalf("got %d dialogues: %v", len(dialogues), dialogues)
	}
	if !strings.Contains(dialogues[0], `FROM PAST: User said "I love programming in Go"`) {
		t.Fatalf("dialogue = %q", dialogues[0])
	}
	if !strings.HasPrefix(dialogues[0], "[Relevance: ") {
		t.Fatalf("missing relevance prefix: %q", dialogues[0])
	}
}

func TestFindSimilarDialoguesSkipsPlaceholders(t *testing.T) {
	stub := newStubEmbedder(4)
	stub.set("User query: # Test entry", []float32{1, 0, 0, 0})
	stub.set("anything", []float32{1, 0, 0, 0})

	m := NewManager(stub, "assistant")
	if err := m.AddExchange(context.Background(), "# Test entry", "ok"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	dialogues, err := m.FindSimilarDialogues(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("FindSimilarDialogues: %v", err)
	}
	if len(dialogues) != 0 {
		t.Fatalf("placeholder leaked: %v", dialogues)
	}
}

func TestFindSimilarDialoguesNoiseFloor(t *testing.T) {
	stub := newStubEmbedder(4)
	stub.set("User query: completely unrelated fact", []float32{0, 1, 0, 0})
	stub.set("orthogonal query", []float32{1, 0, 0, 0})

	m := NewManager(stub, "assistant")
	if err := m.AddExchange(context.Background(), "completely unrelated fact", "ok"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	dialogues, err := m.FindSimilarDialogues(context.Background(), "orthogonal query", 3)
	if err != nil {
		t.Fatalf("FindSimilarDialogues: %v", err)
	}
	if len(dialogues) != 0 {
		t.Fatalf("below-floor result leaked: %v", dialogues)
	}
}

func TestFormatRecallTruncates(t *testing.T) {
	long := strings.Repeat("word ", 60)
	out := formatRecall(0.85, long)
	if !strings.HasPrefix(out, "[Relevance: 85%]") {
		t.Fatalf("prefix wrong: %q", out)
	}
	if !strings.HasSuffix(out, `"...`) {
		t.Fatalf("missing ellipsis: %q", out)
	}
	if len([]rune(out)) > len("[Relevance: 85%] ")+quoteBudget+4 {
		t.Fatalf("output too long: %d runes", len([]rune(out)))
	}
}

func TestSessionEvictionBound(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(16), "assistant").WithMaxSessions(3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := m.AddExchange(ctx, "question", "answer"); err != nil {
			t.Fatalf("AddExchange: %v", err)
		}
		m.StartNewSession("assistant")
	}

	stats := m.Stats()
	if stats.TotalSessions > 3 {
		t.Fatalf("session bound exceeded: %d", stats.TotalSessions)
	}
}

func TestStartNewSessionArchivesCurrent(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(16), "assistant")
	if err := m.AddExchange(context.Background(), "remember this", "ok"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	oldID := m.CurrentSession().ID

	newID := m.StartNewSession("assistant")
	if newID == oldID {
		t.Fatalf("session id did not change")
	}
	if m.CurrentSession().TurnCount() != 0 {
		t.Fatalf("new session not empty")
	}
	if _, ok := m.SessionHistory()[oldID]; !ok {
		t.Fatalf("old session not archived")
	}
}

func TestLoadSessionSwaps(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(16), "assistant")
	if err := m.AddExchange(context.Background(), "first session talk", "ok"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	firstID := m.CurrentSession().ID
	secondID := m.StartNewSession("assistant")

	if !m.LoadSession(firstID) {
		t.Fatalf("LoadSession returned false for known id")
	}
	if m.CurrentSession().ID != firstID {
		t.Fatalf("current session is %s, want %s", m.CurrentSession().ID, firstID)
	}
	if _, ok := m.SessionHistory()[secondID]; !ok {
		t.Fatalf("previous current session lost")
	}
	if m.LoadSession(firstID) {
		t.Fatalf("LoadSession should fail for the now-current id")
	}
}

func TestDeleteSessionPurgesVectors(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(16), "assistant")
	ctx := context.Background()
	if err := m.AddExchange(ctx, "to be deleted", "ok"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	doomed := m.CurrentSession().ID
	m.StartNewSession("assistant")

	if !m.DeleteSession(ctx, doomed) {
		t.Fatalf("DeleteSession returned false")
	}
	if m.Store().Len() != 0 {
		t.Fatalf("vector entries survived deletion: %d", m.Store().Len())
	}
	if m.DeleteSession(ctx, doomed) {
		t.Fatalf("double delete should return false")
	}
}

func TestGetCurrentContext(t *testing.T) {
	m := NewManager(embed.NewDummyEmbedder(16), "assistant")
	if err := m.AddExchange(context.Background(), "hi", "hello"); err != nil {
		t.Fatalf("AddExchange: %v", err)
	}
	ctx := m.GetCurrentContext(5)
	if !strings.Contains(ctx, "User: hi") || !strings.Contains(ctx, "Assistant: hello") {
		t.Fatalf("context = %q", ctx)
	}
}

func TestParseTopicListFences(t *testing.T) {
	topics, err := parseTopicList("```json\n[\"go\", \"memory\"]\n```")
	if err != nil {
		t.Fatalf("parseTopicList: %v", err)
	}
	if len(topics) != 2 || topics[0] != "go" || topics[1] != "memory" {
		t.Fatalf("topics = %v", topics)
	}
}
