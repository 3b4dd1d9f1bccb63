package embed

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDummyEmbeddingDeterministic(t *testing.T) {
	a := DummyEmbedding("hello world", 128)
	b := DummyEmbedding("hello world", 128)
	if len(a) != 128 {
		t.Fatalf("dim = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
	c := DummyEmbedding("different text", 128)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different texts hashed to identical vectors")
	}
}

func TestDummyEmbedderDim(t *testing.T) {
	if d := NewDummyEmbedder(0).Dim(); d != DefaultDim {
		t.Fatalf("zero dim should default, got %d", d)
	}
	e := NewDummyEmbedder(32)
	vec, err := e.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != e.Dim() {
		t.Fatalf("vector length %d != Dim %d", len(vec), e.Dim())
	}
}

func TestAutoEmbedderFallsBack(t *testing.T) {
	t.Setenv("ANAMNESIS_EMBED_PROVIDER", "")
	e := AutoEmbedder()
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected dummy fallback, got %T", e)
	}
}

type countingEmbedder struct {
	calls int
	fail  bool
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("boom")
	}
	return DummyEmbedding(text, 16), nil
}

func (c *countingEmbedder) Dim() int { return 16 }

func TestCachedEmbedderMemoizes(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 8, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cached.Embed(context.Background(), "same text"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner called %d times, want 1", inner.calls)
	}
	if cached.Dim() != 16 {
		t.Fatalf("Dim not forwarded")
	}
}

func TestCachedEmbedderSkipsFailedCalls(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	cached := NewCachedEmbedder(inner, 8, time.Minute)
	if _, err := cached.Embed(context.Background(), "text"); err == nil {
		t.Fatalf("expected error")
	}
	inner.fail = false
	if _, err := cached.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed after recovery: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("errors must not be cached; calls = %d", inner.calls)
	}
}
