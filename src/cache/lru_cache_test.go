package cache

import (
	"testing"
	"time"
)

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	if val, ok := c.Get("a"); !ok || val != 1 {
		t.Fatalf("Get(a) = %v, %v", val, ok)
	}
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used entry survived eviction")
	}
	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("entry %q missing", key)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewLRUCache(10, 10*time.Millisecond)
	c.Set("key", "value")
	if val, ok := c.Get("key"); !ok || val != "value" {
		t.Fatalf("Get = %v, %v", val, ok)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("key"); ok {
		t.Fatalf("expired entry returned")
	}
}

func TestSetUpdatesExisting(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("key", 1)
	c.Set("key", 2)
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if val, _ := c.Get("key"); val != 2 {
		t.Fatalf("value = %v, want 2", val)
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("same input") != HashKey("same input") {
		t.Fatalf("hash not deterministic")
	}
	if HashKey("one") == HashKey("two") {
		t.Fatalf("distinct inputs collided")
	}
}

func TestClear(t *testing.T) {
	c := NewLRUCache(4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len after clear = %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry survived clear")
	}
}
