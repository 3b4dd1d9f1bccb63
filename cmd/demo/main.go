// Command demo walks through the memory substrate: a few exchanges, hybrid
// recall, semantic concepts, and a save/load round trip.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/anamnesis-ai/anamnesis/src/memory"
	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
)

func main() {
	ctx := context.Background()
	dir := "memory_data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	embedder := embed.AutoEmbedder()
	mgr, err := memory.Open(ctx, dir, embedder, "demo")
	if err != nil {
		log.Fatalf("open memory: %v", err)
	}

	exchanges := [][2]string{
		{"I love programming in Go", "Great choice, Go has excellent concurrency support."},
		{"My favorite food is pizza", "Noted, pizza it is."},
		{"What did I tell you about food?", "You said your favorite food is pizza."},
	}
	for _, ex := range exchanges {
		if err := mgr.AddExchange(ctx, ex[0], ex[1]); err != nil {
			log.Fatalf("add exchange: %v", err)
		}
	}

	if _, err := mgr.Semantic().AddConcept(ctx, "user loves programming in Go", memory.CategoryPreferences, "demo", 0.9); err != nil {
		log.Fatalf("add concept: %v", err)
	}
	if _, err := mgr.Semantic().AddConcept(ctx, "user's favorite food is pizza", memory.CategoryPreferences, "demo", 0.8); err != nil {
		log.Fatalf("add concept: %v", err)
	}

	mc, err := mgr.Recall(ctx, "what food does the user like?", 3, 3)
	if err != nil {
		log.Fatalf("recall: %v", err)
	}
	fmt.Println("=== Recall ===")
	fmt.Println(memory.FormatContextForPrompt(mc))

	if err := mgr.SaveAll(); err != nil {
		log.Fatalf("save: %v", err)
	}

	reloaded, err := memory.Open(ctx, dir, embedder, "demo")
	if err != nil {
		log.Fatalf("reload: %v", err)
	}

	stats := reloaded.Stats()
	fmt.Println("\n=== After reload ===")
	fmt.Printf("sessions: %d, turns: %d, concepts: %d, vector entries: %d\n",
		stats.Episodic.TotalSessions, stats.Episodic.TotalTurns,
		stats.Concepts, stats.Vectors.TotalEntries)
}
