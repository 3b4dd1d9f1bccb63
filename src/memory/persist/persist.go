// Package persist holds the plumbing shared by the episodic and semantic
// persistence layers: atomic file writes, the storage metadata block, and
// the auto-save counter.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Metadata is the header block written into every JSON archive.
type Metadata struct {
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	LastSaved    time.Time `json:"last_saved"`
	SessionCount int       `json:"session_count"`
	TotalTurns   int       `json:"total_turns"`
	EmbeddingDim int       `json:"embedding_dim"`
}

// WriteFileAtomic writes data to a temp file in the target directory, then
// renames it over path. Readers either see the old file or the new one,
// never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// AutoSaver counts mutating operations and signals when a save is due.
// Callers poll ShouldSave after each mutation; crossing the threshold
// resets the counter.
type AutoSaver struct {
	mu        sync.Mutex
	counter   int
	threshold int
}

// DefaultAutoSaveInterval is the number of operations between saves.
const DefaultAutoSaveInterval = 10

// NewAutoSaver builds a saver with the given threshold; values below one
// fall back to the default interval.
func NewAutoSaver(threshold int) *AutoSaver {
	if threshold < 1 {
		threshold = DefaultAutoSaveInterval
	}
	return &AutoSaver{threshold: threshold}
}

// ShouldSave records one operation and reports whether the threshold was
// reached. The counter resets when it fires.
func (a *AutoSaver) ShouldSave() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter++
	if a.counter >= a.threshold {
		a.counter = 0
		return true
	}
	return false
}

// Pending returns the number of operations since the last save.
func (a *AutoSaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter
}

// Reset clears the counter, typically after an explicit save.
func (a *AutoSaver) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counter = 0
}
