package routing

import (
	"slices"
	"sync"

	"github.com/soyeahso/tagstream/internal/llm"
)

// History keeps the most recent messages of each conversation in memory.
// Nothing is persisted; a restart starts every conversation afresh.
type History struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]llm.Message
}

// NewHistory creates a history keeping at most limit messages per key.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 20
	}
	return &History{limit: limit, entries: make(map[string][]llm.Message)}
}

// Get returns a copy of the messages kept for key, oldest first.
func (h *History) Get(key string) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries[key])
}

// Append adds msgs to key, dropping the oldest beyond the limit.
func (h *History) Append(key string, msgs ...llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.entries[key], msgs...)
	if over := len(all) - h.limit; over > 0 {
		all = slices.Clone(all[over:])
	}
	h.entries[key] = all
}

// Reset forgets key.
func (h *History) Reset(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, key)
}

// Len returns the number of conversations held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
