package agent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ThreadStatus records the state of a resumable conversation thread. Only
// status is tracked; conversation history stays with the caller.
type ThreadStatus struct {
	ThreadID  string    `json:"threadId"`
	Active    bool      `json:"active"`
	State     string    `json:"state,omitempty"`
	Model     string    `json:"model,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	TurnID    string    `json:"turnId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ThreadTracker marks threads active while a turn runs on them and inactive
// once it ends, so an external collaborator can resume them later.
type ThreadTracker interface {
	MarkActive(ctx context.Context, threadID, turnID string) error
	MarkInactive(ctx context.Context, status ThreadStatus) error
	Get(ctx context.Context, threadID string) (*ThreadStatus, error)
}

// MemoryThreadTracker is an in-memory ThreadTracker.
type MemoryThreadTracker struct {
	mu      sync.RWMutex
	threads map[string]ThreadStatus
}

// NewMemoryThreadTracker creates an empty tracker.
func NewMemoryThreadTracker() *MemoryThreadTracker {
	return &MemoryThreadTracker{threads: make(map[string]ThreadStatus)}
}

func (m *MemoryThreadTracker) MarkActive(_ context.Context, threadID, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.threads[threadID]
	st.ThreadID = threadID
	st.Active = true
	st.TurnID = turnID
	st.UpdatedAt = time.Now()
	m.threads[threadID] = st
	return nil
}

// MarkInactive records the final status of a turn. It is a no-op when a
// newer turn has taken over the thread since.
func (m *MemoryThreadTracker) MarkInactive(_ context.Context, status ThreadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.threads[status.ThreadID]; ok && cur.TurnID != status.TurnID {
		return nil
	}
	status.Active = false
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now()
	}
	m.threads[status.ThreadID] = status
	return nil
}

// Get returns the status of a thread, or nil if it was never seen.
func (m *MemoryThreadTracker) Get(_ context.Context, threadID string) (*ThreadStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.threads[threadID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// List returns all thread ids, sorted.
func (m *MemoryThreadTracker) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Active returns the threads with a turn in flight, sorted by id.
func (m *MemoryThreadTracker) Active(context.Context) ([]ThreadStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ThreadStatus
	for _, st := range m.threads {
		if st.Active {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}
