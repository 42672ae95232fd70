package tags

import "github.com/soyeahso/tagstream/internal/domain"

// Seen records the dedup keys of actions already dispatched during one
// attempt, grouped by kind. It is not safe for concurrent use; a Seen is
// owned by a single turn.
type Seen struct {
	keys map[domain.ActionKind]map[string]struct{}
}

// NewSeen returns an empty dedup record.
func NewSeen() *Seen {
	return &Seen{keys: make(map[domain.ActionKind]map[string]struct{})}
}

// Mark records a. It returns false if the key was already present.
func (s *Seen) Mark(a domain.Action) bool {
	set, ok := s.keys[a.Kind()]
	if !ok {
		set = make(map[string]struct{})
		s.keys[a.Kind()] = set
	}
	key := a.Key()
	if _, dup := set[key]; dup {
		return false
	}
	set[key] = struct{}{}
	return true
}

// Count returns the number of keys recorded for kind.
func (s *Seen) Count(kind domain.ActionKind) int {
	return len(s.keys[kind])
}

// Len returns the total number of recorded keys.
func (s *Seen) Len() int {
	n := 0
	for _, set := range s.keys {
		n += len(set)
	}
	return n
}

// Reset forgets every recorded key.
func (s *Seen) Reset() {
	clear(s.keys)
}
