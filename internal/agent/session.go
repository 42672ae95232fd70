package agent

import (
	"strings"

	"github.com/soyeahso/tagstream/internal/tags"
)

// Session is the mutable state of one attempt at a turn: the text streamed
// so far and the dedup record of dispatched actions. It is owned by the
// turn's goroutine and reset, not replaced, between attempts.
type Session struct {
	buf     strings.Builder
	seen    *tags.Seen
	attempt int
}

func newSession() *Session {
	return &Session{seen: tags.NewSeen()}
}

// begin starts a new attempt with an empty buffer and dedup record.
func (s *Session) begin() {
	s.buf.Reset()
	s.seen.Reset()
	s.attempt++
}

func (s *Session) append(chunk string) { s.buf.WriteString(chunk) }

// Buffer returns the text accumulated in the current attempt.
func (s *Session) Buffer() string { return s.buf.String() }

// Dispatched returns how many actions the current attempt has dispatched.
func (s *Session) Dispatched() int { return s.seen.Len() }

// Attempt returns the 1-based number of the current attempt.
func (s *Session) Attempt() int { return s.attempt }
