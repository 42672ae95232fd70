// Package llm defines the streaming provider interface and its backends.
//
// Each backend is bound to a single credential. The failover controller picks
// a credential and model per attempt and the Registry hands back the client
// for that credential, building it on first use.
package llm

import (
	"context"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Stream event types.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MediaPart is an image or other blob attached to the latest user turn.
// Either Data or URL is set.
type MediaPart struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

// CompletionRequest is the input to a Stream call.
type CompletionRequest struct {
	Model       string      `json:"model"`
	System      string      `json:"system,omitempty"`
	Messages    []Message   `json:"messages"`
	Media       []MediaPart `json:"media,omitempty"`
	MaxTokens   int         `json:"maxTokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
}

// StreamEvent is a chunk from a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`              // "delta", "done", "error"
	Content string `json:"content,omitempty"` // text delta

	// Err is set on "error" events. Backends wrap provider failures in
	// *ProviderError so callers can read the status code.
	Err error `json:"-"`
}

// Client is the interface all LLM providers must implement.
type Client interface {
	// Stream sends a request and returns a channel of streaming events. The
	// channel is closed after a "done" or "error" event, or when ctx ends.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "gemini", "openai").
	Name() string
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// lastUserIndex returns the index of the final user message, or -1.
func lastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
