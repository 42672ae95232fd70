package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return ScriptedStream(StreamEvent{Type: EventDelta, Content: "mock response"}, StreamEvent{Type: EventDone}), nil
}

// ScriptedStream returns a closed, pre-filled channel carrying events.
func ScriptedStream(events ...StreamEvent) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

// TextStream splits a response into delta events followed by "done".
func TextStream(chunks ...string) <-chan StreamEvent {
	events := make([]StreamEvent, 0, len(chunks)+1)
	for _, c := range chunks {
		events = append(events, StreamEvent{Type: EventDelta, Content: c})
	}
	events = append(events, StreamEvent{Type: EventDone})
	return ScriptedStream(events...)
}
