package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel.
type mockChannel struct {
	id       string
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	sendErr  error

	mu   sync.Mutex
	sent []domain.OutboundMessage
}

func (m *mockChannel) ID() string { return m.id }

func (m *mockChannel) Start(context.Context) error {
	m.started.Store(true)
	return m.startErr
}

func (m *mockChannel) Stop(context.Context) error {
	m.stopped.Store(true)
	return nil
}

func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *mockChannel) OnMessage(func(domain.InboundMessage)) {}

func (m *mockChannel) messages() []domain.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutboundMessage(nil), m.sent...)
}

// --- Registry ---

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "irc"})

	got, ok := reg.Get("irc")
	require.True(t, ok)
	assert.Equal(t, "irc", got.ID())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "irc"})
	reg.Register(&mockChannel{id: "console"})
	assert.Equal(t, []string{"console", "irc"}, reg.List())
}

func TestRegistryStatusFallback(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "irc"})

	statuses := reg.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.ChannelStatus{ChannelID: "irc", Running: true}, statuses[0])
}

func TestRegistryStartStopAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	ok := &mockChannel{id: "irc"}
	broken := &mockChannel{id: "broken", startErr: assert.AnError}
	reg.Register(ok)
	reg.Register(broken)

	reg.StartAll(context.Background())
	assert.Eventually(t, ok.started.Load, time.Second, 10*time.Millisecond)
	assert.Eventually(t, broken.started.Load, time.Second, 10*time.Millisecond)

	reg.StopAll(context.Background())
	assert.True(t, ok.stopped.Load())
	assert.True(t, broken.stopped.Load())
}

// --- Sink ---

func TestSinkRendersActions(t *testing.T) {
	ch := &mockChannel{id: "irc"}
	sink := NewSink(ch, "#dev", map[int]string{0: "are we shipping today?\nsecond line"}, testLogger())
	ctx := context.Background()

	actions := []domain.Action{
		domain.Reaction{Type: "heart"},
		domain.Reaction{Index: domain.IntPtr(2), Type: "haha"},
		domain.Sticker{Keyword: "wave"},
		domain.MessageSend{Text: "yes we are [tool:deploy]", QuoteIndex: domain.IntPtr(0)},
		domain.MessageSend{Text: "unknown quote", QuoteIndex: domain.IntPtr(9)},
		domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoSingle, Index: -1}},
		domain.Card{UserID: "bob"},
		domain.Image{URL: "https://x.test/cat.png", Caption: "a cat"},
	}
	for _, a := range actions {
		agent.Dispatch(ctx, sink, a)
	}
	sink.OnComplete(ctx)

	got := ch.messages()
	require.Len(t, got, len(actions))
	for _, m := range got {
		assert.Equal(t, "irc", m.ChannelID)
		assert.Equal(t, "#dev", m.To)
	}

	assert.Equal(t, domain.OutboundMessage{ChannelID: "irc", To: "#dev", Body: "reacts with heart", Action: true}, got[0])
	assert.Equal(t, "reacts to #2 with haha", got[1].Body)
	assert.Equal(t, `sends a "wave" sticker`, got[2].Body)
	assert.True(t, got[2].Action)
	assert.Equal(t, "> are we shipping today?\nyes we are", got[3].Body)
	assert.Equal(t, "unknown quote", got[4].Body)
	assert.Equal(t, "(retracted -1)", got[5].Body)
	assert.True(t, got[5].Notice)
	assert.Equal(t, "contact: bob", got[6].Body)
	assert.Equal(t, "a cat https://x.test/cat.png", got[7].Body)
	assert.Equal(t, len(actions), sink.Sent())
}

func TestSinkRendersUndoTargets(t *testing.T) {
	tests := []struct {
		target domain.UndoTarget
		want   string
	}{
		{domain.UndoTarget{Mode: domain.UndoSingle, Index: 2}, "(retracted 2)"},
		{domain.UndoTarget{Mode: domain.UndoRange, Start: 1, End: 3}, "(retracted 1, 2, 3)"},
		{domain.UndoTarget{Mode: domain.UndoRange, Start: -1, End: -3}, "(retracted -1, -2, -3)"},
		{domain.UndoTarget{Mode: domain.UndoRange, Start: 0, End: 50}, "(retracted 0:50)"},
		{domain.UndoTarget{Mode: domain.UndoAll}, "(retracted all)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ch := &mockChannel{id: "irc"}
			NewSink(ch, "#dev", nil, testLogger()).OnUndo(context.Background(), tt.target)
			got := ch.messages()
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Body)
			assert.True(t, got[0].Notice)
		})
	}
}

func TestSinkSkipsToolOnlyMessage(t *testing.T) {
	ch := &mockChannel{id: "irc"}
	sink := NewSink(ch, "#dev", nil, testLogger())
	sink.OnMessage(context.Background(), "[tool:search]", nil)
	assert.Empty(t, ch.messages())
}

func TestSinkOnError(t *testing.T) {
	ch := &mockChannel{id: "irc"}
	sink := NewSink(ch, "#dev", nil, testLogger())

	sink.OnError(context.Background(), &agent.TurnError{Kind: failover.RateLimited, Attempts: 3, Err: assert.AnError})
	got := ch.messages()
	require.Len(t, got, 1)
	assert.True(t, got[0].Notice)
	assert.Contains(t, got[0].Body, "rate limited")
}

func TestSinkSendFailureNotCounted(t *testing.T) {
	ch := &mockChannel{id: "irc", sendErr: assert.AnError}
	sink := NewSink(ch, "#dev", nil, testLogger())
	sink.OnMessage(context.Background(), "hi", nil)
	assert.Zero(t, sink.Sent())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("  short  "))
	long := ""
	for range 100 {
		long += "a"
	}
	got := excerpt(long)
	assert.Len(t, got, maxQuoteLen)
	assert.True(t, len(got) > 3 && got[len(got)-3:] == "...")
}
