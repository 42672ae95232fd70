package hooks

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tagstream/internal/logging"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func noop(context.Context, Payload) error { return nil }

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventTurnStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventTurnStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventTurnStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_OrderAndData(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventModelRotated, "first", func(_ context.Context, p Payload) error {
		order = append(order, "first:"+p.Data["to"].(string))
		return nil
	})
	m.On(EventModelRotated, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventModelRotated, map[string]any{"to": "gemini-2.5-flash"})
	assert.Equal(t, []string{"first:gemini-2.5-flash", "second"}, order)
}

func TestManager_Emit_HandlerErrorContinues(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventTurnFailed, "failing", func(context.Context, Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventTurnFailed, "second", func(context.Context, Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventTurnFailed, nil)
	assert.True(t, secondCalled)
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventTurnStart, nil)
	assert.Zero(t, m.Count(EventTurnStart))
	assert.Nil(t, m.Events())
}

func TestManager_CountAndEvents(t *testing.T) {
	m := testManager()
	assert.Equal(t, 0, m.Count(EventTurnComplete))

	m.On(EventTurnComplete, "h1", noop)
	m.On(EventTurnComplete, "h2", noop)
	m.On(EventGatewayStart, "h3", noop)

	assert.Equal(t, 2, m.Count(EventTurnComplete))
	assert.Equal(t, []string{EventGatewayStart, EventTurnComplete}, m.Events())
}

func TestKnown(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.True(t, Known(EventTurnCancelled))
	assert.False(t, Known("message_received"))
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LogHandler(logging.New(&buf, "info"))

	require.NoError(t, h(context.Background(), Payload{Event: EventTurnFailed, Data: map[string]any{"attempts": 3}}))
	assert.Contains(t, buf.String(), `"event":"turn_failed"`)
	assert.Contains(t, buf.String(), `"attempts":3`)
}
