package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/hooks"
	"github.com/soyeahso/tagstream/internal/llm"
	"github.com/soyeahso/tagstream/internal/logging"
	"github.com/soyeahso/tagstream/internal/tags"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type call struct {
	secret string
	req    llm.CompletionRequest
}

// scriptedClients hands out mock clients whose streams come from script,
// called with the zero-based index of the stream request.
type scriptedClients struct {
	mu     sync.Mutex
	calls  []call
	script func(ctx context.Context, n int, secret string) (<-chan llm.StreamEvent, error)
}

func (s *scriptedClients) Client(_ context.Context, _ string, secret string) (llm.Client, error) {
	return &llm.MockClient{
		ProviderName: "mock",
		StreamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			s.mu.Lock()
			n := len(s.calls)
			s.calls = append(s.calls, call{secret: secret, req: req})
			s.mu.Unlock()
			return s.script(ctx, n, secret)
		},
	}, nil
}

func (s *scriptedClients) secrets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.secret
	}
	return out
}

func (s *scriptedClients) models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.req.Model
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func errStream(err error) <-chan llm.StreamEvent {
	return llm.ScriptedStream(llm.StreamEvent{Type: llm.EventError, Err: err})
}

func providerErr(code int, msg string) error {
	return &llm.ProviderError{Provider: "mock", Code: code, Message: msg}
}

func newController(t *testing.T, creds, models []string) *failover.Controller {
	t.Helper()
	fo, err := failover.New(failover.Config{
		Credentials: creds,
		Models:      models,
		Clock:       failover.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}, silentLog())
	require.NoError(t, err)
	return fo
}

func newRunner(fo Failover, clients ClientSource, opts ...Option) (*Runner, *sleepRecorder) {
	sl := &sleepRecorder{}
	opts = append([]Option{WithSleeper(sl.sleep)}, opts...)
	r := NewRunner(RunnerConfig{
		System:    "be brief",
		BaseDelay: 10 * time.Millisecond,
	}, fo, clients, tags.New(tags.Options{}), silentLog(), opts...)
	return r, sl
}

func TestGenerateStreamsActions(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return llm.TextStream("[reaction:heart] Hel", "lo there [sticker:w", "ave]"), nil
	}}
	r, sl := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{
		Prompt:  "hi",
		History: []llm.Message{{Role: llm.RoleAssistant, Content: "earlier"}},
	}, rec)
	require.NoError(t, err)

	assert.Equal(t, []domain.Action{
		domain.Reaction{Type: "heart"},
		domain.Sticker{Keyword: "wave"},
		domain.MessageSend{Text: "Hello there"},
	}, rec.Actions)
	assert.Equal(t, 1, rec.Completed)
	assert.Empty(t, rec.Errors)

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, "succeeded", res.StateName)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, res.Actions)
	assert.Equal(t, "m1", res.Model)
	assert.Equal(t, failover.CredentialID("k1"), res.Credential)
	assert.Equal(t, "[reaction:heart] Hello there [sticker:wave]", res.Transcript)
	assert.NotEmpty(t, res.TurnID)
	assert.Empty(t, sl.delays)

	require.Len(t, clients.calls, 1)
	req := clients.calls[0].req
	assert.Equal(t, "be brief", req.System)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleAssistant, Content: "earlier"},
		{Role: llm.RoleUser, Content: "hi"},
	}, req.Messages)
}

func TestGenerateSystemOverride(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return llm.TextStream("ok"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)

	_, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi", System: "custom"}, &Recorder{})
	require.NoError(t, err)
	assert.Equal(t, "custom", clients.calls[0].req.System)
}

func TestGenerateRotatesCredentialOnRateLimit(t *testing.T) {
	clients := &scriptedClients{script: func(_ context.Context, n int, _ string) (<-chan llm.StreamEvent, error) {
		if n == 0 {
			return errStream(providerErr(429, "too many requests")), nil
		}
		return llm.TextStream("[msg]ok[/msg]"), nil
	}}
	r, sl := newRunner(newController(t, []string{"k1", "k2"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2"}, clients.secrets())
	assert.Empty(t, sl.delays, "rotation retries immediately")
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, failover.CredentialID("k2"), res.Credential)
	require.Len(t, rec.Messages(), 1)
	assert.Equal(t, "ok", rec.Messages()[0].Text)
	assert.Equal(t, 1, rec.Completed)
	assert.Empty(t, rec.Errors)
}

func TestGenerateRotatesModelWhenPoolExhausted(t *testing.T) {
	clients := &scriptedClients{script: func(_ context.Context, n int, _ string) (<-chan llm.StreamEvent, error) {
		if n == 0 {
			return errStream(providerErr(429, "quota")), nil
		}
		return llm.TextStream("fine"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1", "m2"}), clients)

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, &Recorder{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, clients.models())
	assert.Equal(t, "m2", res.Model)
}

func TestGenerateRotatesOnPermissionDenied(t *testing.T) {
	clients := &scriptedClients{script: func(_ context.Context, _ int, secret string) (<-chan llm.StreamEvent, error) {
		if secret == "k1" {
			return errStream(providerErr(403, "forbidden")), nil
		}
		return llm.TextStream("fine"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1", "k2"}, []string{"m1"}), clients)

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, &Recorder{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, clients.secrets())
	assert.Equal(t, "m1", res.Model)
}

func TestGenerateFailsWhenRotationImpossible(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return errStream(providerErr(429, "too many requests")), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, rec)
	require.Error(t, err)

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, failover.RateLimited, turnErr.Kind)
	assert.Equal(t, 1, turnErr.Attempts)
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, rec.Errors, 1)
	assert.Zero(t, rec.Completed)

	// Everything is blocked now; the next turn fails without calling out.
	_, err = r.Generate(context.Background(), TurnRequest{Prompt: "again"}, &Recorder{})
	require.ErrorIs(t, err, failover.ErrExhausted)
	assert.Len(t, clients.calls, 1)
}

func TestGenerateOverloadBacksOff(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return errStream(providerErr(503, "overloaded")), nil
	}}
	fo := newController(t, []string{"k1", "k2"}, []string{"m1"})
	sl := &sleepRecorder{}
	r := NewRunner(RunnerConfig{
		BaseDelay:           10 * time.Millisecond,
		MaxOverloadAttempts: 4,
	}, fo, clients, tags.New(tags.Options{}), silentLog(), WithSleeper(sl.sleep))
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, rec)

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, failover.TransientOverload, turnErr.Kind)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, sl.delays)
	assert.Equal(t, []string{"k1", "k1", "k1", "k1"}, clients.secrets(), "overload never rotates")
	assert.Len(t, rec.Errors, 1)
}

func TestGenerateOverloadRecovers(t *testing.T) {
	clients := &scriptedClients{script: func(_ context.Context, n int, _ string) (<-chan llm.StreamEvent, error) {
		if n < 2 {
			return errStream(providerErr(529, "overloaded")), nil
		}
		return llm.TextStream("[msg]done[/msg]"), nil
	}}
	r, sl := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, rec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sl.delays)
	assert.Equal(t, 1, rec.Completed)
}

func TestGenerateUnclassifiedFailsOnce(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return errStream(providerErr(400, "bad request")), nil
	}}
	r, sl := newRunner(newController(t, []string{"k1", "k2"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, rec)

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, failover.Unclassified, turnErr.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, clients.calls, 1)
	assert.Empty(t, sl.delays)
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0].Error(), "bad request")
}

func TestGenerateStreamOpenError(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, &Recorder{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
}

// cancelOnMessage cancels the turn once a message has been delivered.
type cancelOnMessage struct {
	*Recorder
	cancel context.CancelFunc
}

func (c cancelOnMessage) OnMessage(ctx context.Context, text string, quoteIndex *int) {
	c.Recorder.OnMessage(ctx, text, quoteIndex)
	c.cancel()
}

func TestGenerateCancelAfterOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := &scriptedClients{script: func(ctx context.Context, _ int, _ string) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent)
		go func() {
			defer close(ch)
			select {
			case ch <- llm.StreamEvent{Type: llm.EventDelta, Content: "[reaction:haha] [msg]hi[/msg] more"}:
			case <-ctx.Done():
				return
			}
			<-ctx.Done()
		}()
		return ch, nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(ctx, TurnRequest{Prompt: "hi"}, cancelOnMessage{Recorder: rec, cancel: cancel})
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, []domain.Action{
		domain.Reaction{Type: "haha"},
		domain.MessageSend{Text: "hi"},
	}, rec.Actions)
	assert.Equal(t, 1, rec.Completed)
	assert.Empty(t, rec.Errors)
}

func TestGenerateCancelBeforeOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return llm.TextStream("never"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(ctx, TurnRequest{Prompt: "hi"}, rec)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Zero(t, rec.Completed)
	assert.Empty(t, rec.Errors)
	assert.Empty(t, clients.calls)
}

// blockingStream sends chunks and then holds the stream open until ctx ends.
func blockingStream(ctx context.Context, chunks ...string) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- llm.StreamEvent{Type: llm.EventDelta, Content: c}:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return ch
}

func TestGenerateDeadlineMidStreamCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	clients := &scriptedClients{script: func(ctx context.Context, _ int, _ string) (<-chan llm.StreamEvent, error) {
		return blockingStream(ctx, "[msg]partial[/msg]"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(ctx, TurnRequest{Prompt: "hi"}, rec)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, []domain.MessageSend{{Text: "partial"}}, rec.Messages())
	assert.Equal(t, 1, rec.Completed)
	assert.Empty(t, rec.Errors)
}

func TestGenerateProviderDeadlineIsUnclassified(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return errStream(fmt.Errorf("reading body: %w", context.DeadlineExceeded)), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, rec)
	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, failover.Unclassified, turnErr.Kind)
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, rec.Errors, 1)
}

func TestGenerateCancelAfterRetryCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := &scriptedClients{script: func(ctx context.Context, n int, _ string) (<-chan llm.StreamEvent, error) {
		if n == 0 {
			return llm.ScriptedStream(
				llm.StreamEvent{Type: llm.EventDelta, Content: "[msg]hello[/msg]"},
				llm.StreamEvent{Type: llm.EventError, Err: providerErr(429, "slow down")},
			), nil
		}
		cancel()
		return blockingStream(ctx), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1", "k2"}, []string{"m1"}), clients)
	rec := &Recorder{}

	res, err := r.Generate(ctx, TurnRequest{Prompt: "hi"}, rec)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []domain.MessageSend{{Text: "hello"}}, rec.Messages())
	assert.Equal(t, 1, rec.Completed)
	assert.Empty(t, rec.Errors)
}

func TestGenerateCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return errStream(providerErr(503, "overloaded")), nil
	}}
	var slept []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		cancel()
		return ctx.Err()
	}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients, WithSleeper(sleeper))
	rec := &Recorder{}

	res, err := r.Generate(ctx, TurnRequest{Prompt: "hi"}, rec)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, slept)
	assert.Len(t, clients.calls, 1)
	assert.Zero(t, rec.Completed)
	assert.Empty(t, rec.Errors)
}

func TestGenerateLeavesNewerTurnActive(t *testing.T) {
	tracker := NewMemoryThreadTracker()

	// A newer turn takes over the thread while this one is streaming.
	clients := &scriptedClients{script: func(ctx context.Context, _ int, _ string) (<-chan llm.StreamEvent, error) {
		if err := tracker.MarkActive(ctx, "t", "newer"); err != nil {
			return nil, err
		}
		return llm.TextStream("ok"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients, WithThreads(tracker))

	_, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi", ThreadID: "t"}, &Recorder{})
	require.NoError(t, err)

	st, err := tracker.Get(context.Background(), "t")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Active)
	assert.Equal(t, "newer", st.TurnID)
}

func TestGenerateTracksThread(t *testing.T) {
	tracker := NewMemoryThreadTracker()
	var activeDuring bool

	clients := &scriptedClients{script: func(ctx context.Context, _ int, _ string) (<-chan llm.StreamEvent, error) {
		st, err := tracker.Get(ctx, "thread-1")
		if err == nil && st != nil {
			activeDuring = st.Active
		}
		return llm.TextStream("ok"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1"}, []string{"m1"}), clients, WithThreads(tracker))
	require.NoError(t, tracker.MarkActive(context.Background(), "thread-2", "other"))

	res, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi", ThreadID: "thread-1"}, &Recorder{})
	require.NoError(t, err)
	assert.True(t, activeDuring)

	st, err := tracker.Get(context.Background(), "thread-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.False(t, st.Active)
	assert.Equal(t, "succeeded", st.State)
	assert.Equal(t, res.TurnID, st.TurnID)
	assert.Equal(t, "m1", st.Model)
	assert.Equal(t, []string{"thread-1", "thread-2"}, tracker.List())

	active, err := tracker.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "thread-2", active[0].ThreadID)
}

func TestGenerateEmitsHooks(t *testing.T) {
	mgr := hooks.NewManager(silentLog())
	var mu sync.Mutex
	var events []string
	for _, ev := range hooks.AllEvents {
		mgr.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			events = append(events, p.Event)
			mu.Unlock()
			return nil
		})
	}

	clients := &scriptedClients{script: func(_ context.Context, n int, _ string) (<-chan llm.StreamEvent, error) {
		if n == 0 {
			return errStream(providerErr(429, "slow down")), nil
		}
		return llm.TextStream("ok"), nil
	}}
	r, _ := newRunner(newController(t, []string{"k1", "k2"}, []string{"m1"}), clients, WithHooks(mgr))

	_, err := r.Generate(context.Background(), TurnRequest{Prompt: "hi"}, &Recorder{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		hooks.EventTurnStart,
		hooks.EventTurnRetry,
		hooks.EventCredentialRotated,
		hooks.EventTurnComplete,
	}, events)
}

func TestGenerateEchoDetection(t *testing.T) {
	clients := &scriptedClients{script: func(context.Context, int, string) (<-chan llm.StreamEvent, error) {
		return llm.TextStream("[quote:0]see you at noon[/quote] [msg]new text[/msg]"), nil
	}}
	r := NewRunner(RunnerConfig{}, newController(t, []string{"k1"}, []string{"m1"}), clients,
		tags.New(tags.Options{EchoDetection: true}), silentLog())
	rec := &Recorder{}

	_, err := r.Generate(context.Background(), TurnRequest{
		Prompt: "hi",
		Quoted: map[int]string{0: "see you at noon"},
	}, rec)
	require.NoError(t, err)

	for _, m := range rec.Messages() {
		assert.NotEqual(t, "see you at noon", m.Text)
	}
	assert.Contains(t, rec.Messages(), domain.MessageSend{Text: "new text"})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "retrying", StateRetrying.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestDispatchRoutesEveryKind(t *testing.T) {
	rec := &Recorder{}
	actions := []domain.Action{
		domain.Reaction{Index: domain.IntPtr(2), Type: "heart"},
		domain.Reaction{Type: "like"},
		domain.Sticker{Keyword: "cat"},
		domain.MessageSend{Text: "hi", QuoteIndex: domain.IntPtr(1)},
		domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoAll}},
		domain.Card{UserID: "u1"},
		domain.Image{URL: "https://x.test/a.png", Caption: "a"},
	}
	for _, a := range actions {
		Dispatch(context.Background(), rec, a)
	}
	assert.Equal(t, actions, rec.Actions)
}

func TestOverloadBackOffSchedule(t *testing.T) {
	b := newOverloadBackOff(time.Second)
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
