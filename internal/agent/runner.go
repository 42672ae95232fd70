// Package agent drives one conversation turn from prompt to dispatched
// actions, retrying across credentials and models when the provider fails.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/hooks"
	"github.com/soyeahso/tagstream/internal/llm"
	"github.com/soyeahso/tagstream/internal/logging"
	"github.com/soyeahso/tagstream/internal/tags"
)

// Defaults for RunnerConfig.
const (
	DefaultMaxOverloadAttempts = 3
	DefaultBaseDelay           = time.Second
	DefaultMaxRotations        = 32
)

// RunnerConfig configures the orchestrator.
type RunnerConfig struct {
	System      string
	MaxTokens   int
	Temperature *float64

	// MaxOverloadAttempts bounds attempts that end in a transient overload.
	MaxOverloadAttempts int
	// BaseDelay is the wait after the first overload; it doubles each time.
	BaseDelay time.Duration
	// MaxRotations bounds immediate retries after credential or model rotation.
	MaxRotations int
}

// State is a turn state.
type State int

const (
	StateStarting State = iota
	StateStreaming
	StateRetrying
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Failover is the rotation state the runner consults. *failover.Controller
// implements it.
type Failover interface {
	Current() (failover.Selection, error)
	OnRateLimited() bool
	OnPermissionDenied() bool
	OnSuccess()
}

// ClientSource returns the provider client for a credential. *llm.Registry
// implements it.
type ClientSource interface {
	Client(ctx context.Context, credentialID, secret string) (llm.Client, error)
}

// TurnRequest is the input of one turn.
type TurnRequest struct {
	Prompt  string
	History []llm.Message
	Media   []llm.MediaPart

	// System overrides RunnerConfig.System when set.
	System string

	// ThreadID enables thread tracking for resumable conversations.
	ThreadID string

	// Quoted holds the quotable messages by index, for echo detection.
	Quoted map[int]string
}

// TurnResult is the outcome of a turn. It is returned for every terminal
// state so the transcript can be kept even when the turn failed.
type TurnResult struct {
	TurnID     string        `json:"turnId"`
	Transcript string        `json:"transcript"`
	State      State         `json:"-"`
	StateName  string        `json:"state"`
	Attempts   int           `json:"attempts"`
	Model      string        `json:"model,omitempty"`
	Credential string        `json:"credential,omitempty"`
	Actions    int           `json:"actions"`
	Duration   time.Duration `json:"duration"`
}

// TurnError is the terminal error of a failed turn.
type TurnError struct {
	Kind     failover.Kind
	Attempts int
	Err      error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed after %d attempt(s) (%s): %v", e.Attempts, e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// errRotationLimit ends a turn that keeps rotating without progress.
var errRotationLimit = errors.New("rotation limit reached")

// Option customises a Runner.
type Option func(*Runner)

// WithThreads enables thread status tracking.
func WithThreads(t ThreadTracker) Option { return func(r *Runner) { r.threads = t } }

// WithHooks emits lifecycle events to m.
func WithHooks(m *hooks.Manager) Option { return func(r *Runner) { r.hooks = m } }

// WithSleeper replaces the overload wait, mainly for tests.
func WithSleeper(s Sleeper) Option { return func(r *Runner) { r.sleep = s } }

// Runner is the stream orchestrator. It is safe for concurrent turns; they
// share only the Failover state.
type Runner struct {
	cfg       RunnerConfig
	failover  Failover
	clients   ClientSource
	extractor *tags.Extractor
	threads   ThreadTracker
	hooks     *hooks.Manager
	sleep     Sleeper
	log       *logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, fo Failover, clients ClientSource, extractor *tags.Extractor, log *logging.Logger, opts ...Option) *Runner {
	if cfg.MaxOverloadAttempts <= 0 {
		cfg.MaxOverloadAttempts = DefaultMaxOverloadAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxRotations <= 0 {
		cfg.MaxRotations = DefaultMaxRotations
	}
	r := &Runner{
		cfg:       cfg,
		failover:  fo,
		clients:   clients,
		extractor: extractor,
		sleep:     sleepContext,
		log:       log.Sub("agent"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// turn carries the bookkeeping of one Generate call.
type turn struct {
	id    string
	req   TurnRequest
	sink  ActionSink
	sess  *Session
	sel   failover.Selection
	start time.Time
	state State
	log   *logging.Logger

	// dispatched is set once any attempt of the turn has dispatched an
	// action. Unlike the session it survives retries.
	dispatched bool
}

// Generate runs one turn. Actions are dispatched to sink as soon as they are
// decoded. The returned result is never nil; the error is a *TurnError when
// the turn failed and nil when it succeeded or was cancelled.
func (r *Runner) Generate(ctx context.Context, req TurnRequest, sink ActionSink) (*TurnResult, error) {
	t := &turn{
		id:    uuid.NewString(),
		req:   req,
		sink:  sink,
		sess:  newSession(),
		start: time.Now(),
		state: StateStarting,
	}
	t.log = r.log.With("turn", t.id)

	t.log.Info().Str("thread", req.ThreadID).Int("history", len(req.History)).Msg("turn started")
	r.hooks.Emit(ctx, hooks.EventTurnStart, map[string]any{"turn": t.id, "thread": req.ThreadID})
	if req.ThreadID != "" && r.threads != nil {
		if err := r.threads.MarkActive(ctx, req.ThreadID, t.id); err != nil {
			t.log.Warn().Err(err).Msg("marking thread active")
		}
	}

	overload := newOverloadBackOff(r.cfg.BaseDelay)
	overloads, rotations := 0, 0
	var prev *failover.Selection

	for {
		if ctx.Err() != nil {
			return r.cancel(ctx, t), nil
		}

		t.sess.begin()
		t.state = StateStarting

		sel, err := r.failover.Current()
		if err != nil {
			return r.fail(ctx, t, failover.RateLimited, err)
		}
		t.sel = sel
		r.noteRotation(ctx, t, prev, sel)
		prev = &sel

		err = r.attempt(ctx, t)
		if err == nil {
			r.failover.OnSuccess()
			return r.succeed(ctx, t), nil
		}
		if ctx.Err() != nil {
			return r.cancel(ctx, t), nil
		}

		kind := failover.Classify(err)
		if kind == failover.Cancelled {
			// A deadline or cancellation inside the provider call while the
			// turn itself is still live.
			kind = failover.Unclassified
		}
		t.log.Warn().
			Err(err).
			Str("kind", kind.String()).
			Int("attempt", t.sess.Attempt()).
			Str("model", sel.Model).
			Str("credential", sel.Credential.ID).
			Msg("attempt failed")

		switch kind {
		case failover.RateLimited, failover.PermissionDenied:
			var rotated bool
			if kind == failover.RateLimited {
				rotated = r.failover.OnRateLimited()
			} else {
				rotated = r.failover.OnPermissionDenied()
			}
			if !rotated {
				return r.fail(ctx, t, kind, err)
			}
			rotations++
			if rotations > r.cfg.MaxRotations {
				return r.fail(ctx, t, kind, fmt.Errorf("%w: %w", errRotationLimit, err))
			}
			r.retry(ctx, t, kind, 0)

		case failover.TransientOverload:
			overloads++
			if overloads >= r.cfg.MaxOverloadAttempts {
				return r.fail(ctx, t, kind, err)
			}
			delay := overload.NextBackOff()
			r.retry(ctx, t, kind, delay)
			if err := r.sleep(ctx, delay); err != nil {
				return r.cancel(ctx, t), nil
			}

		default:
			return r.fail(ctx, t, kind, err)
		}
	}
}

// attempt streams one provider response into the session, dispatching
// actions as they appear. A nil return means the stream completed.
func (r *Runner) attempt(ctx context.Context, t *turn) error {
	client, err := r.clients.Client(ctx, t.sel.Credential.ID, t.sel.Credential.Secret)
	if err != nil {
		return err
	}

	system := t.req.System
	if system == "" {
		system = r.cfg.System
	}
	messages := make([]llm.Message, 0, len(t.req.History)+1)
	messages = append(messages, t.req.History...)
	if t.req.Prompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: t.req.Prompt})
	}

	ch, err := client.Stream(ctx, llm.CompletionRequest{
		Model:       t.sel.Model,
		System:      system,
		Messages:    messages,
		Media:       t.req.Media,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return err
	}

	t.state = StateStreaming
	scan := tags.ScanOptions{Quoted: t.req.Quoted}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				// Providers close early when ctx ends.
				return ctx.Err()
			}
			switch ev.Type {
			case llm.EventDelta:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.sess.append(ev.Content)
				r.dispatch(ctx, t, r.extractor.Extract(t.sess.Buffer(), t.sess.seen, scan))
			case llm.EventError:
				if ev.Err == nil {
					return errors.New("stream error")
				}
				return ev.Err
			case llm.EventDone:
				return nil
			}
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, t *turn, actions []domain.Action) {
	for _, a := range actions {
		t.dispatched = true
		t.log.Debug().Str("kind", string(a.Kind())).Str("key", a.Key()).Msg("dispatching action")
		Dispatch(ctx, t.sink, a)
	}
}

func (r *Runner) succeed(ctx context.Context, t *turn) *TurnResult {
	buf := t.sess.Buffer()
	r.dispatch(ctx, t, r.extractor.Extract(buf, t.sess.seen, tags.ScanOptions{Final: true, Quoted: t.req.Quoted}))
	if msg, ok := r.extractor.Flush(buf, t.sess.seen); ok {
		r.dispatch(ctx, t, []domain.Action{msg})
	}
	t.sink.OnComplete(ctx)

	t.state = StateSucceeded
	res := r.finish(ctx, t)
	t.log.Info().
		Int("attempts", res.Attempts).
		Int("actions", res.Actions).
		Str("model", res.Model).
		Dur("duration", res.Duration).
		Msg("turn succeeded")
	r.hooks.Emit(ctx, hooks.EventTurnComplete, resultData(res))
	return res
}

func (r *Runner) cancel(ctx context.Context, t *turn) *TurnResult {
	if t.dispatched {
		t.sink.OnComplete(ctx)
	}

	t.state = StateCancelled
	res := r.finish(ctx, t)
	t.log.Info().Int("actions", res.Actions).Msg("turn cancelled")
	r.hooks.Emit(context.WithoutCancel(ctx), hooks.EventTurnCancelled, resultData(res))
	return res
}

func (r *Runner) fail(ctx context.Context, t *turn, kind failover.Kind, err error) (*TurnResult, error) {
	turnErr := &TurnError{Kind: kind, Attempts: t.sess.Attempt(), Err: err}
	t.sink.OnError(ctx, turnErr)

	t.state = StateFailed
	res := r.finish(ctx, t)
	t.log.Error().Err(err).Str("kind", kind.String()).Int("attempts", res.Attempts).Msg("turn failed")

	data := resultData(res)
	data["error"] = err.Error()
	data["kind"] = kind.String()
	r.hooks.Emit(ctx, hooks.EventTurnFailed, data)
	return res, turnErr
}

func (r *Runner) retry(ctx context.Context, t *turn, kind failover.Kind, delay time.Duration) {
	t.state = StateRetrying
	t.log.Info().Str("kind", kind.String()).Dur("delay", delay).Int("attempt", t.sess.Attempt()).Msg("retrying turn")
	r.hooks.Emit(ctx, hooks.EventTurnRetry, map[string]any{
		"turn":    t.id,
		"kind":    kind.String(),
		"attempt": t.sess.Attempt(),
		"delay":   delay.String(),
	})
}

// noteRotation emits a hook when the selection moved since the last attempt.
func (r *Runner) noteRotation(ctx context.Context, t *turn, prev *failover.Selection, cur failover.Selection) {
	if prev == nil {
		return
	}
	switch {
	case prev.Model != cur.Model:
		r.hooks.Emit(ctx, hooks.EventModelRotated, map[string]any{"turn": t.id, "from": prev.Model, "to": cur.Model})
	case prev.Credential.ID != cur.Credential.ID:
		r.hooks.Emit(ctx, hooks.EventCredentialRotated, map[string]any{"turn": t.id, "from": prev.Credential.ID, "to": cur.Credential.ID})
	}
}

// finish builds the result and releases the thread.
func (r *Runner) finish(ctx context.Context, t *turn) *TurnResult {
	res := &TurnResult{
		TurnID:     t.id,
		Transcript: t.sess.Buffer(),
		State:      t.state,
		StateName:  t.state.String(),
		Attempts:   t.sess.Attempt(),
		Model:      t.sel.Model,
		Credential: t.sel.Credential.ID,
		Actions:    t.sess.Dispatched(),
		Duration:   time.Since(t.start),
	}

	if t.req.ThreadID != "" && r.threads != nil {
		err := r.threads.MarkInactive(context.WithoutCancel(ctx), ThreadStatus{
			ThreadID: t.req.ThreadID,
			State:    res.StateName,
			Model:    res.Model,
			Attempts: res.Attempts,
			TurnID:   t.id,
		})
		if err != nil {
			t.log.Warn().Err(err).Msg("marking thread inactive")
		}
	}
	return res
}

func resultData(res *TurnResult) map[string]any {
	return map[string]any{
		"turn":     res.TurnID,
		"state":    res.StateName,
		"attempts": res.Attempts,
		"actions":  res.Actions,
		"model":    res.Model,
	}
}
