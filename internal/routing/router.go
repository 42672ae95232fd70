// Package routing connects messaging channels to the turn engine.
package routing

import (
	"context"
	"sync"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/channel"
	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/llm"
	"github.com/soyeahso/tagstream/internal/logging"
)

// Generator runs one turn. *agent.Runner implements it.
type Generator interface {
	Generate(ctx context.Context, req agent.TurnRequest, sink agent.ActionSink) (*agent.TurnResult, error)
}

// Router turns inbound chat messages into turns and delivers the resulting
// actions back to the originating chat. A new message on a conversation
// cancels the turn still running there.
type Router struct {
	channels *channel.Registry
	gen      Generator
	history  *History
	scope    string
	log      *logging.Logger

	mu       sync.Mutex
	inflight map[string]*inflightTurn
	wg       sync.WaitGroup
}

type inflightTurn struct {
	cancel context.CancelFunc
}

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, gen Generator, history *History, scope string, log *logging.Logger) *Router {
	if scope == "" {
		scope = ScopePerSender
	}
	if history == nil {
		history = NewHistory(0)
	}
	return &Router{
		channels: channels,
		gen:      gen,
		history:  history,
		scope:    scope,
		log:      log.Sub("routing"),
		inflight: make(map[string]*inflightTurn),
	}
}

// HandleInbound runs a turn for msg and blocks until it ends.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	key := ResolveSessionKey(msg, r.scope)
	thread := key.String()
	log := r.log.With("thread", thread)

	ch, ok := r.channels.Get(msg.ChannelID)
	if !ok {
		log.Error().Str("channel", msg.ChannelID).Msg("channel not found for reply")
		return
	}

	prior := r.history.Get(thread)
	quoted := quotable(prior, msg.Body)

	turnCtx, done := r.begin(ctx, thread)
	defer done()

	log.Info().Str("from", msg.From).Int("history", len(prior)).Msg("routing inbound message")

	sink := channel.NewSink(ch, replyTarget(msg), quoted, r.log)
	res, err := r.gen.Generate(turnCtx, agent.TurnRequest{
		Prompt:   msg.Body,
		History:  prior,
		ThreadID: thread,
		Quoted:   quoted,
	}, sink)
	if err != nil {
		log.Error().Err(err).Msg("turn failed")
	}
	if res == nil || res.Transcript == "" {
		return
	}

	r.history.Append(thread,
		llm.Message{Role: llm.RoleUser, Content: msg.Body},
		llm.Message{Role: llm.RoleAssistant, Content: res.Transcript},
	)
	log.Info().
		Str("state", res.StateName).
		Int("actions", res.Actions).
		Int("lines", sink.Sent()).
		Dur("duration", res.Duration).
		Msg("reply delivered")
}

// Wire registers the router on every channel. Turns run on their own
// goroutines under ctx; Wait blocks until they finish.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.HandleInbound(ctx, msg)
			}()
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Wait blocks until every turn started through Wire has returned.
func (r *Router) Wait() { r.wg.Wait() }

// Cancel stops the turn running on thread, if any.
func (r *Router) Cancel(thread string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.inflight[thread]
	if ok {
		t.cancel()
	}
	return ok
}

func (r *Router) begin(ctx context.Context, thread string) (context.Context, func()) {
	turnCtx, cancel := context.WithCancel(ctx)
	t := &inflightTurn{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.inflight[thread]; ok {
		r.log.Info().Str("thread", thread).Msg("superseding running turn")
		prev.cancel()
	}
	r.inflight[thread] = t
	r.mu.Unlock()

	return turnCtx, func() {
		r.mu.Lock()
		if r.inflight[thread] == t {
			delete(r.inflight, thread)
		}
		r.mu.Unlock()
		cancel()
	}
}

// quotable indexes the conversation for quote replies: prior messages keep
// their position and the new prompt comes last.
func quotable(prior []llm.Message, prompt string) map[int]string {
	out := make(map[int]string, len(prior)+1)
	for i, m := range prior {
		out[i] = m.Content
	}
	out[len(prior)] = prompt
	return out
}

func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}
