package agent

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/soyeahso/tagstream/internal/domain"
)

// ActionSink performs the user-visible effect of each decoded action. Calls
// for one turn are made sequentially from the turn's goroutine; a call that
// returns is considered delivered.
type ActionSink interface {
	OnReaction(ctx context.Context, spec string)
	OnSticker(ctx context.Context, keyword string)
	OnMessage(ctx context.Context, text string, quoteIndex *int)
	OnUndo(ctx context.Context, target domain.UndoTarget)
	OnCard(ctx context.Context, userID string)
	OnImage(ctx context.Context, url, caption string)

	// OnComplete is called once after success, or after a cancellation
	// that already produced output.
	OnComplete(ctx context.Context)

	// OnError is called at most once, on terminal failure.
	OnError(ctx context.Context, err error)
}

// BaseSink implements ActionSink with no-ops. Embed it to handle a subset.
type BaseSink struct{}

func (BaseSink) OnReaction(context.Context, string) {}
func (BaseSink) OnSticker(context.Context, string) {}
func (BaseSink) OnMessage(context.Context, string, *int) {}
func (BaseSink) OnUndo(context.Context, domain.UndoTarget) {}
func (BaseSink) OnCard(context.Context, string) {}
func (BaseSink) OnImage(context.Context, string, string) {}
func (BaseSink) OnComplete(context.Context) {}
func (BaseSink) OnError(context.Context, error) {}

// Dispatch routes a to the matching sink method.
func Dispatch(ctx context.Context, sink ActionSink, a domain.Action) {
	switch v := a.(type) {
	case domain.Reaction:
		sink.OnReaction(ctx, v.Spec())
	case domain.Sticker:
		sink.OnSticker(ctx, v.Keyword)
	case domain.MessageSend:
		sink.OnMessage(ctx, v.Text, v.QuoteIndex)
	case domain.Undo:
		sink.OnUndo(ctx, v.Target)
	case domain.Card:
		sink.OnCard(ctx, v.UserID)
	case domain.Image:
		sink.OnImage(ctx, v.URL, v.Caption)
	}
}

// Recorder is an ActionSink that keeps every call, for tests and for
// callers that want the actions as data.
type Recorder struct {
	mu        sync.Mutex
	Actions   []domain.Action
	Completed int
	Errors    []error
}

func (r *Recorder) add(a domain.Action) {
	r.mu.Lock()
	r.Actions = append(r.Actions, a)
	r.mu.Unlock()
}

func (r *Recorder) OnReaction(_ context.Context, spec string) {
	r.add(ParseReactionSpec(spec))
}

func (r *Recorder) OnSticker(_ context.Context, keyword string) {
	r.add(domain.Sticker{Keyword: keyword})
}

func (r *Recorder) OnMessage(_ context.Context, text string, quoteIndex *int) {
	r.add(domain.MessageSend{Text: text, QuoteIndex: quoteIndex})
}

func (r *Recorder) OnUndo(_ context.Context, target domain.UndoTarget) {
	r.add(domain.Undo{Target: target})
}

func (r *Recorder) OnCard(_ context.Context, userID string) {
	r.add(domain.Card{UserID: userID})
}

func (r *Recorder) OnImage(_ context.Context, url, caption string) {
	r.add(domain.Image{URL: url, Caption: caption})
}

func (r *Recorder) OnComplete(context.Context) {
	r.mu.Lock()
	r.Completed++
	r.mu.Unlock()
}

func (r *Recorder) OnError(_ context.Context, err error) {
	r.mu.Lock()
	r.Errors = append(r.Errors, err)
	r.mu.Unlock()
}

// Messages returns the recorded message actions.
func (r *Recorder) Messages() []domain.MessageSend {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MessageSend
	for _, a := range r.Actions {
		if m, ok := a.(domain.MessageSend); ok {
			out = append(out, m)
		}
	}
	return out
}

// ParseReactionSpec reverses domain.Reaction.Spec.
func ParseReactionSpec(spec string) domain.Reaction {
	if head, kind, ok := strings.Cut(spec, ":"); ok {
		if idx, err := strconv.Atoi(head); err == nil {
			return domain.Reaction{Index: domain.IntPtr(idx), Type: kind}
		}
	}
	return domain.Reaction{Type: spec}
}
