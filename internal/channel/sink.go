package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/domain"
	"github.com/soyeahso/tagstream/internal/failover"
	"github.com/soyeahso/tagstream/internal/logging"
	"github.com/soyeahso/tagstream/internal/tags"
)

const (
	// maxQuoteLen bounds the quoted excerpt shown above a reply.
	maxQuoteLen = 80

	// maxUndoList is the longest undo range listed index by index.
	maxUndoList = 10
)

// Sink renders turn actions as plain-text lines on a channel. Chat networks
// without native reactions or stickers get emote lines instead.
type Sink struct {
	ch     domain.Channel
	to     string
	quoted map[int]string
	log    *logging.Logger
	sent   atomic.Int64
}

var _ agent.ActionSink = (*Sink)(nil)

// NewSink returns a sink that sends to target on ch. quoted maps message
// indices to their text, for rendering quote replies.
func NewSink(ch domain.Channel, target string, quoted map[int]string, log *logging.Logger) *Sink {
	return &Sink{
		ch:     ch,
		to:     target,
		quoted: quoted,
		log:    log.Sub("sink").With("channel", ch.ID()),
	}
}

// Sent returns how many lines were delivered.
func (s *Sink) Sent() int { return int(s.sent.Load()) }

func (s *Sink) OnReaction(ctx context.Context, spec string) {
	idx, kind, ok := strings.Cut(spec, ":")
	if !ok {
		s.emote(ctx, "reacts with "+spec)
		return
	}
	s.emote(ctx, fmt.Sprintf("reacts to #%s with %s", idx, kind))
}

func (s *Sink) OnSticker(ctx context.Context, keyword string) {
	s.emote(ctx, fmt.Sprintf("sends a %q sticker", keyword))
}

func (s *Sink) OnMessage(ctx context.Context, text string, quoteIndex *int) {
	body := tags.StripToolTags(text)
	if body == "" {
		return
	}
	if quoteIndex != nil {
		if orig, ok := s.quoted[*quoteIndex]; ok {
			body = "> " + excerpt(orig) + "\n" + body
		}
	}
	s.send(ctx, domain.OutboundMessage{Body: body})
}

func (s *Sink) OnUndo(ctx context.Context, target domain.UndoTarget) {
	s.send(ctx, domain.OutboundMessage{Body: "(retracted " + undoList(target) + ")", Notice: true})
}

// undoList spells out the retracted message indices, falling back to the
// tag form for "all" and for long ranges.
func undoList(target domain.UndoTarget) string {
	if target.Mode == domain.UndoAll || abs(target.End-target.Start) >= maxUndoList {
		return target.Spec()
	}
	idx := target.Indices()
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (s *Sink) OnCard(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	s.send(ctx, domain.OutboundMessage{Body: "contact: " + userID})
}

func (s *Sink) OnImage(ctx context.Context, url, caption string) {
	body := url
	if caption = strings.TrimSpace(caption); caption != "" {
		body = caption + " " + url
	}
	s.send(ctx, domain.OutboundMessage{Body: body})
}

func (s *Sink) OnComplete(context.Context) {
	s.log.Debug().Int("lines", s.Sent()).Msg("turn delivered")
}

func (s *Sink) OnError(ctx context.Context, err error) {
	reason := "something went wrong"
	var turnErr *agent.TurnError
	if errors.As(err, &turnErr) {
		switch turnErr.Kind {
		case failover.RateLimited:
			reason = "all my keys are rate limited right now"
		case failover.PermissionDenied:
			reason = "my keys were refused by the provider"
		case failover.TransientOverload:
			reason = "the model is overloaded"
		}
	}
	s.send(ctx, domain.OutboundMessage{Body: "Sorry, I couldn't answer: " + reason + ".", Notice: true})
}

func (s *Sink) emote(ctx context.Context, body string) {
	s.send(ctx, domain.OutboundMessage{Body: body, Action: true})
}

func (s *Sink) send(ctx context.Context, msg domain.OutboundMessage) {
	msg.ChannelID = s.ch.ID()
	msg.To = s.to
	if err := s.ch.Send(context.WithoutCancel(ctx), msg); err != nil {
		s.log.Error().Err(err).Str("to", s.to).Msg("failed to deliver action")
		return
	}
	s.sent.Add(1)
}

// excerpt returns the first line of s, shortened to maxQuoteLen runes.
func excerpt(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(line); len(r) > maxQuoteLen {
		return string(r[:maxQuoteLen-3]) + "..."
	}
	return line
}
