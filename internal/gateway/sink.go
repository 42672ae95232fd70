package gateway

import (
	"context"
	"errors"

	"github.com/soyeahso/tagstream/internal/agent"
	"github.com/soyeahso/tagstream/internal/domain"
)

// socketSink forwards each decoded action to the client as a turn.action
// event, tagged with the request that started the turn.
type socketSink struct {
	client *Client
	reqID  string
}

var _ agent.ActionSink = (*socketSink)(nil)

func (s *socketSink) OnReaction(_ context.Context, spec string) {
	s.action(agent.ParseReactionSpec(spec))
}

func (s *socketSink) OnSticker(_ context.Context, keyword string) {
	s.action(domain.Sticker{Keyword: keyword})
}

func (s *socketSink) OnMessage(_ context.Context, text string, quoteIndex *int) {
	s.action(domain.MessageSend{Text: text, QuoteIndex: quoteIndex})
}

func (s *socketSink) OnUndo(_ context.Context, target domain.UndoTarget) {
	s.action(domain.Undo{Target: target})
}

func (s *socketSink) OnCard(_ context.Context, userID string) {
	s.action(domain.Card{UserID: userID})
}

func (s *socketSink) OnImage(_ context.Context, url, caption string) {
	s.action(domain.Image{URL: url, Caption: caption})
}

func (s *socketSink) OnComplete(context.Context) {
	s.event(EventTurnComplete, map[string]string{"requestId": s.reqID})
}

func (s *socketSink) OnError(_ context.Context, err error) {
	ev := TurnErrorEvent{RequestID: s.reqID, Kind: "unclassified", Message: err.Error()}
	var turnErr *agent.TurnError
	if errors.As(err, &turnErr) {
		ev.Kind = turnErr.Kind.String()
	}
	s.event(EventTurnError, ev)
}

func (s *socketSink) action(a domain.Action) {
	s.event(EventTurnAction, ActionEvent{RequestID: s.reqID, Kind: a.Kind(), Action: a})
}

func (s *socketSink) event(name string, payload any) {
	if err := s.client.SendEvent(name, payload); err != nil {
		s.client.log.Warn().Err(err).Str("event", name).Msg("failed to send event")
	}
}
