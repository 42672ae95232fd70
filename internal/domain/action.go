package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind names one category of user-visible effect.
type ActionKind string

const (
	KindReaction ActionKind = "reaction"
	KindSticker  ActionKind = "sticker"
	KindMessage  ActionKind = "message"
	KindUndo     ActionKind = "undo"
	KindCard     ActionKind = "card"
	KindImage    ActionKind = "image"
)

// Action is one discrete effect decoded from model output.
// Values are immutable once produced.
type Action interface {
	// Kind returns the action category.
	Kind() ActionKind

	// Key returns the dedup key. Two actions with equal keys are the same
	// action and are dispatched at most once per attempt.
	Key() string
}

// Reaction reacts to a message. Index is nil when the reaction targets the
// message being answered.
type Reaction struct {
	Index *int   `json:"index,omitempty"`
	Type  string `json:"type"`
}

func (Reaction) Kind() ActionKind { return KindReaction }

func (r Reaction) Key() string { return "reaction:" + r.Spec() }

// Spec renders the reaction the way it appears inside the tag ("2:heart" or "heart").
func (r Reaction) Spec() string {
	if r.Index != nil {
		return strconv.Itoa(*r.Index) + ":" + r.Type
	}
	return r.Type
}

// Sticker sends a sticker looked up by keyword.
type Sticker struct {
	Keyword string `json:"keyword"`
}

func (Sticker) Kind() ActionKind { return KindSticker }

func (s Sticker) Key() string { return "sticker:" + s.Keyword }

// MessageSend sends a text message, optionally quoting an earlier message.
type MessageSend struct {
	Text       string `json:"text"`
	QuoteIndex *int   `json:"quoteIndex,omitempty"`
}

func (MessageSend) Kind() ActionKind { return KindMessage }

func (m MessageSend) Key() string {
	norm := NormalizeText(m.Text)
	if m.QuoteIndex != nil {
		return "quote:" + strconv.Itoa(*m.QuoteIndex) + ":" + norm
	}
	return "msg:" + norm
}

// UndoMode selects how an Undo target is interpreted.
type UndoMode string

const (
	UndoSingle UndoMode = "single"
	UndoRange  UndoMode = "range"
	UndoAll    UndoMode = "all"
)

// UndoTarget identifies the messages to retract. Negative indices count back
// from the most recent message.
type UndoTarget struct {
	Mode  UndoMode `json:"mode"`
	Index int      `json:"index,omitempty"`
	Start int      `json:"start,omitempty"`
	End   int      `json:"end,omitempty"`
}

// Spec renders the target the way it appears inside the tag.
func (t UndoTarget) Spec() string {
	switch t.Mode {
	case UndoAll:
		return "all"
	case UndoRange:
		return fmt.Sprintf("%d:%d", t.Start, t.End)
	default:
		return strconv.Itoa(t.Index)
	}
}

// Descending reports whether a range walks from a higher to a lower index.
func (t UndoTarget) Descending() bool {
	return t.Mode == UndoRange && t.Start > t.End
}

// Indices expands a range target into its inclusive list of indices in the
// direction given by Start and End. Single targets yield one index; "all"
// yields nil.
func (t UndoTarget) Indices() []int {
	switch t.Mode {
	case UndoSingle:
		return []int{t.Index}
	case UndoRange:
		step := 1
		if t.Descending() {
			step = -1
		}
		var out []int
		for i := t.Start; ; i += step {
			out = append(out, i)
			if i == t.End {
				break
			}
		}
		return out
	default:
		return nil
	}
}

// Undo retracts previously sent messages.
type Undo struct {
	Target UndoTarget `json:"target"`
}

func (Undo) Kind() ActionKind { return KindUndo }

func (u Undo) Key() string { return "undo:" + u.Target.Spec() }

// Card shares a contact card. An empty UserID means the sender's own card.
type Card struct {
	UserID string `json:"userId,omitempty"`
}

func (Card) Kind() ActionKind { return KindCard }

func (c Card) Key() string { return "card:" + c.UserID }

// Image sends an image by URL with an optional caption.
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

func (Image) Kind() ActionKind { return KindImage }

func (i Image) Key() string { return "image:" + i.URL }

// NormalizeText collapses runs of whitespace so dedup keys ignore formatting
// differences between otherwise identical texts.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
