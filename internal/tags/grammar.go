package tags

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/soyeahso/tagstream/internal/domain"
)

// DefaultReactions is the reaction whitelist used when none is configured.
var DefaultReactions = []string{"heart", "haha", "wow", "sad", "angry", "like"}

// Vocabulary holds the closed sets that tag arguments are checked against.
type Vocabulary struct {
	// Reactions lists the accepted reaction kinds. Empty means DefaultReactions.
	Reactions []string

	// Stickers lists the accepted sticker keywords. Empty accepts any keyword.
	Stickers []string
}

// match is one pattern hit inside the scanned text.
type match struct {
	groups     []string
	start, end int
	atEnd      bool // the match runs up to the end of the buffer
}

// rule binds an action kind to its pattern and extraction function. The
// extractor walks rules in table order; a rule returning nil for a match
// skips it.
type rule struct {
	kind    domain.ActionKind
	pattern *regexp.Regexp
	extract func(p *pass, m match) []domain.Action
}

var (
	reactionRe = regexp.MustCompile(`\[reaction:(?:(-?\d+):)?([A-Za-z_]+)\]`)
	stickerRe  = regexp.MustCompile(`\[sticker:([^\[\]\n]+?)\]`)
	quoteRe    = regexp.MustCompile(`(?s)\[quote:(-?\d+)\](.*?)\[/quote\]([^\[]*)`)
	msgRe      = regexp.MustCompile(`(?s)\[msg\](.*?)\[/msg\]`)
	undoRe     = regexp.MustCompile(`\[undo:(all|-?\d+)(?::(-?\d+))?\]`)
	cardRe     = regexp.MustCompile(`\[card(?::([^\[\]\s]+))?\]`)
	imageRe    = regexp.MustCompile(`(?s)\[image:(https?://[^\[\]\s]+)\](.*?)\[/image\]`)

	// orphanRe matches block delimiters left over when a block never closed.
	orphanRe = regexp.MustCompile(`\[(?:/?msg|/quote|quote:-?\d+|/image)\]`)
)

// buildRules returns the grammar in dispatch priority order.
func (x *Extractor) buildRules() []rule {
	return []rule{
		{kind: domain.KindReaction, pattern: reactionRe, extract: x.extractReaction},
		{kind: domain.KindSticker, pattern: stickerRe, extract: x.extractSticker},
		{kind: domain.KindMessage, pattern: quoteRe, extract: x.extractQuote},
		{kind: domain.KindMessage, pattern: msgRe, extract: x.extractMessage},
		{kind: domain.KindUndo, pattern: undoRe, extract: x.extractUndo},
		{kind: domain.KindCard, pattern: cardRe, extract: x.extractCard},
		{kind: domain.KindImage, pattern: imageRe, extract: x.extractImage},
	}
}

// nestedRules are the rules applied to the body of a message, quote or image
// block.
func (x *Extractor) nestedRules() []rule {
	var out []rule
	for _, r := range x.rules {
		switch r.kind {
		case domain.KindReaction, domain.KindSticker, domain.KindUndo, domain.KindCard:
			out = append(out, r)
		}
	}
	return out
}

func (x *Extractor) extractReaction(_ *pass, m match) []domain.Action {
	kind := strings.ToLower(m.groups[2])
	if !x.reactions[kind] {
		return nil
	}
	r := domain.Reaction{Type: kind}
	if m.groups[1] != "" {
		idx, err := strconv.Atoi(m.groups[1])
		if err != nil {
			return nil
		}
		r.Index = domain.IntPtr(idx)
	}
	return []domain.Action{r}
}

func (x *Extractor) extractSticker(_ *pass, m match) []domain.Action {
	kw := strings.TrimSpace(m.groups[1])
	if kw == "" {
		return nil
	}
	if len(x.stickers) > 0 && !x.stickers[strings.ToLower(kw)] {
		return nil
	}
	return []domain.Action{domain.Sticker{Keyword: kw}}
}

func (x *Extractor) extractQuote(p *pass, m match) []domain.Action {
	// Trailing reply text may still be arriving.
	if m.atEnd && !p.final {
		return nil
	}
	idx, err := strconv.Atoi(m.groups[1])
	if err != nil {
		return nil
	}

	actions, text := x.nested(p, joinSpace(m.groups[2], m.groups[3]))
	if text == "" {
		return actions
	}
	if x.echo && p.isEcho(idx, text) {
		return actions
	}
	return append(actions, domain.MessageSend{Text: text, QuoteIndex: domain.IntPtr(idx)})
}

func (x *Extractor) extractMessage(p *pass, m match) []domain.Action {
	actions, text := x.nested(p, m.groups[1])
	if text == "" {
		return actions
	}
	return append(actions, domain.MessageSend{Text: text})
}

func (x *Extractor) extractUndo(_ *pass, m match) []domain.Action {
	if m.groups[1] == "all" {
		if m.groups[2] != "" {
			return nil
		}
		return []domain.Action{domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoAll}}}
	}

	first, err := strconv.Atoi(m.groups[1])
	if err != nil {
		return nil
	}
	if m.groups[2] == "" {
		return []domain.Action{domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoSingle, Index: first}}}
	}
	last, err := strconv.Atoi(m.groups[2])
	if err != nil {
		return nil
	}
	return []domain.Action{domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoRange, Start: first, End: last}}}
}

func (x *Extractor) extractCard(_ *pass, m match) []domain.Action {
	return []domain.Action{domain.Card{UserID: m.groups[1]}}
}

func (x *Extractor) extractImage(p *pass, m match) []domain.Action {
	actions, caption := x.nested(p, m.groups[2])
	return append(actions, domain.Image{URL: m.groups[1], Caption: caption})
}

func joinSpace(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
