// Package tags decodes the bracket-tag action grammar embedded in model output.
//
// The extractor is re-run over the whole accumulated buffer after every
// streamed chunk. A per-attempt Seen record makes every action fire at most
// once, so calling Extract on growing prefixes of a response yields the same
// actions as a single call on the complete response.
package tags

import (
	"regexp"
	"sort"
	"strings"

	"github.com/soyeahso/tagstream/internal/domain"
)

// Options configures an Extractor.
type Options struct {
	Vocabulary Vocabulary

	// EchoDetection suppresses a quoted reply whose text merely repeats the
	// message it quotes. Requires ScanOptions.Quoted.
	EchoDetection bool
}

// ScanOptions carries per-call inputs to Extract.
type ScanOptions struct {
	// Final is set on the pass that runs after the stream ended.
	Final bool

	// Quoted maps quote indices to the text of the quotable messages, used
	// only when echo detection is on.
	Quoted map[int]string
}

// Extractor turns tagged text into actions. It holds no per-turn state and
// is safe for concurrent use.
type Extractor struct {
	rules     []rule
	nest      []rule
	reactions map[string]bool
	stickers  map[string]bool
	echo      bool
}

// New builds an Extractor from opts.
func New(opts Options) *Extractor {
	reactions := opts.Vocabulary.Reactions
	if len(reactions) == 0 {
		reactions = DefaultReactions
	}
	x := &Extractor{
		reactions: toSet(reactions),
		stickers:  toSet(opts.Vocabulary.Stickers),
		echo:      opts.EchoDetection,
	}
	x.rules = x.buildRules()
	x.nest = x.nestedRules()
	return x
}

// pass is the state of one Extract call.
type pass struct {
	final  bool
	quoted map[int]string
}

func (p *pass) isEcho(idx int, text string) bool {
	orig, ok := p.quoted[idx]
	if !ok {
		return false
	}
	return strings.EqualFold(domain.NormalizeText(orig), domain.NormalizeText(text))
}

// Extract scans buf and returns, in dispatch order, the actions not yet
// recorded in seen. Returned actions are marked in seen.
func (x *Extractor) Extract(buf string, seen *Seen, opts ScanOptions) []domain.Action {
	text := Normalize(buf)
	p := &pass{final: opts.Final, quoted: opts.Quoted}

	var out []domain.Action
	for _, r := range x.rules {
		for _, m := range findAll(r.pattern, text) {
			for _, a := range r.extract(p, m) {
				if seen.Mark(a) {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

// Flush returns the end-of-stream message carrying text outside every
// recognised tag. It reports false when there is nothing to send: the plain
// text is empty, or a message was already dispatched and the plain text holds
// no table or code fence.
func (x *Extractor) Flush(buf string, seen *Seen) (domain.MessageSend, bool) {
	plain := x.PlainText(buf)
	if plain == "" {
		return domain.MessageSend{}, false
	}
	if seen.Count(domain.KindMessage) > 0 && !hasRichMarker(plain) {
		return domain.MessageSend{}, false
	}
	msg := domain.MessageSend{Text: plain}
	if !seen.Mark(msg) {
		return domain.MessageSend{}, false
	}
	return msg, true
}

// PlainText returns buf with every recognised tag span and every orphaned
// block delimiter removed. Tool tags are left in place.
func (x *Extractor) PlainText(buf string) string {
	text := Normalize(buf)

	var spans [][2]int
	for _, r := range x.rules {
		for _, loc := range r.pattern.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	for _, loc := range orphanRe.FindAllStringIndex(text, -1) {
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	return cut(text, spans)
}

// nested extracts the simple tags inside a block body and returns them with
// the body text stripped of those tags.
func (x *Extractor) nested(p *pass, body string) ([]domain.Action, string) {
	var actions []domain.Action
	var spans [][2]int
	for _, r := range x.nest {
		for _, m := range findAll(r.pattern, body) {
			actions = append(actions, r.extract(p, m)...)
			spans = append(spans, [2]int{m.start, m.end})
		}
	}
	return actions, cut(body, spans)
}

func findAll(re *regexp.Regexp, text string) []match {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]match, 0, len(locs))
	for _, loc := range locs {
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		out = append(out, match{
			groups: groups,
			start:  loc[0],
			end:    loc[1],
			atEnd:  loc[1] == len(text),
		})
	}
	return out
}

// cut removes spans from s, collapsing the doubled space a removed tag
// leaves behind, and trims the result.
func cut(s string, spans [][2]int) string {
	if len(spans) == 0 {
		return strings.TrimSpace(s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var b strings.Builder
	b.Grow(len(s))
	prev := 0
	lastSpace := false
	for _, sp := range spans {
		if sp[1] <= prev {
			continue
		}
		if sp[0] > prev {
			chunk := s[prev:sp[0]]
			b.WriteString(chunk)
			lastSpace = strings.HasSuffix(chunk, " ")
		}
		prev = sp[1]
		if lastSpace && prev < len(s) && s[prev] == ' ' {
			prev++
		}
	}
	if prev < len(s) {
		b.WriteString(s[prev:])
	}
	return strings.TrimSpace(b.String())
}

var tableLineRe = regexp.MustCompile(`(?m)^\s*\|.*\|`)

func hasRichMarker(s string) bool {
	return strings.Contains(s, "```") || tableLineRe.MatchString(s)
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(strings.TrimSpace(it))] = true
	}
	return set
}
