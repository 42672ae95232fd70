package tags

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tagTokenRe matches a single opening or closing action tag. Tool tags are
// deliberately absent so they pass through untouched.
var tagTokenRe = regexp.MustCompile(`\[/?(?:reaction|sticker|quote|msg|undo|card|image)(?::[^\[\]\n]*)?\]`)

// Normalize inserts a space between an action tag and any directly adjacent
// text, so "[/quote]reply" becomes "[/quote] reply" and "hi[msg]" becomes
// "hi [msg]". Two tags that touch ("][") are also separated. Normalize is
// pure and idempotent.
func Normalize(s string) string {
	locs := tagTokenRe.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*len(locs))

	prev := 0
	prevEnd := -1
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		b.WriteString(s[prev:start])

		if start > 0 {
			r, _ := utf8.DecodeLastRuneInString(s[:start])
			if needsSeparator(r) || start == prevEnd {
				b.WriteByte(' ')
			}
		}
		b.WriteString(s[start:end])
		if end < len(s) {
			r, _ := utf8.DecodeRuneInString(s[end:])
			if needsSeparator(r) {
				b.WriteByte(' ')
			}
		}

		prev = end
		prevEnd = end
	}
	b.WriteString(s[prev:])
	return b.String()
}

func needsSeparator(r rune) bool {
	return !unicode.IsSpace(r) && r != '[' && r != ']'
}
