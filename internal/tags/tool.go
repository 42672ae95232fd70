package tags

import (
	"regexp"
	"strings"
)

var (
	toolBlockRe = regexp.MustCompile(`(?s)\[tool:[^\]\n]*\].*?\[/tool\]`)
	toolTokenRe = regexp.MustCompile(`\[/?tool(?::[^\]\n]*)?\]`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// StripToolTags removes tool-call tags, which the extractor leaves alone, from
// text about to be shown to a user.
func StripToolTags(s string) string {
	s = toolBlockRe.ReplaceAllString(s, "")
	s = toolTokenRe.ReplaceAllString(s, "")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
