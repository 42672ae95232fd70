package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tagstream/internal/domain"
)

func extractAll(x *Extractor, buf string) []domain.Action {
	seen := NewSeen()
	out := x.Extract(buf, seen, ScanOptions{Final: true})
	if msg, ok := x.Flush(buf, seen); ok {
		out = append(out, msg)
	}
	return out
}

func streamChunks(x *Extractor, chunks []string) []domain.Action {
	seen := NewSeen()
	var buf string
	var out []domain.Action
	for _, c := range chunks {
		buf += c
		out = append(out, x.Extract(buf, seen, ScanOptions{})...)
	}
	out = append(out, x.Extract(buf, seen, ScanOptions{Final: true})...)
	if msg, ok := x.Flush(buf, seen); ok {
		out = append(out, msg)
	}
	return out
}

func messages(actions []domain.Action) []domain.MessageSend {
	var out []domain.MessageSend
	for _, a := range actions {
		if m, ok := a.(domain.MessageSend); ok {
			out = append(out, m)
		}
	}
	return out
}

// --- Normalizer ---

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"adjacent tags", "[reaction:heart][sticker:hi]", "[reaction:heart] [sticker:hi]"},
		{"text after close", "[/quote]reply", "[/quote] reply"},
		{"text before open", "hi[msg]there[/msg]", "hi [msg] there [/msg]"},
		{"already spaced", "a [card] b", "a [card] b"},
		{"tool tags untouched", "x[tool:run]y", "x[tool:run]y"},
		{"unknown brackets untouched", "arr[0]=1", "arr[0]=1"},
		{"partial tag untouched", "ok[sticker:he", "ok[sticker:he"},
		{"no tags", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"[reaction:heart][sticker:hi]text[msg]a[/msg]b",
		"]text[",
		"[quote:0]A[/quote]B[undo:all][card:u1]",
		"日本[sticker:猫]語",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

// --- Individual rules ---

func TestReactionRule(t *testing.T) {
	x := New(Options{})

	got := extractAll(x, "[reaction:heart] [reaction:2:WOW] [reaction:shrug]")
	require.Len(t, got, 2)
	assert.Equal(t, domain.Reaction{Type: "heart"}, got[0])
	assert.Equal(t, domain.Reaction{Index: domain.IntPtr(2), Type: "wow"}, got[1])
}

func TestReactionRuleCustomVocabulary(t *testing.T) {
	x := New(Options{Vocabulary: Vocabulary{Reactions: []string{"fire"}}})

	got := extractAll(x, "[reaction:fire][reaction:heart]")
	require.Len(t, got, 1)
	assert.Equal(t, domain.Reaction{Type: "fire"}, got[0])
}

func TestStickerRule(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[sticker:hello][sticker:hello]")
	assert.Equal(t, []domain.Action{domain.Sticker{Keyword: "hello"}}, got)

	restricted := New(Options{Vocabulary: Vocabulary{Stickers: []string{"hello"}}})
	got = extractAll(restricted, "[sticker:hello] [sticker:bye]")
	assert.Equal(t, []domain.Action{domain.Sticker{Keyword: "hello"}}, got)
}

func TestQuoteMerge(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[quote:0]A[/quote] B")

	msgs := messages(got)
	require.Len(t, msgs, 1)
	assert.Equal(t, "A B", msgs[0].Text)
	require.NotNil(t, msgs[0].QuoteIndex)
	assert.Equal(t, 0, *msgs[0].QuoteIndex)
}

func TestQuoteDeferredUntilFinal(t *testing.T) {
	x := New(Options{})
	seen := NewSeen()

	assert.Empty(t, x.Extract("[quote:1]A[/quote] B", seen, ScanOptions{}))

	got := x.Extract("[quote:1]A[/quote] B C", seen, ScanOptions{Final: true})
	require.Len(t, got, 1)
	assert.Equal(t, domain.MessageSend{Text: "A B C", QuoteIndex: domain.IntPtr(1)}, got[0])
}

func TestQuoteTrailingStopsAtNextTag(t *testing.T) {
	x := New(Options{})
	seen := NewSeen()

	got := x.Extract("[quote:-1]old[/quote]new [sticker:ok]", seen, ScanOptions{})
	require.Len(t, got, 2)
	assert.Equal(t, domain.Sticker{Keyword: "ok"}, got[0])
	assert.Equal(t, domain.MessageSend{Text: "old new", QuoteIndex: domain.IntPtr(-1)}, got[1])
}

func TestMessageBlockNestedTags(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[msg]see you [sticker:bye] soon[reaction:like][/msg]")

	require.Len(t, got, 3)
	assert.Equal(t, domain.Reaction{Type: "like"}, got[0])
	assert.Equal(t, domain.Sticker{Keyword: "bye"}, got[1])
	assert.Equal(t, domain.MessageSend{Text: "see you soon"}, got[2])
}

func TestEmptySuppression(t *testing.T) {
	x := New(Options{})

	assert.Empty(t, messages(extractAll(x, "[msg]   [/msg]")))

	got := extractAll(x, "[msg][sticker:wave][/msg]")
	assert.Equal(t, []domain.Action{domain.Sticker{Keyword: "wave"}}, got)

	got = extractAll(x, "[quote:0][/quote]")
	assert.Empty(t, got)
}

func TestUndoRule(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[undo:-1] [undo:3:1] [undo:all] [undo:-1] [undo:all:2]")

	require.Len(t, got, 3)
	assert.Equal(t, domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoSingle, Index: -1}}, got[0])
	assert.Equal(t, domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoRange, Start: 3, End: 1}}, got[1])
	assert.Equal(t, domain.Undo{Target: domain.UndoTarget{Mode: domain.UndoAll}}, got[2])
}

func TestCardRule(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[card] [card:u42] [card]")
	assert.Equal(t, []domain.Action{domain.Card{}, domain.Card{UserID: "u42"}}, got)
}

func TestImageRule(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[image:https://x.test/a.png] a cat [/image][image:ftp://x.test/b.png]b[/image]")

	require.Len(t, got, 2)
	assert.Equal(t, domain.Image{URL: "https://x.test/a.png", Caption: "a cat"}, got[0])
	// the ftp image is not a recognised tag and falls through to plain text
	assert.Equal(t, domain.KindMessage, got[1].Kind())
}

func TestImageCaptionNestedTags(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[image:https://a.b/c.png]cap [card] x[/image]")

	assert.Equal(t, []domain.Action{
		domain.Card{},
		domain.Image{URL: "https://a.b/c.png", Caption: "cap x"},
	}, got)
}

func TestPriorityOrder(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[image:https://x.test/i.png][/image][card][undo:0][msg]m[/msg][sticker:s][reaction:sad]")

	kinds := make([]domain.ActionKind, len(got))
	for i, a := range got {
		kinds[i] = a.Kind()
	}
	assert.Equal(t, []domain.ActionKind{
		domain.KindReaction,
		domain.KindSticker,
		domain.KindMessage,
		domain.KindUndo,
		domain.KindCard,
		domain.KindImage,
	}, kinds)
}

// --- Plain-text flush ---

func TestFlushPlainTextWithoutMessages(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "Hello [reaction:heart] world")

	require.Len(t, got, 2)
	assert.Equal(t, domain.MessageSend{Text: "Hello world"}, got[1])
}

func TestFlushSkippedWhenMessageSent(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "chatter [msg]real reply[/msg] more chatter")

	msgs := messages(got)
	require.Len(t, msgs, 1)
	assert.Equal(t, "real reply", msgs[0].Text)
}

func TestFlushKeepsTablesAndCode(t *testing.T) {
	x := New(Options{})

	table := "[msg]here[/msg]\n| a | b |\n|---|---|\n| 1 | 2 |"
	msgs := messages(extractAll(x, table))
	require.Len(t, msgs, 2)
	assert.Equal(t, "| a | b |\n|---|---|\n| 1 | 2 |", msgs[1].Text)

	code := "[msg]here[/msg]\n```go\nfmt.Println()\n```"
	msgs = messages(extractAll(x, code))
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "fmt.Println()")
}

func TestFlushEmpty(t *testing.T) {
	x := New(Options{})
	seen := NewSeen()
	_, ok := x.Flush("[sticker:a]  ", seen)
	assert.False(t, ok)
}

func TestPlainTextStripsOrphans(t *testing.T) {
	x := New(Options{})
	assert.Equal(t, "unclosed body", x.PlainText("[msg]unclosed body"))
	assert.Equal(t, "keep [tool:run] this", x.PlainText("keep [tool:run] this"))
}

func TestMalformedTagsAreNotErrors(t *testing.T) {
	x := New(Options{})
	got := extractAll(x, "[reaction:heart [sticker:] [quote:x]y")
	msgs := messages(got)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].QuoteIndex)
}

// --- Echo detection ---

func TestEchoDetection(t *testing.T) {
	quoted := map[int]string{0: "What time is it?"}
	buf := "[quote:0]what time  is it?[/quote]"

	off := New(Options{})
	got := off.Extract(buf, NewSeen(), ScanOptions{Final: true, Quoted: quoted})
	assert.Len(t, messages(got), 1)

	on := New(Options{EchoDetection: true})
	got = on.Extract(buf, NewSeen(), ScanOptions{Final: true, Quoted: quoted})
	assert.Empty(t, messages(got))

	got = on.Extract("[quote:0]It is noon[/quote]", NewSeen(), ScanOptions{Final: true, Quoted: quoted})
	assert.Len(t, messages(got), 1)
}

// --- Streaming properties ---

const composite = "[reaction:heart] Sure! [sticker:hello][quote:0]you said[/quote] I agree " +
	"[msg]Second [card] line[/msg] [undo:-1] [image:https://x.test/a.png]cat[/image]"

func TestStreamingEquivalenceTwoChunks(t *testing.T) {
	x := New(Options{})
	want := extractAll(x, composite)
	require.Len(t, want, 7)

	for i := 1; i < len(composite); i++ {
		got := streamChunks(x, []string{composite[:i], composite[i:]})
		require.ElementsMatch(t, want, got, "split at %d", i)
	}
}

func TestStreamingEquivalenceByteChunks(t *testing.T) {
	x := New(Options{})
	want := extractAll(x, composite)

	chunks := make([]string, 0, len(composite))
	for i := range len(composite) {
		chunks = append(chunks, composite[i:i+1])
	}
	assert.ElementsMatch(t, want, streamChunks(x, chunks))
}

func TestIdempotentRescan(t *testing.T) {
	x := New(Options{})
	b1 := "[reaction:heart][msg]hi[/msg][sticker:wave]"
	suffix := " and some trailing words"

	seen := NewSeen()
	first := x.Extract(b1, seen, ScanOptions{})
	second := x.Extract(b1+suffix, seen, ScanOptions{})
	assert.Empty(t, second)

	once := x.Extract(b1+suffix, NewSeen(), ScanOptions{})
	assert.ElementsMatch(t, once, append(first, second...))
}

// --- Seen ---

func TestSeen(t *testing.T) {
	s := NewSeen()
	assert.True(t, s.Mark(domain.Sticker{Keyword: "a"}))
	assert.False(t, s.Mark(domain.Sticker{Keyword: "a"}))
	assert.True(t, s.Mark(domain.MessageSend{Text: "a"}))
	assert.False(t, s.Mark(domain.MessageSend{Text: " a "}))
	assert.Equal(t, 1, s.Count(domain.KindSticker))
	assert.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Mark(domain.Sticker{Keyword: "a"}))
}

// --- Tool tags ---

func TestStripToolTags(t *testing.T) {
	assert.Equal(t, "before after", StripToolTags("before [tool:search]query[/tool]after"))
	assert.Equal(t, "x  y", StripToolTags("x [tool:noop] y"))
	assert.Equal(t, "plain", StripToolTags("plain"))
}
