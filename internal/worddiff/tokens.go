package worddiff

import "unicode/utf8"

// Tokenize splits text into words. A word runs up to and including the next
// space, or to the end of the text. Markers are always words of their own.
func Tokenize(text string) []string {
	var words []string
	for text != "" {
		w := nextWord(text)
		words = append(words, w)
		text = text[len(w):]
	}
	return words
}

func nextWord(text string) string {
	for i, r := range text {
		switch r {
		case Marker:
			if i == 0 {
				return text[:len(markerString)]
			}
			return text[:i]
		case ' ':
			return text[:i+1]
		}
	}
	return text
}

// encoder maps words to small integer ids shared by both sides of one diff.
type encoder struct {
	index     map[string]int
	words     []string
	widths    []int
	marker    int
	truncated bool
}

func newEncoder() *encoder {
	return &encoder{index: make(map[string]int), marker: -1}
}

func (e *encoder) id(word string) int {
	if id, ok := e.index[word]; ok {
		return id
	}
	id := len(e.words)
	e.index[word] = id
	e.words = append(e.words, word)
	e.widths = append(e.widths, utf8.RuneCountInString(word))
	if word == markerString {
		e.marker = id
	}
	return id
}

func (e *encoder) encode(text string) []rune {
	out := make([]rune, 0, len(text)/4+1)
	for text != "" {
		var w string
		if len(e.words) >= MaxTokens-1 {
			// Dictionary is full: the rest of the text is one token.
			w = text
			e.truncated = true
		} else {
			w = nextWord(text)
		}
		out = append(out, idRune(e.id(w)))
		text = text[len(w):]
	}
	return out
}

func (e *encoder) text(ids []int) string {
	n := 0
	for _, id := range ids {
		n += len(e.words[id])
	}
	buf := make([]byte, 0, n)
	for _, id := range ids {
		buf = append(buf, e.words[id]...)
	}
	return string(buf)
}

func (e *encoder) width(ids []int) int {
	n := 0
	for _, id := range ids {
		n += e.widths[id]
	}
	return n
}

// Ids are carried through the diff as runes. The surrogate block is skipped
// so every id survives a round trip through a Go string.
func idRune(id int) rune {
	if id < 0xD800 {
		return rune(id)
	}
	return rune(id + 0x800)
}

func runeID(r rune) int {
	if r < 0xD800 {
		return int(r)
	}
	return int(r) - 0x800
}

func decodeRunes(s string) []int {
	ids := make([]int, 0, len(s))
	for _, r := range s {
		ids = append(ids, runeID(r))
	}
	return ids
}
