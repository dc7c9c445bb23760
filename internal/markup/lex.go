package markup

import "strings"

const (
	tagQuote   = "quote"
	tagDetails = "details"
)

type tokenKind int

const (
	tokText tokenKind = iota
	tokOpen
	tokClose
)

type token struct {
	kind   tokenKind
	tag    string
	arg    string
	hasArg bool
	raw    string
}

// lex splits src into text and tag tokens. Anything that is not a well
// formed quote or details tag is text.
func lex(src string) []token {
	var toks []token
	textStart := 0
	for i := 0; i < len(src); {
		if src[i] != '[' {
			i++
			continue
		}
		tok, n := readTag(src[i:])
		if n == 0 {
			i++
			continue
		}
		if i > textStart {
			toks = append(toks, token{kind: tokText, raw: src[textStart:i]})
		}
		toks = append(toks, tok)
		i += n
		textStart = i
	}
	if textStart < len(src) {
		toks = append(toks, token{kind: tokText, raw: src[textStart:]})
	}
	return toks
}

// readTag parses a tag at the start of s and returns its length, or 0.
func readTag(s string) (token, int) {
	if strings.HasPrefix(s, "[/") {
		for _, tag := range []string{tagQuote, tagDetails} {
			n := 2 + len(tag)
			if len(s) > n && strings.EqualFold(s[2:n], tag) && s[n] == ']' {
				return token{kind: tokClose, tag: tag, raw: s[:n+1]}, n + 1
			}
		}
		return token{}, 0
	}
	for _, tag := range []string{tagQuote, tagDetails} {
		n := 1 + len(tag)
		if len(s) <= n || !strings.EqualFold(s[1:n], tag) {
			continue
		}
		switch s[n] {
		case ']':
			return token{kind: tokOpen, tag: tag, raw: s[:n+1]}, n + 1
		case '=':
			end := argEnd(s[n+1:])
			if end < 0 {
				return token{}, 0
			}
			total := n + 1 + end + 1
			return token{kind: tokOpen, tag: tag, arg: s[n+1 : n+1+end], hasArg: true, raw: s[:total]}, total
		}
	}
	return token{}, 0
}

// argEnd finds the closing bracket of a tag argument. Quoted arguments may
// contain brackets. Arguments never span lines.
func argEnd(s string) int {
	quote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\n':
			return -1
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			if i == 0 {
				quote = c
			}
		case c == ']':
			return i
		}
	}
	return -1
}
