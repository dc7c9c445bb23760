// Package markup expands forum bracket notation ([quote] and [details]) into
// HTML before the text is handed to a markdown parser.
package markup

import (
	"errors"
	"html"
	"strings"
)

// DefaultMaxDepth bounds how deeply blocks may nest.
const DefaultMaxDepth = 32

// ErrTooDeep is returned when blocks nest deeper than the expander allows.
var ErrTooDeep = errors.New("markup nesting too deep")

// Expander rewrites bracket blocks. The zero value uses DefaultMaxDepth.
type Expander struct {
	MaxDepth int
}

// Expand rewrites src with a default Expander.
func Expand(src string) (string, error) {
	return Expander{}.Expand(src)
}

// Expand rewrites every matched block in src. A closing tag matches the
// nearest open tag of the same kind; unmatched or unterminated tags are left
// as written. Blocks nested beyond MaxDepth produce ErrTooDeep.
func (e Expander) Expand(src string) (string, error) {
	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	root := &frame{}
	stack := []*frame{root}
	for _, tok := range lex(src) {
		top := stack[len(stack)-1]
		switch tok.kind {
		case tokText:
			top.body.WriteString(tok.raw)
		case tokOpen:
			if len(stack) > maxDepth {
				return "", ErrTooDeep
			}
			stack = append(stack, &frame{tag: tok.tag, arg: tok.arg, hasArg: tok.hasArg, raw: tok.raw})
		case tokClose:
			at := -1
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].tag == tok.tag {
					at = i
					break
				}
			}
			if at < 0 {
				top.body.WriteString(tok.raw)
				continue
			}
			// Frames opened after the match never closed: they stay literal.
			for len(stack)-1 > at {
				stack = collapse(stack)
			}
			f := stack[at]
			stack = stack[:at]
			stack[at-1].body.WriteString(f.render())
		}
	}
	for len(stack) > 1 {
		stack = collapse(stack)
	}
	return root.body.String(), nil
}

type frame struct {
	tag    string
	arg    string
	hasArg bool
	raw    string
	body   strings.Builder
}

func collapse(stack []*frame) []*frame {
	f := stack[len(stack)-1]
	parent := stack[len(stack)-2]
	parent.body.WriteString(f.raw)
	parent.body.WriteString(f.body.String())
	return stack[:len(stack)-1]
}

func (f *frame) render() string {
	var b strings.Builder
	inner := f.body.String()
	switch f.tag {
	case tagDetails:
		b.WriteString("<details>")
		if f.hasArg {
			b.WriteString("<summary>")
			b.WriteString(html.EscapeString(unquote(f.arg)))
			b.WriteString("</summary>")
		}
		b.WriteString(inner)
		b.WriteString("</details>")
	case tagQuote:
		q := parseQuoteMeta(f.arg)
		b.WriteString(`<aside class="quote"`)
		if q.username != "" {
			b.WriteString(` data-username="` + html.EscapeString(q.username) + `"`)
		}
		if q.post != "" {
			b.WriteString(` data-post="` + html.EscapeString(q.post) + `"`)
		}
		if q.topic != "" {
			b.WriteString(` data-topic="` + html.EscapeString(q.topic) + `"`)
		}
		b.WriteString(">")
		if q.username != "" {
			b.WriteString(`<div class="title">` + html.EscapeString(q.username) + `:</div>`)
		}
		b.WriteString("<blockquote>")
		b.WriteString(inner)
		b.WriteString("</blockquote></aside>")
	}
	return b.String()
}

type quoteMeta struct {
	username string
	post     string
	topic    string
}

// parseQuoteMeta reads `"alice, post:3, topic:42"` style attributions.
func parseQuoteMeta(arg string) quoteMeta {
	var q quoteMeta
	for i, part := range strings.Split(unquote(arg), ",") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, ":")
		switch {
		case ok && strings.TrimSpace(key) == "post":
			q.post = strings.TrimSpace(value)
		case ok && strings.TrimSpace(key) == "topic":
			q.topic = strings.TrimSpace(value)
		case i == 0:
			q.username = part
		}
	}
	return q
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
