// Package worddiff computes deterministic word-granularity differences
// between two blocks of text.
package worddiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op identifies what happened to the words of a Span.
type Op int8

const (
	Equal Op = iota
	Inserted
	Deleted
	Modified
)

func (o Op) String() string {
	switch o {
	case Equal:
		return "equal"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	}
	return "unknown"
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Span is a contiguous run of whole words sharing one Op. A Modified span
// carries the replaced words in Old and the replacement in Text.
type Span struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
	Old  string `json:"old,omitempty"`
}

// Marker separates independently diffed runs. It is a private-use code point
// and never appears in rendered output.
const Marker = '\uE000'

const markerString = string(Marker)

// MaxTokens caps the number of distinct words tracked in one call.
const MaxTokens = 65535

// Result is the outcome of Compute. Truncated reports that one of the inputs
// had more distinct words than MaxTokens and its tail was compared as a whole.
type Result struct {
	Spans     []Span
	Truncated bool
}

// Diff returns the word spans turning oldText into newText.
func Diff(oldText, newText string) []Span {
	return Compute(oldText, newText).Spans
}

// Compute is Diff plus the truncation flag.
func Compute(oldText, newText string) Result {
	chunks, enc := diffTokens(oldText, newText)
	var spans []Span
	for _, c := range chunks {
		text := strings.ReplaceAll(enc.text(c.ids), markerString, "")
		spans = appendSpan(spans, c.op, text)
	}
	return Result{Spans: spans, Truncated: enc.truncated}
}

// DiffRuns diffs two ordered lists of text runs as one document while keeping
// every edit inside the run it belongs to. The result has one span list per
// new run; text deleted from old runs lands in the new run being built at
// that point.
func DiffRuns(oldRuns, newRuns []string) [][]Span {
	out := make([][]Span, len(newRuns))
	if len(newRuns) == 0 {
		return out
	}
	chunks, enc := diffTokens(joinRuns(oldRuns), joinRuns(newRuns))
	idx := 0
	for _, c := range chunks {
		parts := strings.Split(enc.text(c.ids), markerString)
		for i, part := range parts {
			if i > 0 && c.op != Deleted && idx < len(out)-1 {
				idx++
			}
			out[idx] = appendSpan(out[idx], c.op, part)
		}
	}
	return out
}

// Pair folds every Deleted span directly followed by an Inserted span into a
// single Modified span.
func Pair(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for i := 0; i < len(spans); i++ {
		s := spans[i]
		if s.Op == Deleted && i+1 < len(spans) && spans[i+1].Op == Inserted {
			out = append(out, Span{Op: Modified, Text: spans[i+1].Text, Old: s.Text})
			i++
			continue
		}
		out = append(out, s)
	}
	return out
}

// Old rebuilds the original text from spans.
func Old(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		switch s.Op {
		case Equal, Deleted:
			b.WriteString(s.Text)
		case Modified:
			b.WriteString(s.Old)
		}
	}
	return b.String()
}

// New rebuilds the revised text from spans.
func New(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		switch s.Op {
		case Equal, Inserted, Modified:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

func diffTokens(oldText, newText string) ([]chunk, *encoder) {
	enc := newEncoder()
	a := enc.encode(oldText)
	b := enc.encode(newText)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(a, b, false)

	chunks := make([]chunk, 0, len(diffs))
	for _, d := range diffs {
		chunks = append(chunks, chunk{op: opOf(d.Type), ids: decodeRunes(d.Text)})
	}
	return cleanup(chunks, enc), enc
}

func opOf(t diffmatchpatch.Operation) Op {
	switch t {
	case diffmatchpatch.DiffInsert:
		return Inserted
	case diffmatchpatch.DiffDelete:
		return Deleted
	default:
		return Equal
	}
}

func joinRuns(runs []string) string {
	clean := make([]string, len(runs))
	for i, r := range runs {
		clean[i] = strings.ReplaceAll(r, markerString, "")
	}
	return strings.Join(clean, markerString)
}

func appendSpan(spans []Span, op Op, text string) []Span {
	if text == "" {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].Op == op {
		spans[n-1].Text += text
		return spans
	}
	return append(spans, Span{Op: op, Text: text})
}
