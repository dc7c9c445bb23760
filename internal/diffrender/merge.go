package diffrender

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/net/html"

	"proposalsapp/api/internal/worddiff"
)

// mergeChildren merges two sibling lists. Lists with the same tag skeleton
// are diffed as one run of text so word edits can cross inline tags without
// ever escaping them; other lists are aligned node by node first.
func (d *Document) mergeChildren(oldKids, newKids []*Node) []*html.Node {
	if sameShape(oldKids, newKids) {
		var oldTexts, newTexts []string
		collectText(oldKids, &oldTexts)
		collectText(newKids, &newTexts)
		runs := worddiff.DiffRuns(oldTexts, newTexts)
		next := 0
		return d.rebuild(oldKids, newKids, runs, &next)
	}

	var out []*html.Node
	for _, p := range align(oldKids, newKids) {
		switch p.op {
		case worddiff.Equal:
			if p.n.IsText() {
				out = append(out, d.spanNodes(worddiff.Diff(p.o.Text, p.n.Text))...)
			} else {
				out = append(out, d.mergeElement(p.o, p.n))
			}
		case worddiff.Deleted:
			out = append(out, d.wrap(p.o, worddiff.Deleted)...)
		case worddiff.Inserted:
			out = append(out, d.wrap(p.n, worddiff.Inserted)...)
		}
	}
	return out
}

func (d *Document) mergeElement(o, n *Node) *html.Node {
	el := elementNode(n.Tag, n.Attrs)
	if !sameAttrs(o.Attrs, n.Attrs) {
		addClass(el, d.classes.Modified)
	}
	var kids []*html.Node
	if rawText(n.Tag) {
		kids = copyNodes(n.Children)
	} else {
		kids = d.mergeChildren(o.Children, n.Children)
	}
	for _, k := range kids {
		el.AppendChild(k)
	}
	return el
}

// rebuild walks two lists known to share a skeleton, consuming one run of
// spans per text leaf.
func (d *Document) rebuild(oldKids, newKids []*Node, runs [][]worddiff.Span, next *int) []*html.Node {
	out := make([]*html.Node, 0, len(newKids))
	for i, n := range newKids {
		if n.IsText() {
			out = append(out, d.spanNodes(runs[*next])...)
			*next++
			continue
		}
		o := oldKids[i]
		el := elementNode(n.Tag, n.Attrs)
		if !sameAttrs(o.Attrs, n.Attrs) {
			addClass(el, d.classes.Modified)
		}
		var kids []*html.Node
		if rawText(n.Tag) {
			kids = copyNodes(n.Children)
		} else {
			kids = d.rebuild(o.Children, n.Children, runs, next)
		}
		for _, k := range kids {
			el.AppendChild(k)
		}
		out = append(out, el)
	}
	return out
}

func (d *Document) spanNodes(spans []worddiff.Span) []*html.Node {
	var out []*html.Node
	for _, s := range spans {
		switch s.Op {
		case worddiff.Equal:
			out = append(out, textNode(s.Text))
		case worddiff.Inserted:
			out = append(out, d.textChange(s.Text, worddiff.Inserted)...)
		case worddiff.Deleted:
			out = append(out, d.textChange(s.Text, worddiff.Deleted)...)
		case worddiff.Modified:
			out = append(out, d.textChange(s.Old, worddiff.Deleted)...)
			out = append(out, d.textChange(s.Text, worddiff.Inserted)...)
		}
	}
	return out
}

// textChange wraps changed text in ins or del. Whitespace-only changes are
// not marked.
func (d *Document) textChange(text string, op worddiff.Op) []*html.Node {
	if strings.TrimSpace(text) == "" {
		if op == worddiff.Inserted {
			return []*html.Node{textNode(text)}
		}
		return nil
	}
	tag, class := "ins", d.classes.Inserted
	if op == worddiff.Deleted {
		tag, class = "del", d.classes.Deleted
	}
	el := elementNode(tag, nil)
	addClass(el, class)
	el.AppendChild(textNode(text))
	return []*html.Node{el}
}

// wrap marks a subtree present on one side only.
func (d *Document) wrap(n *Node, op worddiff.Op) []*html.Node {
	if n.IsText() {
		return d.textChange(n.Text, op)
	}
	el := copyNode(n)
	if op == worddiff.Inserted {
		addClass(el, d.classes.Inserted)
	} else {
		addClass(el, d.classes.Deleted)
	}
	return []*html.Node{el}
}

func sameShape(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].IsText() != b[i].IsText() {
			return false
		}
		if a[i].IsText() {
			continue
		}
		if a[i].Tag != b[i].Tag {
			return false
		}
		if rawText(a[i].Tag) {
			continue
		}
		if !sameShape(a[i].Children, b[i].Children) {
			return false
		}
	}
	return true
}

func collectText(nodes []*Node, out *[]string) {
	for _, n := range nodes {
		switch {
		case n.IsText():
			*out = append(*out, n.Text)
		case rawText(n.Tag):
		default:
			collectText(n.Children, out)
		}
	}
}

type pair struct {
	op worddiff.Op
	o  *Node
	n  *Node
}

// align matches identical subtrees first, then pairs the remaining nodes
// by tag within each gap.
func align(oldKids, newKids []*Node) []pair {
	var out []pair
	var gapOld, gapNew []*Node
	flush := func() {
		out = append(out, alignByKey(gapOld, gapNew, nodeKey)...)
		gapOld, gapNew = nil, nil
	}
	for _, p := range alignByKey(oldKids, newKids, signature) {
		switch p.op {
		case worddiff.Equal:
			flush()
			out = append(out, p)
		case worddiff.Deleted:
			gapOld = append(gapOld, p.o)
		case worddiff.Inserted:
			gapNew = append(gapNew, p.n)
		}
	}
	flush()
	return out
}

func alignByKey(oldKids, newKids []*Node, key func(*Node) string) []pair {
	if len(oldKids) == 0 && len(newKids) == 0 {
		return nil
	}
	ids := map[string]rune{}
	encode := func(nodes []*Node) []rune {
		out := make([]rune, len(nodes))
		for i, n := range nodes {
			k := key(n)
			r, ok := ids[k]
			if !ok {
				r = keyRune(len(ids))
				ids[k] = r
			}
			out[i] = r
		}
		return out
	}
	a, b := encode(oldKids), encode(newKids)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	var out []pair
	i, j := 0, 0
	for _, diff := range dmp.DiffMainRunes(a, b, false) {
		n := len([]rune(diff.Text))
		for k := 0; k < n; k++ {
			switch diff.Type {
			case diffmatchpatch.DiffEqual:
				out = append(out, pair{op: worddiff.Equal, o: oldKids[i], n: newKids[j]})
				i++
				j++
			case diffmatchpatch.DiffDelete:
				out = append(out, pair{op: worddiff.Deleted, o: oldKids[i]})
				i++
			case diffmatchpatch.DiffInsert:
				out = append(out, pair{op: worddiff.Inserted, n: newKids[j]})
				j++
			}
		}
	}
	return out
}

func keyRune(id int) rune {
	if id < 0xD800 {
		return rune(id)
	}
	return rune(id + 0x800)
}

func nodeKey(n *Node) string {
	if n.IsText() {
		return "#text"
	}
	return n.Tag
}

// signature identifies a subtree by tag, attributes and content.
func signature(n *Node) string {
	var b strings.Builder
	writeSignature(&b, n)
	return b.String()
}

func writeSignature(b *strings.Builder, n *Node) {
	if n.IsText() {
		b.WriteString("#")
		b.WriteString(n.Text)
		b.WriteByte(0)
		return
	}
	b.WriteString("<")
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Val)
	}
	b.WriteByte('>')
	for _, c := range n.Children {
		writeSignature(b, c)
	}
	b.WriteString("</>")
}
