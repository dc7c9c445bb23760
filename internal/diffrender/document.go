// Package diffrender renders the difference between two versions of a post
// as a single annotated HTML document.
package diffrender

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"proposalsapp/api/internal/markup"
)

const (
	DefaultMaxNodes = 50000
	maxTreeDepth    = 256
)

// ErrParse matches every *ParseError.
var ErrParse = errors.New("document parse failure")

var (
	errTooLarge = errors.New("document exceeds node budget")
	errTooDeep  = errors.New("document tree too deep")
)

// ParseError reports which side of a diff could not be parsed.
type ParseError struct {
	Side string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s document: %v", e.Side, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Classes are the class names attached to changed content.
type Classes struct {
	Inserted string
	Deleted  string
	Modified string
}

func DefaultClasses() Classes {
	return Classes{Inserted: "diff-inserted", Deleted: "diff-deleted", Modified: "diff-modified"}
}

// Node is one element or text leaf of a parsed document. Text leaves have
// an empty Tag.
type Node struct {
	Tag      string
	Attrs    []html.Attribute
	Text     string
	Children []*Node
}

func (n *Node) IsText() bool { return n.Tag == "" }

var converter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

type Option func(*Document)

// WithMaxNodes limits the number of nodes a Document will build.
func WithMaxNodes(n int) Option {
	return func(d *Document) { d.maxNodes = n }
}

// WithMaxDepth limits bracket block nesting during expansion.
func WithMaxDepth(n int) Option {
	return func(d *Document) { d.expander.MaxDepth = n }
}

// Document holds the state of a single render. It is not safe for
// concurrent use and should not be reused across renders.
type Document struct {
	classes  Classes
	expander markup.Expander
	maxNodes int
	nodes    int
}

func NewDocument(classes Classes, opts ...Option) *Document {
	d := &Document{classes: classes, maxNodes: DefaultMaxNodes}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RenderDiff renders newSrc annotated with the changes from oldSrc.
func RenderDiff(oldSrc, newSrc string, classes Classes, opts ...Option) (string, error) {
	return NewDocument(classes, opts...).Diff(oldSrc, newSrc)
}

// Render renders src without annotations.
func Render(src string, opts ...Option) (string, error) {
	d := NewDocument(DefaultClasses(), opts...)
	root, err := d.Parse(src)
	if err != nil {
		return "", &ParseError{Side: "new", Err: err}
	}
	return serialize(copyNodes(root.Children))
}

// Diff parses both sources and renders the merged tree.
func (d *Document) Diff(oldSrc, newSrc string) (string, error) {
	oldRoot, err := d.Parse(oldSrc)
	if err != nil {
		return "", &ParseError{Side: "old", Err: err}
	}
	newRoot, err := d.Parse(newSrc)
	if err != nil {
		return "", &ParseError{Side: "new", Err: err}
	}
	return serialize(d.mergeChildren(oldRoot.Children, newRoot.Children))
}

// Parse expands bracket blocks, converts markdown to HTML and builds the
// node tree under a synthetic body root.
func (d *Document) Parse(src string) (*Node, error) {
	expanded, err := d.expander.Expand(src)
	if err != nil {
		return nil, fmt.Errorf("expand markup: %w", err)
	}
	var buf bytes.Buffer
	if err := converter.Convert([]byte(expanded), &buf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(&buf, body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	root := &Node{Tag: "body"}
	for _, n := range nodes {
		child, err := d.convert(n, 1)
		if err != nil {
			return nil, err
		}
		if child != nil {
			root.Children = append(root.Children, child)
		}
	}
	return root, nil
}

func (d *Document) convert(n *html.Node, depth int) (*Node, error) {
	if depth > maxTreeDepth {
		return nil, errTooDeep
	}
	var out *Node
	switch n.Type {
	case html.TextNode:
		out = &Node{Text: n.Data}
	case html.ElementNode:
		out = &Node{Tag: n.Data, Attrs: slices.Clone(n.Attr)}
	default:
		return nil, nil
	}
	d.nodes++
	if d.nodes > d.maxNodes {
		return nil, errTooLarge
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		child, err := d.convert(c, depth+1)
		if err != nil {
			return nil, err
		}
		if child != nil {
			out.Children = append(out.Children, child)
		}
	}
	return out, nil
}

func serialize(nodes []*html.Node) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return b.String(), nil
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func elementNode(tag string, attrs []html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     slices.Clone(attrs),
	}
}

func copyNode(n *Node) *html.Node {
	if n.IsText() {
		return textNode(n.Text)
	}
	el := elementNode(n.Tag, n.Attrs)
	for _, c := range copyNodes(n.Children) {
		el.AppendChild(c)
	}
	return el
}

func copyNodes(nodes []*Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, copyNode(n))
	}
	return out
}

func addClass(el *html.Node, class string) {
	if class == "" {
		return
	}
	for i, a := range el.Attr {
		if a.Namespace == "" && a.Key == "class" {
			if a.Val == "" {
				el.Attr[i].Val = class
			} else {
				el.Attr[i].Val = a.Val + " " + class
			}
			return
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: "class", Val: class})
}

func sameAttrs(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	return true
}

// rawText elements hold unparsed text and are copied rather than diffed.
func rawText(tag string) bool {
	switch tag {
	case "script", "style", "textarea", "title", "xmp", "iframe", "noembed", "noframes", "noscript", "plaintext":
		return true
	}
	return false
}
