package metis

import "encoding/xml"

// Builder provides a fluent API for constructing an element tree in code.
type Builder struct {
	ns    string
	doc   string
	root  *Element
	stack []*Element
	seq   int
}

// NewBuilder starts a tree whose root element is name in the core namespace.
func NewBuilder(name string, attrs ...xml.Attr) *Builder {
	b := &Builder{ns: CoreNamespace}
	b.root = b.element(b.ns, name, attrs)
	b.stack = []*Element{b.root}
	return b
}

// Attr builds an unqualified attribute.
func Attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// Document sets the document id recorded in the location of the root and of every
// element built afterwards.
func (b *Builder) Document(id string) *Builder {
	b.doc = id
	b.root.loc.Document = id
	return b
}

// Namespace sets the namespace used by Open, Leaf and the element helpers.
func (b *Builder) Namespace(ns string) *Builder {
	b.ns = ns
	return b
}

// Open appends a child to the current element and descends into it.
func (b *Builder) Open(name string, attrs ...xml.Attr) *Builder {
	el := b.current().AppendChild(b.element(b.ns, name, attrs))
	b.stack = append(b.stack, el)
	return b
}

// OpenNS is Open with an explicit namespace.
func (b *Builder) OpenNS(namespace, name string, attrs ...xml.Attr) *Builder {
	el := b.current().AppendChild(b.element(namespace, name, attrs))
	b.stack = append(b.stack, el)
	return b
}

// Leaf appends a child to the current element without descending.
func (b *Builder) Leaf(name string, attrs ...xml.Attr) *Builder {
	b.current().AppendChild(b.element(b.ns, name, attrs))
	return b
}

// Text appends character data to the current element.
func (b *Builder) Text(s string) *Builder {
	b.current().AppendText(s)
	return b
}

// Close returns to the parent of the current element. Closing the root is a no-op.
func (b *Builder) Close() *Builder {
	if len(b.stack) > 1 {
		b.stack = b.stack[:len(b.stack)-1]
	}
	return b
}

// Set appends a set element binding name to the expression value.
func (b *Builder) Set(name, value string) *Builder {
	return b.Leaf("set", Attr("name", name), Attr("value", value))
}

// Out appends an out element writing the expression value.
func (b *Builder) Out(value string) *Builder {
	return b.Leaf("out", Attr("value", value))
}

// Include appends an include element for src.
func (b *Builder) Include(src string) *Builder {
	return b.Leaf("include", Attr("src", src))
}

// When opens a when branch guarded by test; pair it with Close.
func (b *Builder) When(test string) *Builder {
	return b.Open("when", Attr("test", test))
}

// Build returns the root of the assembled tree.
func (b *Builder) Build() *Element {
	return b.root
}

func (b *Builder) current() *Element {
	return b.stack[len(b.stack)-1]
}

// element creates an element with a synthetic location: builder trees have no source
// text, so the line is the creation order.
func (b *Builder) element(ns, name string, attrs []xml.Attr) *Element {
	b.seq++
	doc := b.doc
	if doc == "" {
		doc = "builder"
	}
	return NewElement(ns, name, attrs...).SetLocation(Location{Document: doc, Line: b.seq, Column: 1})
}
