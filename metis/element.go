package metis

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Location identifies where an element was declared.
type Location struct {
	Document string
	Line     int
	Column   int
}

// IsZero reports whether no position information is known.
func (l Location) IsZero() bool {
	return l.Document == "" && l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	doc := l.Document
	if doc == "" {
		doc = "<unknown>"
	}
	if l.Line == 0 {
		return doc
	}
	return fmt.Sprintf("%s:%d:%d", doc, l.Line, l.Column)
}

// Element is one node of a compiled template document.
// Trees are built once by a parser or Builder and are read-only during execution.
type Element struct {
	loc       Location
	namespace string
	name      string
	attrs     []xml.Attr
	text      string

	parent   *Element
	children []*Element
	prev     *Element
	next     *Element
}

// NewElement creates a detached element.
func NewElement(namespace, name string, attrs ...xml.Attr) *Element {
	return &Element{namespace: namespace, name: name, attrs: attrs}
}

// SetLocation records the originating document and position used in diagnostics.
func (e *Element) SetLocation(loc Location) *Element {
	e.loc = loc
	return e
}

// AppendChild attaches child as the last child of e and links it to its predecessor.
func (e *Element) AppendChild(child *Element) *Element {
	child.parent = e
	child.next = nil
	child.prev = nil
	if n := len(e.children); n > 0 {
		last := e.children[n-1]
		last.next = child
		child.prev = last
	}
	e.children = append(e.children, child)
	return child
}

// AppendText appends character data directly contained by e.
func (e *Element) AppendText(text string) {
	e.text += text
}

func (e *Element) Namespace() string  { return e.namespace }
func (e *Element) Name() string       { return e.name }
func (e *Element) Location() Location { return e.loc }
func (e *Element) Parent() *Element   { return e.parent }

// Text returns the character data directly contained by e, in document order.
func (e *Element) Text() string { return e.text }

// PredecessorNode returns the preceding sibling, or nil.
func (e *Element) PredecessorNode() *Element { return e.prev }

// SuccessorNode returns the following sibling, or nil.
func (e *Element) SuccessorNode() *Element { return e.next }

// ChildNodes returns the children in document order; never nil.
func (e *Element) ChildNodes() []*Element {
	if e.children == nil {
		return []*Element{}
	}
	return e.children
}

// Attributes returns the attributes in document order.
func (e *Element) Attributes() []xml.Attr {
	return e.attrs
}

// Attribute returns the raw text of the named attribute.
func (e *Element) Attribute(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// QualifiedName renders the element name as {namespace}local for diagnostics.
func (e *Element) QualifiedName() string {
	if e.namespace == "" {
		return e.name
	}
	return "{" + e.namespace + "}" + e.name
}

// PerformIn resolves the handler for e from env and executes it.
func (e *Element) PerformIn(env *Environment) error {
	h, err := env.CreateTemplateHandler(e.namespace, e.name)
	if err != nil {
		return err
	}
	env.Logger().Debug("perform", "element", e.QualifiedName(), "location", e.loc.String(), "handler", fmt.Sprintf("%T", h))
	return Perform(h, e, env)
}

func (e *Element) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(e.name)
	for _, a := range e.attrs {
		fmt.Fprintf(&b, " %s=%q", attrName(a.Name), a.Value)
	}
	b.WriteString(">")
	return b.String()
}

func attrName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
