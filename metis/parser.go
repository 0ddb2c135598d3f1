package metis

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Backend selects the tokenizer used to build element trees. Both backends produce the
// same tree for well-formed templates with lowercase names; they differ in throughput.
type Backend string

const (
	BackendXML  Backend = "xml"
	BackendHTML Backend = "html"
)

// ParseOptions controls parsing.
type ParseOptions struct {
	// Backend defaults to BackendXML.
	Backend Backend
	// DocumentID is recorded in every element's Location.
	DocumentID string
}

// ParseString parses a template document from a string with the XML backend.
func ParseString(body string) (*Element, error) {
	return ParseReaderWithOptions(strings.NewReader(body), ParseOptions{})
}

// ParseReader parses a template document from r with the XML backend.
func ParseReader(r io.Reader) (*Element, error) {
	return ParseReaderWithOptions(r, ParseOptions{})
}

// ParseFile parses the template at path; the path becomes the document id.
func ParseFile(path string, backend Backend) (*Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseReaderWithOptions(f, ParseOptions{Backend: backend, DocumentID: path})
}

// ParseReaderWithOptions parses a template document from r.
func ParseReaderWithOptions(r io.Reader, opts ParseOptions) (*Element, error) {
	switch opts.Backend {
	case BackendXML, "":
		return parseXML(r, opts.DocumentID)
	case BackendHTML:
		return parseHTML(r, opts.DocumentID)
	default:
		return nil, &Error{Type: ErrParse, Message: fmt.Sprintf("unknown parser backend %q", opts.Backend)}
	}
}

// treeBuilder assembles elements from start/end/text events shared by both backends.
type treeBuilder struct {
	doc   string
	root  *Element
	stack []*Element
}

func (b *treeBuilder) start(el *Element, line, col int) error {
	el.SetLocation(Location{Document: b.doc, Line: line, Column: col})
	if len(b.stack) == 0 {
		if b.root != nil {
			return &Error{Type: ErrParse, Message: fmt.Sprintf("second root element <%s>", el.Name()), Location: el.Location()}
		}
		b.root = el
	} else {
		b.stack[len(b.stack)-1].AppendChild(el)
	}
	b.stack = append(b.stack, el)
	return nil
}

func (b *treeBuilder) end(name string) error {
	if len(b.stack) == 0 {
		return &Error{Type: ErrParse, Message: fmt.Sprintf("unexpected </%s>", name), Location: Location{Document: b.doc}}
	}
	top := b.stack[len(b.stack)-1]
	if name != "" && top.Name() != name {
		return &Error{Type: ErrParse, Message: fmt.Sprintf("</%s> closes <%s>", name, top.Name()), Location: top.Location()}
	}
	b.stack = b.stack[:len(b.stack)-1]
	return nil
}

func (b *treeBuilder) text(s string) {
	if len(b.stack) > 0 {
		b.stack[len(b.stack)-1].AppendText(s)
	}
}

func (b *treeBuilder) finish() (*Element, error) {
	if len(b.stack) > 0 {
		top := b.stack[len(b.stack)-1]
		return nil, &Error{Type: ErrParse, Message: fmt.Sprintf("unclosed <%s>", top.Name()), Location: top.Location()}
	}
	if b.root == nil {
		return nil, &Error{Type: ErrParse, Message: "document has no root element", Location: Location{Document: b.doc}}
	}
	return b.root, nil
}

func parseXML(r io.Reader, doc string) (*Element, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	b := &treeBuilder{doc: doc}
	for {
		line, col := dec.InputPos()
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.finish()
			}
			return nil, wrapXMLError(err, doc)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := NewElement(t.Name.Space, t.Name.Local, withoutNamespaceDecls(t.Attr)...)
			if err := b.start(el, line, col); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if err := b.end(t.Name.Local); err != nil {
				return nil, err
			}
		case xml.CharData:
			b.text(string(t))
		}
	}
}

func withoutNamespaceDecls(attrs []xml.Attr) []xml.Attr {
	var out []xml.Attr
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func wrapXMLError(err error, doc string) error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return &Error{Type: ErrParse, Message: "parse template", Location: Location{Document: doc, Line: se.Line}, Err: err}
	}
	return &Error{Type: ErrParse, Message: "parse template", Location: Location{Document: doc}, Err: err}
}
