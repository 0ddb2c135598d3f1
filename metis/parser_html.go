package metis

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// nsContext maps namespace prefixes to URIs for one element; lookups fall through to
// the enclosing element's context. The empty prefix holds the default namespace.
type nsContext struct {
	prefixes map[string]string
	parent   *nsContext
}

func (n *nsContext) get(prefix string) (string, bool) {
	for c := n; c != nil; c = c.parent {
		if uri, ok := c.prefixes[prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

func (n *nsContext) child() *nsContext {
	return &nsContext{prefixes: map[string]string{}, parent: n}
}

// position tracks the line and column of the tokenizer by scanning raw token bytes.
type position struct {
	line, col int
}

func (p *position) advance(raw []byte) {
	for {
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			p.col += len(raw)
			return
		}
		p.line++
		p.col = 1
		raw = raw[i+1:]
	}
}

// parseHTML builds an element tree with the x/net/html tokenizer. The tokenizer does not
// understand XML namespaces, so xmlns declarations are resolved here. Names are
// lowercased by the tokenizer, and raw text elements such as <script> keep their
// content as text.
func parseHTML(r io.Reader, doc string) (*Element, error) {
	z := html.NewTokenizer(r)
	z.AllowCDATA(true)
	b := &treeBuilder{doc: doc}
	pos := position{line: 1, col: 1}
	ns := &nsContext{prefixes: map[string]string{}}
	var scopes []*nsContext
	for {
		tt := z.Next()
		line, col := pos.line, pos.col
		pos.advance(z.Raw())
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.finish()
			}
			return nil, &Error{Type: ErrParse, Message: "parse template", Location: Location{Document: doc, Line: line, Column: col}, Err: z.Err()}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			scope := ns.child()
			for _, a := range tok.Attr {
				if a.Key == "xmlns" {
					scope.prefixes[""] = a.Val
				} else if p, ok := strings.CutPrefix(a.Key, "xmlns:"); ok {
					scope.prefixes[p] = a.Val
				}
			}
			space, local := resolveName(scope, tok.Data, true)
			var attrs []xml.Attr
			for _, a := range tok.Attr {
				if a.Key == "xmlns" || strings.HasPrefix(a.Key, "xmlns:") {
					continue
				}
				aspace, alocal := resolveName(scope, a.Key, false)
				attrs = append(attrs, xml.Attr{Name: xml.Name{Space: aspace, Local: alocal}, Value: a.Val})
			}
			if err := b.start(NewElement(space, local, attrs...), line, col); err != nil {
				return nil, err
			}
			if tt == html.SelfClosingTagToken {
				if err := b.end(local); err != nil {
					return nil, err
				}
				continue
			}
			scopes = append(scopes, ns)
			ns = scope
		case html.EndTagToken:
			tok := z.Token()
			_, local, _ := strings.Cut(tok.Data, ":")
			if local == "" {
				local = tok.Data
			}
			if err := b.end(local); err != nil {
				return nil, err
			}
			if n := len(scopes); n > 0 {
				ns = scopes[n-1]
				scopes = scopes[:n-1]
			}
		case html.TextToken:
			b.text(string(z.Text()))
		}
	}
}

// resolveName splits prefix:local and maps the prefix to its URI. Unprefixed attributes
// have no namespace; unprefixed elements take the default namespace. An undeclared
// prefix is kept as the namespace, as encoding/xml does.
func resolveName(ns *nsContext, qname string, element bool) (string, string) {
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		if !element {
			return "", qname
		}
		uri, _ := ns.get("")
		return uri, qname
	}
	if uri, found := ns.get(prefix); found {
		return uri, local
	}
	return prefix, local
}
