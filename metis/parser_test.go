package metis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `<template xmlns:m="urn:metis:core" xmlns:app="urn:app">
  <m:set name="title" value='"Hello"'/>
  <app:card id="c1" app:kind="wide">
    <m:out value="title"/>
    Some text
  </app:card>
  <page/>
</template>`

// dumpTree renders a tree with names, namespaces, attributes and trimmed text.
func dumpTree(el *Element) string {
	var b strings.Builder
	var walk func(*Element, int)
	walk = func(e *Element, depth int) {
		fmt.Fprintf(&b, "%s%s", strings.Repeat("  ", depth), e.QualifiedName())
		for _, a := range e.Attributes() {
			fmt.Fprintf(&b, " %s=%q", attrName(a.Name), a.Value)
		}
		if txt := strings.Join(strings.Fields(e.Text()), " "); txt != "" {
			fmt.Fprintf(&b, " text=%q", txt)
		}
		b.WriteString("\n")
		for _, c := range e.ChildNodes() {
			walk(c, depth+1)
		}
	}
	walk(el, 0)
	return b.String()
}

func TestParseBuildsQualifiedTree(t *testing.T) {
	root, err := ParseString(sample)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	kids := root.ChildNodes()
	if len(kids) != 3 {
		t.Fatalf("expected 3 children, got %d", len(kids))
	}
	if kids[0].Namespace() != CoreNamespace || kids[0].Name() != "set" {
		t.Fatalf("first child = %s", kids[0].QualifiedName())
	}
	card := kids[1]
	if card.Namespace() != "urn:app" || card.Name() != "card" {
		t.Fatalf("card = %s", card.QualifiedName())
	}
	if len(card.Attributes()) != 2 {
		t.Fatalf("xmlns declarations must not be attributes: %v", card.Attributes())
	}
	if kind, ok := card.Attribute("kind"); !ok || kind != "wide" {
		t.Fatalf("kind = %q", kind)
	}
	if !strings.Contains(card.Text(), "Some text") {
		t.Fatalf("card text = %q", card.Text())
	}
	if kids[2].Namespace() != "" {
		t.Fatalf("page should be unqualified, got %q", kids[2].Namespace())
	}
	if card.PredecessorNode() != kids[0] || card.SuccessorNode() != kids[2] {
		t.Fatalf("siblings not linked")
	}
}

func TestParseRecordsLocations(t *testing.T) {
	root, err := ParseReaderWithOptions(strings.NewReader(sample), ParseOptions{DocumentID: "sample.xml"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	card := root.ChildNodes()[1]
	if card.Location() != (Location{Document: "sample.xml", Line: 3, Column: 3}) {
		t.Fatalf("card location = %v", card.Location())
	}
	out := card.ChildNodes()[0]
	if out.Location().Line != 4 {
		t.Fatalf("out line = %d", out.Location().Line)
	}
}

func TestBackendsProduceEquivalentTrees(t *testing.T) {
	xmlRoot, err := ParseReaderWithOptions(strings.NewReader(sample), ParseOptions{Backend: BackendXML})
	if err != nil {
		t.Fatalf("xml parse: %v", err)
	}
	htmlRoot, err := ParseReaderWithOptions(strings.NewReader(sample), ParseOptions{Backend: BackendHTML})
	if err != nil {
		t.Fatalf("html parse: %v", err)
	}
	if got, want := dumpTree(htmlRoot), dumpTree(xmlRoot); got != want {
		t.Fatalf("trees differ\nhtml:\n%s\nxml:\n%s", got, want)
	}
	xmlCard, htmlCard := xmlRoot.ChildNodes()[1], htmlRoot.ChildNodes()[1]
	if xmlCard.Location().Line != htmlCard.Location().Line {
		t.Fatalf("line mismatch: xml %v html %v", xmlCard.Location(), htmlCard.Location())
	}
}

func TestBackendsExecuteTheSame(t *testing.T) {
	for _, backend := range []Backend{BackendXML, BackendHTML} {
		res, err := runTemplate(t, `<template><set name="x" value="2"/><out value="x * 21"/></template>`, RunOptions{Backend: backend})
		if err != nil {
			t.Fatalf("%s: run: %v", backend, err)
		}
		if res.out != "42" {
			t.Fatalf("%s: output = %q", backend, res.out)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       ``,
		"unclosed":    `<a><b></b>`,
		"mismatched":  `<a><b></a>`,
		"second root": `<a/><b/>`,
	}
	for name, src := range cases {
		for _, backend := range []Backend{BackendXML, BackendHTML} {
			_, err := ParseReaderWithOptions(strings.NewReader(src), ParseOptions{Backend: backend})
			if err == nil {
				t.Fatalf("%s/%s: expected error", name, backend)
			}
			if !IsType(err, ErrParse) {
				t.Fatalf("%s/%s: expected parse error, got %v", name, backend, err)
			}
		}
	}
	if _, err := ParseReaderWithOptions(strings.NewReader(`<a/>`), ParseOptions{Backend: "yaml"}); !IsType(err, ErrParse) {
		t.Fatalf("unknown backend should fail, got %v", err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.xml")
	if err := os.WriteFile(path, []byte("<doc>\n  <out value='1'/>\n</doc>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root, err := ParseFile(path, BackendHTML)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if root.Location().Document != path {
		t.Fatalf("document id = %q", root.Location().Document)
	}
	if _, err := ParseFile(filepath.Join(dir, "missing.xml"), BackendXML); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
