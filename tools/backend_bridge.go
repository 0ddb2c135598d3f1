//go:build ignore

// backend_bridge parses one template with both parser backends and compares the trees.
// Run with: go run tools/backend_bridge.go --file testdata/page.xml
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atlas-foundry/metis-go/metis"
)

func main() {
	file := flag.String("file", "", "template file to parse")
	rounds := flag.Int("n", 100, "parse rounds per backend for timing")
	flag.Parse()
	if *file == "" {
		fmt.Println("missing --file")
		os.Exit(1)
	}
	body, err := os.ReadFile(*file)
	if err != nil {
		panic(err)
	}

	var trees [2]any
	for i, backend := range []metis.Backend{metis.BackendXML, metis.BackendHTML} {
		start := time.Now()
		var root *metis.Element
		for r := 0; r < *rounds; r++ {
			root, err = metis.ParseReaderWithOptions(bytes.NewReader(body), metis.ParseOptions{Backend: backend, DocumentID: *file})
			if err != nil {
				panic(fmt.Errorf("%s: %w", backend, err))
			}
		}
		fmt.Printf("%-4s %v/parse\n", backend, time.Since(start)/time.Duration(*rounds))
		trees[i] = toJSON(root)
	}

	if diff := diffJSON(trees[0], trees[1]); diff != "" {
		fmt.Println("DIFF:\n", diff)
		os.Exit(1)
	}
	fmt.Println("OK: backends produce the same tree")
}

// toJSON converts an element tree to plain maps with trimmed text and positions.
func toJSON(el *metis.Element) any {
	attrs := map[string]string{}
	for _, a := range el.Attributes() {
		key := a.Name.Local
		if a.Name.Space != "" {
			key = a.Name.Space + ":" + key
		}
		attrs[key] = a.Value
	}
	children := make([]any, 0, len(el.ChildNodes()))
	for _, c := range el.ChildNodes() {
		children = append(children, toJSON(c))
	}
	return map[string]any{
		"name":     el.QualifiedName(),
		"line":     el.Location().Line,
		"attrs":    attrs,
		"text":     strings.Join(strings.Fields(el.Text()), " "),
		"children": children,
	}
}

func diffJSON(a, b any) string {
	aj, _ := json.MarshalIndent(a, "", "  ")
	bj, _ := json.MarshalIndent(b, "", "  ")
	if bytes.Equal(aj, bj) {
		return ""
	}
	return fmt.Sprintf("xml:\n%s\nhtml:\n%s\n", aj, bj)
}
