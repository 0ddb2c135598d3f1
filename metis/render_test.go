package metis

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRenderTextFormats(t *testing.T) {
	var md bytes.Buffer
	if err := RenderText(&md, "# Title\n\n- one\n- two\n", FormatMarkdown); err != nil {
		t.Fatalf("markdown: %v", err)
	}
	if !strings.Contains(md.String(), `<h1 id="title">Title</h1>`) || !strings.Contains(md.String(), "<li>one</li>") {
		t.Fatalf("markdown output = %q", md.String())
	}

	var org bytes.Buffer
	if err := RenderText(&org, "* Heading\nsome /emphasis/\n", FormatOrg); err != nil {
		t.Fatalf("org: %v", err)
	}
	if !strings.Contains(org.String(), "Heading") || !strings.Contains(org.String(), "<em>emphasis</em>") {
		t.Fatalf("org output = %q", org.String())
	}

	if err := RenderText(&bytes.Buffer{}, "x", "rst"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestMarkdownHandlerInterpolatesAndDedents(t *testing.T) {
	src := `<template>
  <markdown>
    ## ${title}

    | a | b |
    |---|---|
    | ${n} | ${n * 2} |
  </markdown>
</template>`
	res, err := runTemplate(t, src, RunOptions{Variables: map[string]any{"title": "Report", "n": 2}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.out, `<h2 id="report">Report</h2>`) {
		t.Fatalf("heading missing: %q", res.out)
	}
	if !strings.Contains(res.out, "<td>2</td>") || !strings.Contains(res.out, "<td>4</td>") {
		t.Fatalf("table missing: %q", res.out)
	}
}

func TestDedent(t *testing.T) {
	got := dedent("\n    a\n      b\n\n    c\n  ")
	if got != "a\n  b\n\nc\n" {
		t.Fatalf("dedent = %q", got)
	}
}
