package metis

import (
	"bytes"
	"errors"
	"io"
	"strings"

	goorg "github.com/niklasfasching/go-org/org"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// TextFormat enumerates markup formats element text can be rendered from.
type TextFormat string

const (
	FormatMarkdown TextFormat = "markdown"
	FormatOrg      TextFormat = "org"
)

// ErrUnsupportedFormat signals a markup format without a renderer.
var ErrUnsupportedFormat = errors.New("text format not supported")

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// RenderText renders markup text to HTML.
func RenderText(w io.Writer, body string, format TextFormat) error {
	switch format {
	case FormatMarkdown:
		return markdown.Convert([]byte(body), w)
	case FormatOrg:
		out, err := goorg.New().Parse(strings.NewReader(body), "").Write(goorg.NewHTMLWriter())
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		return ErrUnsupportedFormat
	}
}

// MarkupHandler renders the element's interpolated text from a markup format to HTML
// into the output writer.
type MarkupHandler struct {
	BaseHandler
	Format TextFormat
}

func (h MarkupHandler) Build(el *Element, env *Environment) error {
	text, err := interpolateText(el, env)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := RenderText(&buf, dedent(text), h.Format); err != nil {
		return delegationError(el, "render "+string(h.Format), err)
	}
	_, err = env.Output().Write(buf.Bytes())
	return err
}

// dedent strips the indentation shared by all non-blank lines, so markup nested inside
// an indented template keeps its meaning.
func dedent(text string) string {
	lines := strings.Split(text, "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}
