package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gparser "github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// markdownParser extracts plain text from markdown by walking the goldmark
// AST, dropping formatting while keeping prose, code block contents, and
// link URLs. The first heading becomes the document title.
type markdownParser struct {
	md goldmark.Markdown
}

func newMarkdownParser() *markdownParser {
	return &markdownParser{
		md: goldmark.New(
			goldmark.WithParserOptions(
				gparser.WithAutoHeadingID(),
			),
		),
	}
}

func (p *markdownParser) Parse(data []byte) (Parsed, error) {
	doc := p.md.Parser().Parse(text.NewReader(data))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Blank line between blocks so paragraph boundaries survive
			// for the chunker's boundary detection.
			if n.Type() == ast.TypeBlock && buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n\n")) {
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(data))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.FencedCodeBlock:
			writeBlockLines(&buf, n, data)
		case *ast.CodeBlock:
			writeBlockLines(&buf, n, data)
		case *ast.AutoLink:
			buf.Write(t.URL(data))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Parsed{}, fmt.Errorf("walk markdown AST: %w", err)
	}

	return Parsed{
		Text:  strings.TrimSpace(buf.String()),
		Title: extractTitle(doc, data),
	}, nil
}

func writeBlockLines(buf *bytes.Buffer, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}

// extractTitle returns the first H1/H2 heading, if any.
func extractTitle(doc ast.Node, source []byte) string {
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return ""
	}
	return string(tree.Items[0].Title)
}
