// ABOUTME: Markdown to terminal text renderer for agent replies
// ABOUTME: Walks the goldmark AST and styles headings, emphasis, code, lists, quotes and links with fatih/color

package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Options configures a Renderer.
type Options struct {
	// Color enables ANSI styling. When false output is plain text.
	Color bool
}

// Renderer turns markdown into text for a terminal. It is safe for
// concurrent use.
type Renderer struct {
	md goldmark.Markdown

	heading *color.Color
	bold    *color.Color
	italic  *color.Color
	strike  *color.Color
	code    *color.Color
	block   *color.Color
	link    *color.Color
	quote   *color.Color
	rule    *color.Color
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	r := &Renderer{
		md: goldmark.New(goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
		)),
		heading: color.New(color.Bold, color.Underline),
		bold:    color.New(color.Bold),
		italic:  color.New(color.Italic),
		strike:  color.New(color.CrossedOut),
		code:    color.New(color.FgCyan),
		block:   color.New(color.FgYellow),
		link:    color.New(color.FgBlue, color.Underline),
		quote:   color.New(color.Faint),
		rule:    color.New(color.Faint),
	}

	for _, c := range []*color.Color{r.heading, r.bold, r.italic, r.strike, r.code, r.block, r.link, r.quote, r.rule} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Render converts markdown to terminal text without a trailing newline.
func (r *Renderer) Render(markdown string) string {
	src := []byte(markdown)
	doc := r.md.Parser().Parse(text.NewReader(src))
	return strings.TrimRight(r.blocks(doc, src, "\n\n"), "\n")
}

// blocks renders the block children of parent joined by sep.
func (r *Renderer) blocks(parent ast.Node, src []byte, sep string) string {
	var parts []string
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if s := r.renderBlock(n, src); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func (r *Renderer) renderBlock(n ast.Node, src []byte) string {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return r.inlines(n, src)

	case *ast.Heading:
		return r.heading.Sprint(r.inlines(n, src))

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return r.codeLines(n, src)

	case *ast.HTMLBlock:
		return strings.TrimRight(rawLines(n, src), "\n")

	case *ast.Blockquote:
		inner := r.blocks(n, src, "\n\n")
		lines := strings.Split(inner, "\n")
		for i, line := range lines {
			lines[i] = r.quote.Sprint("│ ") + line
		}
		return strings.Join(lines, "\n")

	case *ast.List:
		return r.list(n, src)

	case *ast.ThematicBreak:
		return r.rule.Sprint(strings.Repeat("─", 24))

	default:
		if n.Type() == ast.TypeBlock && n.HasChildren() && n.FirstChild().Type() == ast.TypeBlock {
			return r.blocks(n, src, "\n\n")
		}
		return r.inlines(n, src)
	}
}

func (r *Renderer) list(l *ast.List, src []byte) string {
	sep := "\n"
	if !l.IsTight {
		sep = "\n\n"
	}

	num := l.Start
	var items []string
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		items = append(items, hangingIndent(marker, r.blocks(item, src, sep)))
	}
	return strings.Join(items, sep)
}

func (r *Renderer) codeLines(n ast.Node, src []byte) string {
	lines := strings.Split(strings.TrimRight(rawLines(n, src), "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + r.block.Sprint(line)
	}
	return strings.Join(lines, "\n")
}

// inlines renders the inline children of parent.
func (r *Renderer) inlines(parent ast.Node, src []byte) string {
	var b strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		r.inline(&b, n, src)
	}
	return b.String()
}

func (r *Renderer) inline(b *strings.Builder, n ast.Node, src []byte) {
	switch n := n.(type) {
	case *ast.Text:
		b.Write(n.Segment.Value(src))
		switch {
		case n.HardLineBreak():
			b.WriteByte('\n')
		case n.SoftLineBreak():
			b.WriteByte(' ')
		}

	case *ast.String:
		b.Write(n.Value)

	case *ast.CodeSpan:
		b.WriteString(r.code.Sprint(r.inlines(n, src)))

	case *ast.Emphasis:
		inner := r.inlines(n, src)
		if n.Level >= 2 {
			b.WriteString(r.bold.Sprint(inner))
		} else {
			b.WriteString(r.italic.Sprint(inner))
		}

	case *east.Strikethrough:
		b.WriteString(r.strike.Sprint(r.inlines(n, src)))

	case *ast.Link:
		inner := r.inlines(n, src)
		dest := string(n.Destination)
		b.WriteString(inner)
		if dest != "" && dest != inner {
			b.WriteString(" (" + r.link.Sprint(dest) + ")")
		}

	case *ast.AutoLink:
		b.WriteString(r.link.Sprint(string(n.URL(src))))

	case *ast.Image:
		b.WriteString("[image: " + r.inlines(n, src) + "]")

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(src))
		}

	default:
		b.WriteString(r.inlines(n, src))
	}
}

// rawLines concatenates the source lines of a block node.
func rawLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

// hangingIndent prefixes the first line of body with marker and indents the
// rest to line up under it.
func hangingIndent(marker, body string) string {
	pad := strings.Repeat(" ", utf8.RuneCountInString(marker))
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = marker + line
		case line != "":
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
