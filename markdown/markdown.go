// Package markdown converts the CommonMark produced by language models into
// Telegram MarkdownV2.
package markdown

import (
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/meikuraledutech/chatbridge"
)

// Symbols prefixed to level-1 headings and links.
const (
	HeadingSymbol = "📌"
	LinkSymbol    = "🔗"
)

// Converter is Convert as a chatbridge.Converter.
var Converter chatbridge.Converter = chatbridge.ConverterFunc(Convert)

var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// Convert renders input as MarkdownV2. Every character outside an entity
// that MarkdownV2 reserves is escaped, so the result is always accepted by
// the Bot API parser.
func Convert(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := getParser().Parser().Parse(text.NewReader(source))

	r := &renderer{source: source}
	r.renderChildren(document)
	return strings.TrimRight(r.out.String(), "\n")
}

const specialChars = "_*[]()~`>#+-=|{}.!\\"

// Escape backslash-escapes every MarkdownV2 reserved character in s.
func Escape(s string) string {
	return escapeSet(s, specialChars)
}

func escapeCode(s string) string {
	return escapeSet(s, "`\\")
}

func escapeURL(s string) string {
	return escapeSet(s, ")\\")
}

func escapeSet(s, set string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(set, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

type renderer struct {
	source []byte
	out    strings.Builder

	// Style depth counters. An entity is only opened at depth zero since
	// MarkdownV2 cannot nest an entity inside itself.
	bold   int
	italic int
	strike int

	lists []listState
}

type listState struct {
	ordered bool
	counter int
	tight   bool
}

func (r *renderer) renderChildren(node ast.Node) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		_ = ast.Walk(child, r.walk)
	}
}

// sub renders node's children with a fresh output buffer and the current
// style state, returning what was written.
func (r *renderer) sub(node ast.Node) string {
	saved := r.out.String()
	r.out.Reset()
	r.renderChildren(node)
	result := r.out.String()
	r.out.Reset()
	r.out.WriteString(saved)
	return result
}

func (r *renderer) trailingNewlines() int {
	s := r.out.String()
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\n'; i-- {
		n++
	}
	return n
}

func (r *renderer) endBlock() {
	if r.out.Len() == 0 {
		return
	}
	want := 2
	if len(r.lists) > 0 && r.lists[len(r.lists)-1].tight {
		want = 1
	}
	for n := r.trailingNewlines(); n < want; n++ {
		r.out.WriteByte('\n')
	}
}

func (r *renderer) ensureNewline() {
	if r.out.Len() > 0 && r.trailingNewlines() == 0 {
		r.out.WriteByte('\n')
	}
}

func (r *renderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if !entering {
			r.endBlock()
		}

	case *ast.Heading:
		if entering {
			r.renderHeading(n)
			return ast.WalkSkipChildren, nil
		}

	case *ast.FencedCodeBlock:
		if entering {
			r.renderCodeBlock(n.Lines(), string(n.Language(r.source)))
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			r.renderCodeBlock(n.Lines(), "")
			return ast.WalkSkipChildren, nil
		}

	case *ast.Blockquote:
		if entering {
			r.renderBlockquote(n)
			return ast.WalkSkipChildren, nil
		}

	case *ast.List:
		if entering {
			r.ensureNewline()
			r.lists = append(r.lists, listState{ordered: n.IsOrdered(), counter: n.Start, tight: n.IsTight})
		} else {
			r.lists = r.lists[:len(r.lists)-1]
			r.endBlock()
		}

	case *ast.ListItem:
		if entering {
			r.enterListItem()
		} else {
			r.ensureNewline()
		}

	case *ast.ThematicBreak:
		if entering {
			r.out.WriteString("——————")
			r.endBlock()
		}

	case *ast.HTMLBlock:
		if entering {
			r.renderLines(n.Lines(), Escape)
			r.endBlock()
			return ast.WalkSkipChildren, nil
		}

	case *ast.Text:
		if entering {
			r.out.WriteString(Escape(string(n.Segment.Value(r.source))))
			if n.HardLineBreak() || n.SoftLineBreak() {
				r.out.WriteByte('\n')
			}
		}

	case *ast.String:
		if entering {
			r.out.WriteString(Escape(string(n.Value)))
		}

	case *ast.Emphasis:
		if n.Level >= 2 {
			r.toggle(&r.bold, "*", entering)
		} else {
			r.toggle(&r.italic, "_", entering)
		}

	case *ast.CodeSpan:
		if entering {
			var code strings.Builder
			for child := n.FirstChild(); child != nil; child = child.NextSibling() {
				if t, ok := child.(*ast.Text); ok {
					code.Write(t.Segment.Value(r.source))
				}
			}
			r.out.WriteString("`" + escapeCode(code.String()) + "`")
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if entering {
			r.renderLink(r.sub(n), string(n.Destination))
			return ast.WalkSkipChildren, nil
		}

	case *ast.AutoLink:
		if entering {
			url := string(n.URL(r.source))
			r.renderLink(Escape(string(n.Label(r.source))), url)
			return ast.WalkSkipChildren, nil
		}

	case *ast.Image:
		if entering {
			r.out.WriteString("[" + r.sub(n) + "](" + escapeURL(string(n.Destination)) + ")")
			return ast.WalkSkipChildren, nil
		}

	case *ast.RawHTML:
		if entering {
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				r.out.WriteString(Escape(string(seg.Value(r.source))))
			}
			return ast.WalkSkipChildren, nil
		}

	case *extast.Strikethrough:
		r.toggle(&r.strike, "~", entering)

	case *extast.TaskCheckBox:
		if entering {
			if n.IsChecked {
				r.out.WriteString("☑ ")
			} else {
				r.out.WriteString("☐ ")
			}
		}

	case *extast.Table:
		if entering {
			r.renderTable(n)
			return ast.WalkSkipChildren, nil
		}
	}

	return ast.WalkContinue, nil
}

// toggle opens or closes an entity marker when depth crosses zero.
func (r *renderer) toggle(depth *int, marker string, entering bool) {
	if entering {
		if *depth == 0 {
			r.out.WriteString(marker)
		}
		*depth++
		return
	}
	*depth--
	if *depth == 0 {
		r.out.WriteString(marker)
	}
}

func (r *renderer) renderHeading(h *ast.Heading) {
	r.ensureNewline()
	if h.Level == 1 {
		r.out.WriteString(HeadingSymbol + " ")
	}
	r.bold++
	content := r.sub(h)
	r.bold--
	if r.bold == 0 {
		content = "*" + content + "*"
	}
	r.out.WriteString(content)
	r.endBlock()
}

func (r *renderer) renderCodeBlock(lines *text.Segments, language string) {
	r.ensureNewline()
	r.out.WriteString("```" + language + "\n")
	r.renderLines(lines, escapeCode)
	r.ensureNewline()
	r.out.WriteString("```")
	r.endBlock()
}

func (r *renderer) renderLines(lines *text.Segments, escape func(string) string) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		r.out.WriteString(escape(string(seg.Value(r.source))))
	}
}

func (r *renderer) renderBlockquote(q *ast.Blockquote) {
	r.ensureNewline()
	saved := r.lists
	r.lists = nil
	content := strings.TrimRight(r.sub(q), "\n")
	r.lists = saved

	for i, line := range strings.Split(content, "\n") {
		if i > 0 {
			r.out.WriteByte('\n')
		}
		r.out.WriteString(">" + line)
	}
	r.endBlock()
}

func (r *renderer) enterListItem() {
	r.ensureNewline()
	depth := len(r.lists)
	state := &r.lists[depth-1]
	r.out.WriteString(strings.Repeat("  ", depth-1))
	if state.ordered {
		r.out.WriteString(strconv.Itoa(state.counter) + "\\. ")
		state.counter++
	} else {
		r.out.WriteString("• ")
	}
}

func (r *renderer) renderLink(label, url string) {
	if label == "" {
		label = Escape(url)
	}
	r.out.WriteString(LinkSymbol + " [" + label + "](" + escapeURL(url) + ")")
}

func (r *renderer) renderTable(table *extast.Table) {
	r.ensureNewline()
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*extast.TableHeader)
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if header {
				r.bold++
			}
			content := strings.TrimSpace(r.sub(cell))
			if header {
				r.bold--
				if content != "" && r.bold == 0 {
					content = "*" + content + "*"
				}
			}
			cells = append(cells, content)
		}
		r.out.WriteString(strings.Join(cells, " \\| "))
		r.out.WriteByte('\n')
	}
	r.endBlock()
}
