// Package preview renders workspace files as HTML: Markdown through goldmark with GFM
// extensions, everything else that is text through chroma syntax highlighting.
package preview

import (
	"bytes"
	"io"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// Kinds of rendered output.
const (
	KindMarkdown = "markdown"
	KindCode     = "code"
	KindBinary   = "binary"
)

const styleName = "monokai"

var (
	anchorStrip  = regexp.MustCompile(`[^a-z0-9\-\p{Han}\p{Hiragana}\p{Katakana}]`)
	anchorHyphen = regexp.MustCompile(`-+`)
)

// TOCItem represents a table of contents entry
type TOCItem struct {
	Level  int    `json:"level"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

// Result is a rendered file.
type Result struct {
	Kind     string    `json:"kind"`
	Language string    `json:"language,omitempty"`
	Title    string    `json:"title,omitempty"`
	HTML     string    `json:"html,omitempty"`
	TOC      []TOCItem `json:"toc,omitempty"`
}

// Renderer renders files by name. It is safe for concurrent use.
type Renderer struct {
	md        goldmark.Markdown
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

// NewRenderer creates a renderer with the Markdown extensions and code style fxv uses.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle(styleName),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	return &Renderer{
		md:        md,
		formatter: chromahtml.New(chromahtml.WithClasses(true), chromahtml.WithLineNumbers(true)),
		style:     styles.Get(styleName),
	}
}

// IsMarkdown reports whether name has a Markdown extension.
func IsMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Render renders source as the file called name.
func (r *Renderer) Render(name string, source []byte) (*Result, error) {
	if !utf8.Valid(source) || bytes.IndexByte(source, 0) >= 0 {
		return &Result{Kind: KindBinary}, nil
	}
	if IsMarkdown(name) {
		return r.renderMarkdown(source)
	}
	return r.renderCode(name, source)
}

func (r *Renderer) renderMarkdown(source []byte) (*Result, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, err
	}

	toc := r.extractTOC(source)
	title := ""
	if len(toc) > 0 {
		title = toc[0].Title
	}
	return &Result{Kind: KindMarkdown, Language: "markdown", Title: title, HTML: buf.String(), TOC: toc}, nil
}

func (r *Renderer) renderCode(name string, source []byte) (*Result, error) {
	lexer := lexers.Match(path.Base(name))
	if lexer == nil {
		lexer = lexers.Analyse(string(source))
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	it, err := lexer.Tokenise(nil, string(source))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, it); err != nil {
		return nil, err
	}
	return &Result{Kind: KindCode, Language: lexer.Config().Name, HTML: buf.String()}, nil
}

// WriteCSS writes the stylesheet for the highlighted output.
func (r *Renderer) WriteCSS(w io.Writer) error {
	return r.formatter.WriteCSS(w, r.style)
}

// extractTOC walks the AST to extract headings
func (r *Renderer) extractTOC(source []byte) []TOCItem {
	doc := r.md.Parser().Parse(text.NewReader(source))

	var toc []TOCItem
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title := headingText(heading, source)
			toc = append(toc, TOCItem{
				Level:  heading.Level,
				Title:  title,
				Anchor: anchor(title),
			})
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil
	}
	return toc
}

func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

// anchor creates a URL-safe anchor from heading text.
func anchor(title string) string {
	a := strings.ReplaceAll(strings.ToLower(title), " ", "-")
	a = anchorStrip.ReplaceAllString(a, "")
	a = anchorHyphen.ReplaceAllString(a, "-")
	return strings.Trim(a, "-")
}
