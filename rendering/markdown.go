package rendering

import (
	"bytes"
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
	"golang.org/x/sync/semaphore"
)

// Renderer turns README Markdown into HTML with highlighted code blocks.
// At most `concurrency` renders run at the same time; others wait.
type Renderer struct {
	markdown goldmark.Markdown
	slots    *semaphore.Weighted
}

// NewRenderer uses the named chroma style, falling back to chroma's default
// for unknown names.
func NewRenderer(theme string, concurrency int64) *Renderer {
	if concurrency <= 0 {
		concurrency = 1
	}
	code := &codeBlockRenderer{
		style:     styles.Get(theme),
		formatter: chromahtml.New(chromahtml.TabWidth(4)),
	}
	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				renderer.WithNodeRenderers(util.Prioritized(code, 100)),
			),
		),
		slots: semaphore.NewWeighted(concurrency),
	}
}

// Render converts source to HTML. Raw HTML in the source is omitted.
func (r *Renderer) Render(ctx context.Context, source string) ([]byte, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "waiting for a render slot")
	}
	defer r.slots.Release(1)

	var out bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &out); err != nil {
		return nil, errors.Wrap(err, "rendering markdown")
	}
	return out.Bytes(), nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// PlainText reduces rendered HTML to its whitespace-normalised text, for
// indexing a stored README.
func PlainText(rendered []byte) string {
	text := html.UnescapeString(tagPattern.ReplaceAllString(string(rendered), " "))
	return strings.Join(strings.Fields(text), " ")
}

type codeBlockRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	block := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		code.Write(line.Value(source))
	}

	lexer := lexers.Get(language(block.Language(source)))
	if lexer == nil {
		lexer = lexers.Fallback
	}
	var highlighted bytes.Buffer
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code.String())
	if err == nil {
		err = r.formatter.Format(&highlighted, r.style, iterator)
	}
	if err != nil {
		_, _ = w.WriteString("<pre><code>")
		_, _ = w.Write(util.EscapeHTML(code.Bytes()))
		_, _ = w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.Write(highlighted.Bytes())
	return ast.WalkSkipChildren, nil
}

// language keeps the first token of an info string such as `rust,no_run`.
func language(info []byte) string {
	lang := string(info)
	if i := strings.IndexAny(lang, ", "); i >= 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}
