// Package render implements the pure rendering functions that turn a
// Document into HTML: per-cell HTML (MIME-selection, memoized on a
// cell's generation counter), and full-page HTML assembly. Cell HTML
// structure mirrors _examples/original_source/knitj/Cell.py's _to_html
// (pygments-highlighted code + MIME-selected output region, wrapped in a
// classed div), replaced here with goldmark (markdown) and chroma
// (highlight) per DESIGN.md.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/knitj/knitj/cell"
)

var gfm = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
)

// markdown converts markdown text to HTML, allowing raw HTML (including
// the comments the parser passes through verbatim) to survive, matching
// the original misaka-based renderer's behavior.
func markdown(text string) string {
	var buf bytes.Buffer
	if err := gfm.Convert([]byte(text), &buf); err != nil {
		return html.EscapeString(text)
	}
	return buf.String()
}

// highlight syntax-highlights code for the given language (default
// "python", matching the original's hard-coded PythonLexer).
func highlight(code, language string) string {
	if language == "" {
		language = "python"
	}
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, code, language, "html", "github"); err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>"
	}
	return buf.String()
}

// Renderer produces HTML for cells and the full page; it memoizes
// per-cell output keyed on CodeCell.Generation(), so any state-changing
// mutation on a cell invalidates its cached HTML.
type Renderer struct {
	language string

	mu   sync.Mutex
	memo map[cell.Hash]memoEntry
}

type memoEntry struct {
	generation int
	html       string
}

// New builds a Renderer that highlights code in the given language. The
// coordinator always passes "python"; the frontmatter is not consulted.
func New(language string) *Renderer {
	return &Renderer{language: language, memo: map[cell.Hash]memoEntry{}}
}

// CellHTML renders one cell's HTML, dispatching on its concrete type.
func (r *Renderer) CellHTML(c cell.Cell) string {
	switch v := c.(type) {
	case *cell.TextCell:
		return fmt.Sprintf(`<div class="%s text-cell">%s</div>`, v.Hash().String(), markdown(v.Content))
	case *cell.CodeCell:
		return r.codeCellHTML(v)
	default:
		return ""
	}
}

func (r *Renderer) codeCellHTML(c *cell.CodeCell) string {
	gen := c.Generation()
	r.mu.Lock()
	if entry, ok := r.memo[c.Hash()]; ok && entry.generation == gen {
		r.mu.Unlock()
		return entry.html
	}
	r.mu.Unlock()

	out := r.renderCodeCell(c)

	r.mu.Lock()
	r.memo[c.Hash()] = memoEntry{generation: gen, html: out}
	r.mu.Unlock()
	return out
}

func (r *Renderer) renderCodeCell(c *cell.CodeCell) string {
	if c.IsTemplate() {
		return r.renderTemplateCell(c)
	}

	codeHTML := highlight(c.Code, r.language)
	output := selectOutput(c.Output())
	if stream := c.Stream(); stream != "" {
		output = "<pre>" + html.EscapeString(stream) + "</pre>" + output
	}
	if errHTML, has := c.Error(); has {
		output = errHTML + output
	}

	content := `<div class="code">` + codeHTML + `</div><div class="output">` + output + `</div>`
	classes := cellClasses(c)
	return fmt.Sprintf(`<div class="%s">%s</div>`, strings.Join(classes, " "), content)
}

// renderTemplateCell replaces the usual code+output pane with the
// markdown-rendered template text: the emitted HTML for a template cell
// shows the rendered template in place of its code and raw output.
func (r *Renderer) renderTemplateCell(c *cell.CodeCell) string {
	rendered := c.Stream()
	if out := c.Output(); out != nil {
		if plain, ok := out[cell.MIMEPlain]; ok {
			rendered = plain
		}
	}
	classes := cellClasses(c)
	content := `<div class="output">` + markdown(rendered) + `</div>`
	return fmt.Sprintf(`<div class="%s">%s</div>`, strings.Join(classes, " "), content)
}

func cellClasses(c *cell.CodeCell) []string {
	classes := []string{c.Hash().String(), "code-cell"}
	classes = append(classes, c.Flags()...)
	classes = append(classes, c.RuntimeFlags()...)
	return classes
}

// selectOutput applies the MIME selection order: svg, png, html, plain
// text (first match wins).
func selectOutput(output map[cell.MIME]string) string {
	if output == nil {
		return ""
	}
	if svg, ok := output[cell.MIMESVG]; ok {
		return stripSVGPrefix(svg)
	}
	if png, ok := output[cell.MIMEPNG]; ok {
		return `<img src="data:image/png;base64,` + base64Clean(png) + `">`
	}
	if htm, ok := output[cell.MIMEHTML]; ok {
		return htm
	}
	if plain, ok := output[cell.MIMEPlain]; ok {
		return "<pre>" + html.EscapeString(plain) + "</pre>"
	}
	return ""
}

// stripSVGPrefix drops any leading preamble before "<svg".
func stripSVGPrefix(svg string) string {
	if idx := strings.Index(svg, "<svg"); idx > 0 {
		return svg[idx:]
	}
	return svg
}

// base64Clean re-encodes already-base64 PNG payloads to normalize
// embedded whitespace some kernels insert into long base64 strings.
func base64Clean(b64 string) string {
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(b64), ""))
	if err != nil {
		return b64
	}
	return base64.StdEncoding.EncodeToString(decoded)
}
