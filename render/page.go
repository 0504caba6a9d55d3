package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/knitj/knitj/document"
)

// pageTemplate substitutes {title, cells_html, styles, client_flag} into
// a full document, matching the structure of the original Jinja2
// index.html template.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.Styles}}</style>
</head>
<body{{if .ClientFlag}} data-live="1"{{end}}>
<div id="cells">
{{range .CellsHTML}}{{.}}
{{end}}
</div>
{{if .ClientFlag}}<script src="/static/knitj.js"></script>{{end}}
</body>
</html>
`))

type pageData struct {
	Title      string
	CellsHTML  []template.HTML
	Styles     template.CSS
	ClientFlag bool
}

// Page renders the full page HTML for doc: title from frontmatter's
// "title" key (default "knitj"), one rendered cell per hash in order, and
// a stylesheet concatenating chroma's highlighting CSS with the ANSI
// color classes ansihtml.ToHTML emits. clientFlag toggles the
// browser-side live-update script tag.
func (r *Renderer) Page(doc *document.Document, clientFlag bool) (string, error) {
	title := "knitj"
	if t, ok := doc.Frontmatter()["title"].(string); ok && t != "" {
		title = t
	}
	cells := doc.Cells()
	htmls := make([]template.HTML, len(cells))
	for i, c := range cells {
		htmls[i] = template.HTML(r.CellHTML(c)) //nolint:gosec // content originates from our own renderer, not user HTTP input
	}
	data := pageData{
		Title:      title,
		CellsHTML:  htmls,
		Styles:     template.CSS(pageStyles()),
		ClientFlag: clientFlag,
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Prologue renders everything before the per-cell HTML, for batch mode's
// streamed output: the caller writes this first, then streams each
// cell's HTML as it completes in source order, then writes Epilogue.
func (r *Renderer) Prologue(title string, clientFlag bool) string {
	var buf strings.Builder
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(template.HTMLEscapeString(title))
	buf.WriteString("</title>\n<style>")
	buf.WriteString(pageStyles())
	buf.WriteString("</style>\n</head>\n<body")
	if clientFlag {
		buf.WriteString(` data-live="1"`)
	}
	buf.WriteString(">\n<div id=\"cells\">\n")
	return buf.String()
}

// Epilogue closes what Prologue opened.
func (r *Renderer) Epilogue(clientFlag bool) string {
	var buf strings.Builder
	buf.WriteString("</div>\n")
	if clientFlag {
		buf.WriteString(`<script src="/static/knitj.js"></script>` + "\n")
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.String()
}

// pageStyles concatenates chroma's "github" style stylesheet with the
// fixed ANSI-color class rules ansihtml.ToHTML's spans reference.
func pageStyles() string {
	var buf strings.Builder
	formatter := html.New(html.WithClasses(true))
	style := styles.Get("github")
	_ = formatter.WriteCSS(&buf, style)
	buf.WriteString(ansiStyleRules)
	return buf.String()
}

const ansiStyleRules = `
.ansi-bold { font-weight: bold; }
.ansi-black { color: #000; } .ansi-red { color: #c00; } .ansi-green { color: #0a0; }
.ansi-yellow { color: #a50; } .ansi-blue { color: #00c; } .ansi-magenta { color: #a0a; }
.ansi-cyan { color: #0aa; } .ansi-white { color: #aaa; }
`
