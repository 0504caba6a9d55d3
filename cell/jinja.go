package cell

import "fmt"

// NewTemplateCell desugars a template cell (produced by a `j<content>`
// prose line in code-mode, see parser package) into a regular CodeCell
// whose body prints the rendered template. The kernel adapter stays
// oblivious to templates entirely: it just executes a Python
// print(render_template(...)) call like any other code cell.
//
// The emitted cell always carries the "hide" author flag. Template cells
// render their own markdown-wrapped stream output in place of code+output
// (see render package), so the raw code pane is never shown.
func NewTemplateCell(template string) *CodeCell {
	code := fmt.Sprintf("#::hide\nprint(render_template(%q, locals()))", template)
	c := NewCodeCell(code)
	c.isTemplate = true
	c.templateSrc = template
	return c
}

// IsTemplate reports whether this CodeCell was produced by template
// desugaring; the renderer uses this to replace stream output with
// markdown-rendered template text instead of the usual code+output pane.
func (c *CodeCell) IsTemplate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isTemplate
}

// TemplateSource returns the original (un-desugared) template text.
func (c *CodeCell) TemplateSource() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.templateSrc
}
