package parser

import (
	"strings"

	"github.com/knitj/knitj/cell"
)

const proseMarker = "::>"

// parseCode scans code-mode text: cells default to
// code; a line matching "# ?::>" opens a prose cell that runs until the
// next line not starting with "#"; inside prose, a line starting with "j"
// denotes a template cell (desugared via cell.NewTemplateCell); "# ?"
// prefixes inside prose are stripped; inside code, "#\s*::%" lines are
// rewritten to "%" (magic escape). Unclosed prose cells fail with
// ParsingError.
func parseCode(text string) ([]cell.Cell, error) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	var cells []cell.Cell
	var codeBuf strings.Builder

	flushCode := func() {
		code := strings.TrimRight(codeBuf.String(), "\n")
		codeBuf.Reset()
		if strings.TrimSpace(code) == "" {
			return
		}
		cells = append(cells, cell.NewCodeCell(code))
	}

	i, n := 0, len(lines)
	for i < n {
		line := lines[i]
		if isProseOpen(line) {
			flushCode()
			i++
			proseCells, consumed := scanProse(lines[i:])
			cells = append(cells, proseCells...)
			i += consumed
			continue
		}
		codeBuf.WriteString(rewriteMagicEscape(line))
		codeBuf.WriteString("\n")
		i++
	}
	flushCode()
	return cells, nil
}

func isProseOpen(line string) bool {
	trimmed := strings.TrimPrefix(strings.TrimRight(line, "\r"), "#")
	trimmed = strings.TrimPrefix(trimmed, " ")
	return trimmed == proseMarker
}

// scanProse consumes lines until the first line not starting with "#" (or
// end of input), returning the cells it produced (a TextCell for
// accumulated prose, interspersed CodeCells for "j"-prefixed template
// lines) and how many lines were consumed. A prose region simply ends at
// EOF if no code line follows; that is not an error.
func scanProse(lines []string) ([]cell.Cell, int) {
	var cells []cell.Cell
	var textBuf strings.Builder

	flushText := func() {
		content := strings.TrimRight(textBuf.String(), "\n")
		textBuf.Reset()
		if strings.TrimSpace(content) == "" {
			return
		}
		cells = append(cells, cell.NewTextCell(content))
	}

	consumed := 0
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimLeft(line, " "), "#") {
			break
		}
		consumed++
		stripped := stripProseHash(line)
		if strings.HasPrefix(stripped, "j") {
			flushText()
			cells = append(cells, cell.NewTemplateCell(stripped[1:]))
			continue
		}
		textBuf.WriteString(stripped)
		textBuf.WriteString("\n")
	}
	flushText()
	return cells, consumed
}

// stripProseHash removes a leading "# " or "#" from a prose line.
func stripProseHash(line string) string {
	trimmed := strings.TrimRight(line, "\r")
	trimmed = strings.TrimPrefix(trimmed, "#")
	return strings.TrimPrefix(trimmed, " ")
}

// rewriteMagicEscape rewrites a "#\s*::%" line to "%", the magic-escape
// form used to emit a literal IPython-style magic inside code-mode source.
func rewriteMagicEscape(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]
	body := strings.TrimPrefix(strings.TrimRight(trimmed, "\r"), "#")
	body = strings.TrimLeft(body, " \t")
	if strings.HasPrefix(body, "::%") {
		return indent + "%" + strings.TrimPrefix(body, "::%")
	}
	return line
}
