package parser

import (
	"strings"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/knitjerr"
)

const codeFenceOpen = "```python"
const codeFenceClose = "```"

// parseMarkdown scans markdown-mode text left to right: a fence opened
// by "```python" at line start and closed by "```" at line
// start becomes a CodeCell; HTML comments pass through into the prose
// buffer rather than acting as cell boundaries (so a comment spanning a
// fence-like line cannot be mistaken for one); everything else
// accumulates into a text buffer flushed to a TextCell at each fence
// boundary and at end of input.
func parseMarkdown(text string) ([]cell.Cell, error) {
	var cells []cell.Cell
	var buf strings.Builder
	atLineStart := true

	flush := func() {
		content := strings.TrimRight(buf.String(), "\n")
		buf.Reset()
		if strings.TrimSpace(content) == "" {
			return
		}
		cells = append(cells, cell.NewTextCell(content))
	}

	for len(text) > 0 {
		if atLineStart && strings.HasPrefix(text, codeFenceOpen) {
			flush()
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				return nil, knitjerr.New(knitjerr.KindParsing, "unclosed code fence")
			}
			text = text[nl+1:]
			close := findLineStart(text, codeFenceClose)
			if close < 0 {
				return nil, knitjerr.New(knitjerr.KindParsing, "unclosed code fence")
			}
			code := strings.TrimSuffix(text[:close], "\n")
			cells = append(cells, cell.NewCodeCell(code))
			rest := text[close+len(codeFenceClose):]
			rest = strings.TrimPrefix(rest, "\r")
			text = strings.TrimPrefix(rest, "\n")
			atLineStart = true
			continue
		}
		if strings.HasPrefix(text, "<!--") {
			end := strings.Index(text, "-->")
			if end < 0 {
				return nil, knitjerr.New(knitjerr.KindParsing, "unclosed HTML comment")
			}
			comment := text[:end+len("-->")]
			buf.WriteString(comment)
			text = text[len(comment):]
			atLineStart = false
			continue
		}
		c := text[0]
		buf.WriteByte(c)
		text = text[1:]
		atLineStart = c == '\n'
	}
	flush()
	return cells, nil
}

// findLineStart finds the first occurrence of marker that begins a line
// (index 0 or immediately after a '\n'), returning -1 if none.
func findLineStart(text, marker string) int {
	offset := 0
	for {
		idx := strings.Index(text[offset:], marker)
		if idx < 0 {
			return -1
		}
		pos := offset + idx
		if pos == 0 || text[pos-1] == '\n' {
			return pos
		}
		offset = pos + 1
	}
}
