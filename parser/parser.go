// Package parser turns source text into an ordered cell list plus an
// optional frontmatter map. It mirrors the cell package's own
// hand-rolled scanning style (cell.stripModeline) rather
// than reaching for a parser-combinator library, since the scan is a
// small single-pass state machine over lines, the kind of thing
// _examples/janpfeifer-gonb/goexec/parser.go also does by hand for gonb's
// "%%"-separated cell blocks.
package parser

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/knitjerr"
)

// Format selects which source dialect Parse scans.
type Format string

const (
	Markdown Format = "markdown"
	Code     Format = "code"
)

// Result is the output of a full parse: the frontmatter map (nil if
// absent) and the ordered cell list.
type Result struct {
	Frontmatter map[string]interface{}
	Cells       []cell.Cell
}

// Parse extracts frontmatter, then scans the remainder in the dialect
// named by format.
func Parse(format Format, text string) (*Result, error) {
	fm, rest, err := extractFrontmatter(format, text)
	if err != nil {
		return nil, err
	}
	var cells []cell.Cell
	switch format {
	case Markdown:
		cells, err = parseMarkdown(rest)
	case Code:
		cells, err = parseCode(rest)
	default:
		cells, err = parseMarkdown(rest)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Frontmatter: fm, Cells: cells}, nil
}

// extractFrontmatter strips a leading `---\n...\n---\n` (markdown) or
// `# ---\n(# ...\n)*# ---\n` (code) block and YAML-decodes its interior.
func extractFrontmatter(format Format, text string) (map[string]interface{}, string, error) {
	switch format {
	case Markdown:
		return extractMarkdownFrontmatter(text)
	case Code:
		return extractCodeFrontmatter(text)
	default:
		return extractMarkdownFrontmatter(text)
	}
}

func extractMarkdownFrontmatter(text string) (map[string]interface{}, string, error) {
	if !strings.HasPrefix(text, "---\n") {
		return nil, text, nil
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if rest == "---" || strings.TrimRight(rest, "\n") == "---" {
			return map[string]interface{}{}, "", nil
		}
		return nil, "", knitjerr.New(knitjerr.KindParsing, "unterminated frontmatter block")
	}
	body := rest[:end]
	remainder := rest[end+len("\n---\n"):]
	fm, err := decodeYAML(body)
	if err != nil {
		return nil, "", err
	}
	return fm, remainder, nil
}

func extractCodeFrontmatter(text string) (map[string]interface{}, string, error) {
	lines := splitKeepEmpty(text)
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != "# ---" {
		return nil, text, nil
	}
	var body []string
	i := 1
	closed := false
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		if line == "# ---" {
			closed = true
			i++
			break
		}
		body = append(body, strings.TrimPrefix(line, "# "))
	}
	if !closed {
		return nil, "", knitjerr.New(knitjerr.KindParsing, "unterminated frontmatter block")
	}
	fm, err := decodeYAML(strings.Join(body, "\n"))
	if err != nil {
		return nil, "", err
	}
	remainder := strings.Join(lines[i:], "\n")
	return fm, remainder, nil
}

func decodeYAML(body string) (map[string]interface{}, error) {
	if strings.TrimSpace(body) == "" {
		return map[string]interface{}{}, nil
	}
	var fm map[string]interface{}
	if err := yaml.Unmarshal([]byte(body), &fm); err != nil {
		return nil, knitjerr.Wrap(knitjerr.KindParsing, err, "decoding frontmatter YAML")
	}
	if fm == nil {
		fm = map[string]interface{}{}
	}
	return fm, nil
}

// splitKeepEmpty splits on "\n" without dropping a trailing empty element,
// matching strings.Split semantics (kept as a named helper purely for
// readability at call sites).
func splitKeepEmpty(text string) []string {
	return strings.Split(text, "\n")
}
