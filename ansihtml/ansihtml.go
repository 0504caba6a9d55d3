// Package ansihtml converts ANSI SGR-colored text (the shape of a
// traceback streamed by most kernels) into HTML spans. No example repo
// or other_examples/ file ships a verifiable Go ANSI-to-HTML converter,
// so this is implemented directly against the standard library, the one
// deliberate stdlib fallback in this module; see DESIGN.md.
package ansihtml

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var sgrPattern = regexp.MustCompile("\x1b\\[([0-9;]*)m")

// sgrClass maps a subset of SGR codes to CSS classes, the same codes the
// original ansi2html-based renderer recognized: bold, the 8 standard
// foreground colors, and reset.
var sgrClass = map[string]string{
	"1":  "ansi-bold",
	"30": "ansi-black", "31": "ansi-red", "32": "ansi-green", "33": "ansi-yellow",
	"34": "ansi-blue", "35": "ansi-magenta", "36": "ansi-cyan", "37": "ansi-white",
}

// ToHTML converts ANSI SGR-escaped text into HTML, wrapping colored runs
// in "<span class=\"ansi-*\">" and escaping everything else.
func ToHTML(text string) string {
	var out strings.Builder
	openSpans := 0
	last := 0
	for _, loc := range sgrPattern.FindAllStringSubmatchIndex(text, -1) {
		out.WriteString(html.EscapeString(text[last:loc[0]]))
		last = loc[1]
		codes := text[loc[2]:loc[3]]
		for openSpans > 0 {
			out.WriteString("</span>")
			openSpans--
		}
		classes := classesFor(codes)
		if len(classes) > 0 {
			out.WriteString(`<span class="` + strings.Join(classes, " ") + `">`)
			openSpans++
		}
	}
	out.WriteString(html.EscapeString(text[last:]))
	for openSpans > 0 {
		out.WriteString("</span>")
		openSpans--
	}
	return out.String()
}

func classesFor(codes string) []string {
	if codes == "" || codes == "0" {
		return nil
	}
	var classes []string
	for _, tok := range strings.Split(codes, ";") {
		if _, err := strconv.Atoi(tok); err != nil {
			continue
		}
		if cls, ok := sgrClass[tok]; ok {
			classes = append(classes, cls)
		}
	}
	return classes
}
