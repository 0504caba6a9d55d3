package document

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/knitjerr"
)

// LoadFromHTML seeds cell state from a previously rendered page: it
// locates "<div id=\"cells\">", walks its ".code-cell" children, and for
// each whose first CSS class matches a cell already present in d (i.e.
// produced by a prior UpdateFromSource call against the same source),
// restores output from the ".output" region, marks the cell done if its
// class list contains "done", and adds the "hide" flag if present. Cells
// in the HTML with no matching live hash are ignored; they belonged to a
// source version that no longer exists.
func (d *Document) LoadFromHTML(renderedHTML string) error {
	root, err := html.Parse(strings.NewReader(renderedHTML))
	if err != nil {
		return knitjerr.Wrap(knitjerr.KindParsing, err, "parsing rendered HTML")
	}
	cellsDiv := findByID(root, "cells")
	if cellsDiv == nil {
		return nil
	}

	d.mu.RLock()
	cells := make(map[cell.Hash]cell.Cell, len(d.cells))
	for h, c := range d.cells {
		cells[h] = c
	}
	d.mu.RUnlock()

	for child := cellsDiv.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		classes := classList(child)
		if !hasClass(classes, "code-cell") || len(classes) == 0 {
			continue
		}
		h := cell.HashFromHex(classes[0])
		c, ok := cells[h]
		if !ok {
			continue
		}
		code, ok := c.(*cell.CodeCell)
		if !ok {
			continue
		}
		outputHTML := ""
		if out := findByClass(child, "output"); out != nil {
			outputHTML = renderChildren(out)
		}
		code.SeedFromHTML(outputHTML, hasClass(classes, "done"), hasClass(classes, "hide"))
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && getAttr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(classList(n), class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

// getAttr mirrors _examples/titpetric-vuego/internal/helpers.GetAttr.
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classList(n *html.Node) []string {
	raw := getAttr(n, "class")
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

func hasClass(classes []string, want string) bool {
	for _, c := range classes {
		if c == want {
			return true
		}
	}
	return false
}

// renderChildren serializes a node's children back to HTML text, used to
// recover the .output region's inner markup as the restored text/html
// output payload.
func renderChildren(n *html.Node) string {
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}
