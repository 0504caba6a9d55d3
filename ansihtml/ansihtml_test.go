package ansihtml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTMLPlainTextIsEscaped(t *testing.T) {
	assert.Equal(t, "a &lt; b", ToHTML("a < b"))
}

func TestToHTMLWrapsColoredRun(t *testing.T) {
	out := ToHTML("\x1b[31merror\x1b[0m: bad")
	assert.Equal(t, `<span class="ansi-red">error</span>: bad`, out)
}

func TestToHTMLCombinesBoldAndColor(t *testing.T) {
	out := ToHTML("\x1b[1;32mok\x1b[0m")
	assert.Equal(t, `<span class="ansi-bold ansi-green">ok</span>`, out)
}

func TestToHTMLUnterminatedSpanClosesAtEnd(t *testing.T) {
	out := ToHTML("\x1b[34mtrailing")
	assert.Equal(t, `<span class="ansi-blue">trailing</span>`, out)
}

func TestToHTMLUnknownCodeIsIgnored(t *testing.T) {
	out := ToHTML("\x1b[99mtext\x1b[0m")
	assert.Equal(t, "text", out)
}
