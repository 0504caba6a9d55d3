package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knitj/knitj/cell"
)

func TestParseMarkdownSplitsTitleAndCodeFence(t *testing.T) {
	src := "# Title\n\n```python\nprint(1+1)\n```\n"
	res, err := Parse(Markdown, src)
	require.NoError(t, err)
	require.Len(t, res.Cells, 2)

	text, ok := res.Cells[0].(*cell.TextCell)
	require.True(t, ok)
	assert.Equal(t, "# Title", text.Content)

	code, ok := res.Cells[1].(*cell.CodeCell)
	require.True(t, ok)
	assert.Equal(t, "print(1+1)", code.Code)
}

func TestParseMarkdownPassesThroughComments(t *testing.T) {
	src := "hello <!-- a comment --> world\n"
	res, err := Parse(Markdown, src)
	require.NoError(t, err)
	require.Len(t, res.Cells, 1)
	text := res.Cells[0].(*cell.TextCell)
	assert.Contains(t, text.Content, "<!-- a comment -->")
}

func TestParseMarkdownMultilineComment(t *testing.T) {
	src := "before\n<!--\nhidden\n-->\nafter\n"
	res, err := Parse(Markdown, src)
	require.NoError(t, err)
	require.Len(t, res.Cells, 1)
	assert.Contains(t, res.Cells[0].(*cell.TextCell).Content, "hidden")
}

func TestParseMarkdownUnclosedFence(t *testing.T) {
	_, err := Parse(Markdown, "```python\nprint(1)\n")
	require.Error(t, err)
}

func TestParseMarkdownUnclosedComment(t *testing.T) {
	_, err := Parse(Markdown, "hi <!-- unterminated\n")
	require.Error(t, err)
}

func TestParseMarkdownFrontmatter(t *testing.T) {
	src := "---\ntitle: Demo\n---\nbody\n"
	res, err := Parse(Markdown, src)
	require.NoError(t, err)
	assert.Equal(t, "Demo", res.Frontmatter["title"])
	require.Len(t, res.Cells, 1)
}

func TestParseEmptySource(t *testing.T) {
	res, err := Parse(Markdown, "")
	require.NoError(t, err)
	assert.Empty(t, res.Cells)
}

func TestParseFrontmatterOnly(t *testing.T) {
	res, err := Parse(Markdown, "---\nk: v\n---\n")
	require.NoError(t, err)
	assert.Empty(t, res.Cells)
	assert.Equal(t, "v", res.Frontmatter["k"])
}

func TestParseCodeModeline(t *testing.T) {
	src := "#::hide\nx = 1\n"
	res, err := Parse(Code, src)
	require.NoError(t, err)
	require.Len(t, res.Cells, 1)
	code := res.Cells[0].(*cell.CodeCell)
	assert.Equal(t, []string{"hide"}, code.Flags())
	assert.Equal(t, "x = 1", code.Code)
}

func TestParseCodeProseAndTemplate(t *testing.T) {
	src := "x = 1\n# ::>\n# hello there\n# jname: {{ name }}\ny = 2\n"
	res, err := Parse(Code, src)
	require.NoError(t, err)
	require.Len(t, res.Cells, 4)
	assert.Equal(t, "x = 1", res.Cells[0].(*cell.CodeCell).Code)
	text := res.Cells[1].(*cell.TextCell)
	assert.Equal(t, "hello there", text.Content)
	tmpl := res.Cells[2].(*cell.CodeCell)
	assert.True(t, tmpl.IsTemplate())
	assert.Equal(t, "name: {{ name }}", tmpl.TemplateSource())
	assert.Equal(t, "y = 2", res.Cells[3].(*cell.CodeCell).Code)
}

func TestParseCodeMagicEscape(t *testing.T) {
	src := "#::%who\n"
	res, err := Parse(Code, src)
	require.NoError(t, err)
	require.Len(t, res.Cells, 1)
	assert.Equal(t, "%who", res.Cells[0].(*cell.CodeCell).Code)
}

func TestParseCodeFrontmatter(t *testing.T) {
	src := "# ---\n# title: Demo\n# ---\nx = 1\n"
	res, err := Parse(Code, src)
	require.NoError(t, err)
	assert.Equal(t, "Demo", res.Frontmatter["title"])
	require.Len(t, res.Cells, 1)
}
