package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/jupyter"
	"github.com/knitj/knitj/parser"
)

func TestUpdateFromSourceSplitsTitleAndCodeIntoDirtyCells(t *testing.T) {
	doc := New(parser.Markdown)
	src := "# Title\n\n```python\nprint(1+1)\n```\n"
	newCells, dirty, err := doc.UpdateFromSource(src)
	require.NoError(t, err)
	assert.Len(t, newCells, 2)
	assert.Len(t, dirty, 2)
	assert.Equal(t, 2, doc.Len())
}

func TestUpdateFromSourceIdempotent(t *testing.T) {
	doc := New(parser.Markdown)
	src := "# Title\n\n```python\nprint(1+1)\n```\n"
	_, _, err := doc.UpdateFromSource(src)
	require.NoError(t, err)
	newCells, dirty, err := doc.UpdateFromSource(src)
	require.NoError(t, err)
	assert.Empty(t, newCells)
	assert.Empty(t, dirty)
}

func TestUpdateFromSourceRetainsOutputAcrossReparse(t *testing.T) {
	doc := New(parser.Markdown)
	src1 := "```python\nprint(1)\n```\n"
	newCells, _, err := doc.UpdateFromSource(src1)
	require.NoError(t, err)
	code := newCells[0].(*cell.CodeCell)
	code.SetOutput(map[cell.MIME]string{cell.MIMEPlain: "1"})

	src2 := src1 + "\nmore text\n"
	newCells2, _, err := doc.UpdateFromSource(src2)
	require.NoError(t, err)
	assert.Len(t, newCells2, 1) // only the new text cell

	retained, ok := doc.Get(code.Hash())
	require.True(t, ok)
	out := retained.(*cell.CodeCell).Output()
	assert.Equal(t, "1", out[cell.MIMEPlain])
}

func TestUpdateFromSourceDropsOutputOnCodeEdit(t *testing.T) {
	doc := New(parser.Markdown)
	_, _, err := doc.UpdateFromSource("```python\nprint(1)\n```\n")
	require.NoError(t, err)

	newCells, _, err := doc.UpdateFromSource("```python\nprint(2)\n```\n")
	require.NoError(t, err)
	require.Len(t, newCells, 1)
	assert.Equal(t, 1, doc.Len())
}

func TestUpdateFromSourceFlagOnlyChangeMarksDirtyNotNew(t *testing.T) {
	doc := New(parser.Code)
	_, _, err := doc.UpdateFromSource("x = 1\n")
	require.NoError(t, err)

	newCells, dirty, err := doc.UpdateFromSource("#::hide\nx = 1\n")
	require.NoError(t, err)
	assert.Empty(t, newCells)
	require.Len(t, dirty, 1)
	assert.True(t, dirty[0].(*cell.CodeCell).HasFlag("hide"))
}

func TestApplyMessageStream(t *testing.T) {
	doc := New(parser.Code)
	newCells, _, err := doc.UpdateFromSource("print(1)\n")
	require.NoError(t, err)
	h := newCells[0].Hash()

	_, err = doc.ApplyMessage(&jupyter.StreamContent{Name: "stdout", Text: "a\n"}, h, true)
	require.NoError(t, err)
	_, err = doc.ApplyMessage(&jupyter.StreamContent{Text: "\rb"}, h, true)
	require.NoError(t, err)
	_, err = doc.ApplyMessage(&jupyter.StatusContent{ExecutionState: jupyter.StateIdle}, h, true)
	require.NoError(t, err)

	c, _ := doc.Get(h)
	code := c.(*cell.CodeCell)
	assert.Equal(t, "b", code.Stream())
	assert.True(t, code.Done())
}

func TestApplyMessageUnresolvedParentLogsNoError(t *testing.T) {
	doc := New(parser.Code)
	cellRef, err := doc.ApplyMessage(&jupyter.StreamContent{Text: "x"}, cell.Hash{}, false)
	require.NoError(t, err)
	assert.Nil(t, cellRef)
}

func TestApplyMessageError(t *testing.T) {
	doc := New(parser.Code)
	newCells, _, _ := doc.UpdateFromSource("1/0\n")
	h := newCells[0].Hash()
	_, err := doc.ApplyMessage(&jupyter.ErrorContent{EName: "ZeroDivisionError", Traceback: []string{"boom"}}, h, true)
	require.NoError(t, err)
	c, _ := doc.Get(h)
	errHTML, has := c.(*cell.CodeCell).Error()
	assert.True(t, has)
	assert.Contains(t, errHTML, "boom")
}

func TestEmptySourceEmptyDocument(t *testing.T) {
	doc := New(parser.Markdown)
	newCells, dirty, err := doc.UpdateFromSource("")
	require.NoError(t, err)
	assert.Empty(t, newCells)
	assert.Empty(t, dirty)
	assert.Equal(t, 0, doc.Len())
}
