package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/document"
	"github.com/knitj/knitj/knitjerr"
	"github.com/knitj/knitj/parser"
	"github.com/knitj/knitj/render"
	"github.com/knitj/knitj/transport"
)

func TestStillPendingDropsCellsAlreadyMarkedDone(t *testing.T) {
	doc := document.New(parser.Markdown)
	newCells, _, err := doc.UpdateFromSource("```python\nprint(1)\n```\n")
	require.NoError(t, err)
	require.Len(t, newCells, 1)

	code := newCells[0].(*cell.CodeCell)
	code.MarkEvaluating()
	code.SetDone()

	pending := stillPending(newCells, doc)
	assert.Empty(t, pending)
}

func TestStillPendingKeepsUnexecutedCells(t *testing.T) {
	doc := document.New(parser.Markdown)
	newCells, _, err := doc.UpdateFromSource("```python\nprint(1)\n```\n")
	require.NoError(t, err)

	pending := stillPending(newCells, doc)
	assert.Len(t, pending, 1)
}

func TestDispatchInboundUnknownKindIsProtocolError(t *testing.T) {
	c := &Coordinator{doc: document.New(parser.Markdown)}
	err := c.dispatchInbound("nonsense", transport.Frame{})
	require.Error(t, err)
	var kerr *knitjerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, knitjerr.KindProtocol, kerr.Kind)
}

func TestDispatchInboundPingIsNoop(t *testing.T) {
	c := &Coordinator{doc: document.New(parser.Markdown)}
	assert.NoError(t, c.dispatchInbound("ping", transport.Frame{}))
}

func TestCurrentPageRendersDocumentCells(t *testing.T) {
	doc := document.New(parser.Markdown)
	_, _, err := doc.UpdateFromSource("# Title\n\n```python\nprint(1)\n```\n")
	require.NoError(t, err)

	c := &Coordinator{
		cfg:      Config{ClientScript: false},
		doc:      doc,
		renderer: render.New("python"),
	}
	page := c.currentPage()
	assert.Contains(t, page, "code-cell")
}
