// Package document implements the ordered hash->cell map, its
// update-from-source diff/merge, the Jupyter protocol handler
// (ApplyMessage), and HTML load-back (LoadFromHTML). The HTML tree walk
// is grounded on _examples/titpetric-vuego/internal/helpers/node.go's
// GetAttr/node traversal idiom over golang.org/x/net/html.
package document

import (
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/knitj/knitj/ansihtml"
	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/jupyter"
	"github.com/knitj/knitj/knitjerr"
	"github.com/knitj/knitj/parser"
)

// Document is an insertion-ordered mapping of Hash -> Cell, plus the
// parsed frontmatter. Only the coordinator's single goroutine mutates it;
// the mutex exists only to let the renderer and HTTP handlers take a
// consistent read-only snapshot concurrently.
type Document struct {
	mu          sync.RWMutex
	format      parser.Format
	frontmatter map[string]interface{}
	order       []cell.Hash
	cells       map[cell.Hash]cell.Cell
}

// New builds an empty Document for the given source format.
func New(format parser.Format) *Document {
	return &Document{
		format: format,
		cells:  map[cell.Hash]cell.Cell{},
	}
}

// Len returns the number of cells.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Hashes returns a snapshot of the current hash order.
func (d *Document) Hashes() []cell.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]cell.Hash, len(d.order))
	copy(out, d.order)
	return out
}

// Cells returns a snapshot of the cell list in order.
func (d *Document) Cells() []cell.Cell {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]cell.Cell, len(d.order))
	for i, h := range d.order {
		out[i] = d.cells[h]
	}
	return out
}

// Get looks up a cell by hash.
func (d *Document) Get(h cell.Hash) (cell.Cell, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cells[h]
	return c, ok
}

// Frontmatter returns the current frontmatter map (never nil).
func (d *Document) Frontmatter() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.frontmatter == nil {
		return map[string]interface{}{}
	}
	return d.frontmatter
}

// UpdateFromSource reparses text and reconciles it against the current
// document. Returns (newCells, dirtyCells): newCells is what the
// coordinator must dispatch for execution; dirtyCells is newCells plus
// flag-only-changed retained cells, what the coordinator must
// re-broadcast. This operation is atomic with respect to concurrent
// readers (held under the write lock for its whole duration).
func (d *Document) UpdateFromSource(text string) (newCells []cell.Cell, dirtyCells []cell.Cell, err error) {
	result, err := parser.Parse(d.format, text)
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	newOrder := make([]cell.Hash, 0, len(result.Cells))
	newMap := make(map[cell.Hash]cell.Cell, len(result.Cells))

	for _, parsed := range result.Cells {
		h := parsed.Hash()
		newOrder = append(newOrder, h)
		existing, had := d.cells[h]
		if !had {
			newMap[h] = parsed
			newCells = append(newCells, parsed)
			dirtyCells = append(dirtyCells, parsed)
			continue
		}
		newMap[h] = existing
		if parsedCode, ok := parsed.(*cell.CodeCell); ok {
			existingCode := existing.(*cell.CodeCell)
			if existingCode.UpdateFlags(parsedCode) {
				dirtyCells = append(dirtyCells, existingCode)
			}
		}
	}

	d.order = newOrder
	d.cells = newMap
	d.frontmatter = result.Frontmatter
	return newCells, dirtyCells, nil
}

// ApplyMessage is the protocol handler: it maps an incoming Jupyter
// message to a mutation on its originating cell. hash/ok identify that
// cell; when !ok, the message has no resolvable parent and is logged but
// does not fail. Returns the cell that was mutated, if any, so the
// coordinator can re-render and broadcast it.
func (d *Document) ApplyMessage(msg jupyter.Message, hash cell.Hash, ok bool) (cell.Cell, error) {
	if !ok {
		klog.Warningf("document: dropping message %T with unresolved parent", msg)
		return nil, nil
	}
	d.mu.RLock()
	target, found := d.cells[hash]
	d.mu.RUnlock()
	if !found {
		klog.Warningf("document: message %T for unknown cell %s", msg, hash.Short())
		return nil, nil
	}
	code, isCode := target.(*cell.CodeCell)
	if !isCode {
		return nil, nil
	}

	switch m := msg.(type) {
	case *jupyter.ExecuteResultContent:
		code.SetOutput(toMIMEMap(m.Data))
	case *jupyter.DisplayDataContent:
		code.SetOutput(toMIMEMap(m.Data))
	case *jupyter.StreamContent:
		code.AppendStream(m.Text)
	case *jupyter.ErrorContent:
		code.SetError(ansihtml.ToHTML(strings.Join(m.Traceback, "\n")))
	case *jupyter.ExecuteReplyContent:
		if !m.IsError() {
			return nil, nil
		}
		code.SetError(ansihtml.ToHTML(strings.Join(m.Traceback, "\n")))
	case *jupyter.StatusContent:
		if m.ExecutionState != jupyter.StateIdle {
			return nil, nil
		}
		code.SetDone()
	case *jupyter.ExecuteInputContent:
		// echoes the code already known to the cell; no state change
		return nil, nil
	default:
		return nil, knitjerr.New(knitjerr.KindProtocol, "unrecognized jupyter message in apply_message")
	}
	return code, nil
}

func toMIMEMap(data map[string]string) map[cell.MIME]string {
	out := make(map[cell.MIME]string, len(data))
	for k, v := range data {
		out[cell.MIME(k)] = v
	}
	return out
}
