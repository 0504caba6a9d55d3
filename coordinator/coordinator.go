// Package coordinator wires the document, kernel adapter, renderer,
// source watcher, and transport layer together: it runs the server and
// batch execution modes, the broadcast-and-persist policy, and the
// per-cell execution state machine.
package coordinator

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"k8s.io/klog/v2"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/document"
	"github.com/knitj/knitj/jupyter"
	"github.com/knitj/knitj/kernel"
	"github.com/knitj/knitj/knitjerr"
	"github.com/knitj/knitj/parser"
	"github.com/knitj/knitj/render"
	"github.com/knitj/knitj/transport"
	"github.com/knitj/knitj/watch"
)

// Config bundles the knobs the CLI collects from flags/frontmatter.
type Config struct {
	SourcePath   string // empty in batch-from-stdin mode
	OutputPath   string
	Format       parser.Format
	KernelCmd    []string
	StaticDir    string
	ClientScript bool // server mode: emit the live-update script tag
	PortLow      int  // server mode: first port to try, inclusive
	PortHigh     int  // server mode: last port to try, inclusive

	// OnListening is called once the webserver has bound a port in
	// server mode, with the URL the coordinator is now serving; main.go
	// wires this up to open a system browser at the real bound address.
	OnListening func(url string)
}

// Coordinator owns the Document and every component that mutates or
// observes it. Only the coordinator's own goroutine ever mutates the
// Document; everything else reaches it only by enqueuing a closure.
type Coordinator struct {
	cfg Config

	doc      *document.Document
	renderer *render.Renderer
	adapter  *kernel.Adapter
	server   *transport.Server
	listener net.Listener

	// msgs carries both kernel-handler callbacks and watcher callbacks
	// onto the single coordinator goroutine; it is the only channel by
	// which other goroutines may touch state the coordinator owns.
	msgs chan func()

	mu sync.Mutex // guards writes to the output file only
}

// New builds a Coordinator for cfg.
func New(cfg Config) *Coordinator {
	language := "python"
	return &Coordinator{
		cfg:      cfg,
		doc:      document.New(cfg.Format),
		renderer: render.New(language),
		msgs:     make(chan func(), 64),
	}
}

// RunServer runs server mode: parse the initial source, seed state from
// any existing output file, bind a port, start the kernel, broadcast and
// dispatch the still-pending code cells, then start the watcher,
// broadcaster, and webserver, and run the single-threaded event loop
// until ctx is canceled.
func (c *Coordinator) RunServer(ctx context.Context) error {
	text, err := os.ReadFile(c.cfg.SourcePath)
	if err != nil {
		return knitjerr.Wrap(knitjerr.KindParsing, err, "reading initial source")
	}
	newCells, dirty, err := c.doc.UpdateFromSource(string(text))
	if err != nil {
		return err
	}

	// Seed output/done/hide state for any cells that survived unchanged
	// from a prior run's rendered output, before dispatching only the
	// genuinely new cells for execution.
	if data, readErr := os.ReadFile(c.cfg.OutputPath); readErr == nil {
		if err := c.doc.LoadFromHTML(string(data)); err != nil {
			klog.Warningf("coordinator: failed to seed from %s: %v", c.cfg.OutputPath, err)
		} else {
			newCells = stillPending(newCells, c.doc)
		}
	}

	c.server = transport.New(c.currentPage, c.cfg.StaticDir, c.handleInboundFrame)

	low, high := c.cfg.PortLow, c.cfg.PortHigh
	if low == 0 && high == 0 {
		low, high = 8080, 8099
	}
	ln, port, err := c.server.Listen(low, high)
	if err != nil {
		return err
	}
	c.listener = ln
	if c.cfg.OnListening != nil {
		c.cfg.OnListening(fmt.Sprintf("http://localhost:%d/", port))
	}

	manager := kernel.NewManager(c.cfg.KernelCmd, c.cfg.OutputPath+".kernel-connection.json")
	c.adapter = kernel.NewAdapter(manager, c.enqueueKernelMessage)
	if err := c.adapter.Start(ctx); err != nil {
		return err
	}

	c.broadcastDirty(dirty)
	c.dispatchAll(newCells)

	watcher, err := watch.New(c.cfg.SourcePath)
	if err != nil {
		return err
	}
	go watcher.Run(ctx, func(text string) {
		c.msgs <- func() { c.onSourceChanged(text) }
	})
	go c.server.Run()
	go func() {
		if err := c.server.Serve(ln); err != nil {
			klog.Warningf("coordinator: webserver stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case fn := <-c.msgs:
			fn()
		}
	}
}

// RunBatch runs batch mode: read all of input, update the document from
// it once, start the kernel, stream the prologue, dispatch every code
// cell, then await each cell's completion in source order and stream its
// HTML, finally stream the epilogue and shut the kernel down. A per-cell
// execution error still produces HTML (the error is part of the cell) and
// does not interrupt ordering.
func (c *Coordinator) RunBatch(ctx context.Context, input io.Reader, output io.Writer) error {
	text, err := io.ReadAll(input)
	if err != nil {
		return knitjerr.Wrap(knitjerr.KindParsing, err, "reading input")
	}
	newCells, _, err := c.doc.UpdateFromSource(string(text))
	if err != nil {
		return err
	}

	manager := kernel.NewManager(c.cfg.KernelCmd, c.cfg.OutputPath+".kernel-connection.json")
	c.adapter = kernel.NewAdapter(manager, func(msg jupyter.Message, hash cell.Hash, ok bool) {
		c.msgs <- func() { _, _ = c.doc.ApplyMessage(msg, hash, ok) }
	})
	if err := c.adapter.Start(ctx); err != nil {
		return err
	}
	go func() {
		for fn := range c.msgs {
			fn()
		}
	}()

	title := "knitj"
	if t, ok := c.doc.Frontmatter()["title"].(string); ok && t != "" {
		title = t
	}
	if _, err := io.WriteString(output, c.renderer.Prologue(title, false)); err != nil {
		return err
	}

	c.dispatchAll(newCells)

	for _, h := range c.doc.Hashes() {
		cl, ok := c.doc.Get(h)
		if !ok {
			continue
		}
		if code, isCode := cl.(*cell.CodeCell); isCode {
			select {
			case <-code.Completion():
			case <-ctx.Done():
				return c.adapter.Shutdown()
			}
		}
		if _, err := io.WriteString(output, c.renderer.CellHTML(cl)+"\n"); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(output, c.renderer.Epilogue(false)); err != nil {
		return err
	}
	return c.adapter.Shutdown()
}

// stillPending drops any code cell that LoadFromHTML just marked done,
// so a server restart against an unchanged source doesn't re-execute
// cells whose output was already recovered from the prior run's page.
func stillPending(cells []cell.Cell, doc *document.Document) []cell.Cell {
	out := make([]cell.Cell, 0, len(cells))
	for _, cl := range cells {
		code, ok := cl.(*cell.CodeCell)
		if ok && code.Done() {
			continue
		}
		out = append(out, cl)
	}
	return out
}

func (c *Coordinator) onSourceChanged(text string) {
	newCells, dirty, err := c.doc.UpdateFromSource(text)
	if err != nil {
		klog.Errorf("coordinator: %v", err)
		return
	}
	c.broadcastDirty(dirty)
	c.dispatchAll(newCells)
	c.persist()
}

func (c *Coordinator) dispatchAll(cells []cell.Cell) {
	for _, cl := range cells {
		code, ok := cl.(*cell.CodeCell)
		if !ok {
			continue
		}
		code.MarkEvaluating()
		if err := c.adapter.Execute(code.Hash(), code.Code); err != nil {
			klog.Errorf("coordinator: dispatch failed for %s: %v", code.Hash().Short(), err)
		}
	}
}

func (c *Coordinator) broadcastDirty(dirty []cell.Cell) {
	if len(dirty) == 0 {
		return
	}
	hashids := make([]string, 0, len(dirty))
	htmls := map[string]string{}
	for _, cl := range dirty {
		h := cl.Hash().String()
		hashids = append(hashids, h)
		htmls[h] = c.renderer.CellHTML(cl)
	}
	c.server.Broadcast(transport.Frame{
		"kind":    "document",
		"hashids": hashids,
		"htmls":   htmls,
	})
}

// enqueueKernelMessage is called from the kernel adapter's dispatch
// worker; it only enqueues onto the coordinator's own channel, so no
// shared mutable state crosses the goroutine boundary directly.
func (c *Coordinator) enqueueKernelMessage(msg jupyter.Message, hash cell.Hash, ok bool) {
	c.msgs <- func() { c.applyKernelMessage(msg, hash, ok) }
}

func (c *Coordinator) applyKernelMessage(msg jupyter.Message, hash cell.Hash, ok bool) {
	if status, isStatus := msg.(*jupyter.StatusContent); isStatus && status.ExecutionState == jupyter.StateStarting {
		c.server.Broadcast(transport.Frame{"kind": "kernel_starting"})
		return
	}
	mutated, err := c.doc.ApplyMessage(msg, hash, ok)
	if err != nil {
		klog.Errorf("coordinator: %v", err)
		return
	}
	if mutated == nil {
		return
	}
	c.server.Broadcast(transport.Frame{
		"kind":   "cell",
		"hashid": mutated.Hash().String(),
		"html":   c.renderer.CellHTML(mutated),
	})
	c.persist()
}

// handleInboundFrame dispatches a client->server websocket frame by its
// "kind" field, running the dispatch on the coordinator's own goroutine
// and waiting for the result.
func (c *Coordinator) handleInboundFrame(kind string, frame transport.Frame) error {
	done := make(chan error, 1)
	c.msgs <- func() { done <- c.dispatchInbound(kind, frame) }
	return <-done
}

func (c *Coordinator) dispatchInbound(kind string, frame transport.Frame) error {
	switch kind {
	case "reevaluate":
		ids, _ := frame["hashids"].([]interface{})
		for _, raw := range ids {
			id, _ := raw.(string)
			h := cell.HashFromHex(id)
			cl, found := c.doc.Get(h)
			code, isCode := cl.(*cell.CodeCell)
			if !found || !isCode {
				continue
			}
			code.Reset()
			if err := c.adapter.Execute(h, code.Code); err != nil {
				klog.Errorf("coordinator: reevaluate failed for %s: %v", h.Short(), err)
			}
		}
	case "restart_kernel":
		if err := c.adapter.Restart(context.Background()); err != nil {
			klog.Errorf("coordinator: %v", err)
		}
	case "interrupt_kernel":
		if err := c.adapter.Interrupt(); err != nil {
			klog.Errorf("coordinator: %v", err)
		}
	case "ping":
		// advisory only
	default:
		return knitjerr.New(knitjerr.KindProtocol, "unknown websocket frame kind: "+kind)
	}
	return nil
}

func (c *Coordinator) currentPage() string {
	page, err := c.renderer.Page(c.doc, c.cfg.ClientScript)
	if err != nil {
		klog.Errorf("coordinator: rendering page: %v", err)
		return ""
	}
	return page
}

func (c *Coordinator) persist() {
	page := c.currentPage()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.WriteFile(c.cfg.OutputPath, []byte(page), 0o644); err != nil {
		klog.Errorf("coordinator: writing output file: %v", err)
	}
}

func (c *Coordinator) shutdown() error {
	if c.listener != nil {
		_ = c.listener.Close()
	}
	if c.adapter != nil {
		if err := c.adapter.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}
