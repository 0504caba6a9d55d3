// Package kernel implements the kernel adapter: connection lifecycle,
// msg_id -> cell.Hash correlation, and the receive-worker pump that turns
// raw Jupyter wire traffic into calls against a caller-supplied handler.
// Grounded on _examples/crackcomm-go-jupyter/jupyter/client.go's pollIO
// loop, generalized into two independent blocking-receive workers feeding
// one parsing/dispatch worker, instead of the teacher's single combined
// loop.
package kernel

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"github.com/knitj/knitj/cell"
	"github.com/knitj/knitj/jupyter"
	"github.com/knitj/knitj/knitjerr"
)

// Handler is invoked by the adapter's dispatch worker for every parsed
// message whose parent could be resolved (or not, in which case hash is
// the zero Hash and ok is false; such messages are logged but do not
// fail the session).
type Handler func(msg jupyter.Message, hash cell.Hash, ok bool)

// Adapter is the kernel adapter exposed to the coordinator: start, execute,
// restart, interrupt, shutdown, plus the background message pump.
type Adapter struct {
	manager *Manager
	handler Handler

	conn *jupyter.Conn

	correlation sync.Map // msg_id (string) -> cell.Hash

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdapter builds an Adapter that launches kernels via manager and
// invokes handler for every parsed message, with ok reporting whether its
// parent was resolved.
func NewAdapter(manager *Manager, handler Handler) *Adapter {
	return &Adapter{manager: manager, handler: handler}
}

// Start launches the kernel manager, dials the wire connection, and spawns
// the dispatch worker that drains it.
func (a *Adapter) Start(ctx context.Context) error {
	info, err := a.manager.Start(ctx)
	if err != nil {
		return err
	}
	conn, err := jupyter.Dial(ctx, &info)
	if err != nil {
		return knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "dialing kernel")
	}
	a.conn = conn

	pumpCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.pump(pumpCtx)
	return nil
}

// pump is the single dispatch worker draining both jupyter.Conn receive
// channels (the two independent blocking-recv workers live inside Conn
// itself) onto the handler, resolving parent hashes via the correlation
// map. It terminates when both channels close (Conn.Close'd) or ctx is
// canceled.
func (a *Adapter) pump(ctx context.Context) {
	defer close(a.done)
	shellCh := a.conn.ShellChan()
	iopubCh := a.conn.IopubChan()
	for shellCh != nil || iopubCh != nil {
		select {
		case <-ctx.Done():
			return
		case r, open := <-shellCh:
			if !open {
				shellCh = nil
				continue
			}
			a.dispatch(r)
		case r, open := <-iopubCh:
			if !open {
				iopubCh = nil
				continue
			}
			a.dispatch(r)
		}
	}
}

func (a *Adapter) dispatch(r jupyter.Received) {
	if r.Err != nil {
		klog.Errorf("kernel: %v", r.Err)
		return
	}
	env := r.Envelope
	msg, err := jupyter.ParseContent(env.Header.MsgType, env.Content)
	if err != nil {
		klog.Errorf("kernel: dropping malformed %s message: %v", env.Header.MsgType, err)
		return
	}
	hash, ok := a.resolve(env.ParentHeader)
	a.handler(msg, hash, ok)
}

func (a *Adapter) resolve(parent jupyter.Header) (cell.Hash, bool) {
	if !parent.HasID() {
		return cell.Hash{}, false
	}
	v, ok := a.correlation.Load(parent.MsgID)
	if !ok {
		klog.Warningf("kernel: unknown parent msg_id %s", parent.MsgID)
		return cell.Hash{}, false
	}
	return v.(cell.Hash), true
}

// Execute forwards code to the kernel and records msg_id -> hash. Entries
// are never removed; the table grows monotonically, bounded by the total
// number of executions in the session.
func (a *Adapter) Execute(hash cell.Hash, code string) error {
	msgID, err := a.conn.SendExecute(jupyter.NewExecuteRequest(code))
	if err != nil {
		return knitjerr.Wrap(knitjerr.KindProtocol, err, "sending execute_request")
	}
	a.correlation.Store(msgID, hash)
	return nil
}

// Restart delegates to the kernel manager, which relaunches the kernel
// process against the same connection file and ports, so the existing
// wire sockets simply reconnect. The correlation map and pump loop are
// left running unchanged; pending executions become orphaned but
// harmless.
func (a *Adapter) Restart(ctx context.Context) error {
	if err := a.manager.Restart(ctx); err != nil {
		return knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "restarting kernel")
	}
	return nil
}

// Interrupt is a best-effort SIGINT-equivalent to the kernel process.
func (a *Adapter) Interrupt() error {
	return a.manager.Interrupt()
}

// Shutdown requests kernel shutdown, cancels the pump worker, and awaits
// its termination.
func (a *Adapter) Shutdown() error {
	err := a.manager.Shutdown()
	if a.conn != nil {
		_ = a.conn.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.done != nil {
		<-a.done
	}
	if err != nil {
		return knitjerr.Wrap(knitjerr.KindKernelLifecycle, err, "shutting down kernel")
	}
	return nil
}
